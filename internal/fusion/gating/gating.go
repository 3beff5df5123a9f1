// Package gating scores how well a measurement matches each live track and
// decides whether the best match is good enough to associate, or whether
// the measurement should instead be routed to track creation.
package gating

import (
	"math"

	"github.com/avfusion/radar-fusion/internal/config"
	"github.com/avfusion/radar-fusion/internal/fusion/kalman"
	"github.com/avfusion/radar-fusion/internal/fusion/radarstats"
	"github.com/avfusion/radar-fusion/internal/fusion/track"
)

// StateGatingValueMinLimit is the minimum per-state similarity (weighted)
// below which a pair is rejected outright, based on the 3-sigma rule.
const StateGatingValueMinLimit = 0.1

// InvalidGatingValue marks a pair that failed a per-state gate.
const InvalidGatingValue = -1.0

// Params holds the per-state gating weights and the acceptance threshold,
// both reinit-only tunables.
type Params struct {
	Weights       [kalman.N]float32
	TotalMinLimit float32
}

// ParamsFromConfig derives Params from a TuningConfig snapshot.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	return Params{
		Weights: [kalman.N]float32{
			float32(cfg.GetGatingWeightX()),
			float32(cfg.GetGatingWeightY()),
			float32(cfg.GetGatingWeightVX()),
			float32(cfg.GetGatingWeightVY()),
		},
		TotalMinLimit: float32(kalman.N) * StateGatingValueMinLimit * float32(cfg.GetAcceptanceGateSumFactor()),
	}
}

// Value computes the gating value of one (measurement, track) pair: the sum
// of per-state weighted Gaussian similarities, or InvalidGatingValue if any
// single state falls at or below StateGatingValueMinLimit.
func Value(plot track.Plot, t *track.Track, params Params) float32 {
	var sum float32
	for i := 0; i < kalman.N; i++ {
		s := radarstats.Similarity(plot.Z[i], t.X[i], plot.R[i], t.P[kalman.N*i+i]) * params.Weights[i]
		if s <= StateGatingValueMinLimit {
			return InvalidGatingValue
		}
		sum += s
	}
	return sum
}

// BestMatch scans tracks in order (nil entries are free slots, skipped) and
// returns the index of the track with the highest gating value. Ties keep
// the first-scanned track, matching the deterministic iteration order the
// spec calls for. ok is false if no live track was scanned at all.
func BestMatch(plot track.Plot, tracks []*track.Track, params Params) (idx int, value float32, ok bool) {
	best := float32(-math.MaxFloat32)
	bestIdx := -1

	for i, t := range tracks {
		if t == nil {
			continue
		}
		v := Value(plot, t, params)
		if v > best {
			best = v
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return -1, 0, false
	}
	return bestIdx, best, true
}

// Accept reports whether a gating value clears the acceptance gate.
func Accept(value float32, params Params) bool {
	return value > params.TotalMinLimit
}
