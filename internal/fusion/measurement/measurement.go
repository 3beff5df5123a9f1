// Package measurement builds a track.Plot (and its creation priority) from
// a raw per-sensor reading: position, velocity, and the sensor that saw it.
// This is the only place sensor geometry (mounting, field of view, CAN
// offset) touches the fusion core.
package measurement

import (
	"math"

	"github.com/avfusion/radar-fusion/internal/config"
	"github.com/avfusion/radar-fusion/internal/fusion/radarstats"
	"github.com/avfusion/radar-fusion/internal/fusion/track"
	"github.com/avfusion/radar-fusion/internal/sensors"
)

// MaxPriority is the priority of a measurement at zero range. Chosen large
// enough that priority stays non-negative for any in-range object.
const MaxPriority = 150.0

// Params is the immutable, reinit-only set of measurement-model tunables
// derived from the current TuningConfig.
type Params struct {
	SigmaBaseSq           float32
	SigmaRangeSq          float32
	SigmaDopplerSq        float32
	SigmaBearingSqRad     float32
	MaxBearingConfidence  float32
	MinBearingConfidence  float32
	SensorWeakBearingArea float32 // degrees
}

// ParamsFromConfig derives Params from a TuningConfig snapshot. Sigma values
// are stored as stddevs in the config and squared here; bearing stddev is
// configured in degrees and converted to radians before squaring.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	sigmaBase := float32(cfg.GetSigmaBase())
	sigmaRange := float32(cfg.GetSigmaRange())
	sigmaDoppler := float32(cfg.GetSigmaDoppler())
	sigmaBearingRad := float32(cfg.GetSigmaBearing()) * float32(math.Pi) / 180

	return Params{
		SigmaBaseSq:           sigmaBase * sigmaBase,
		SigmaRangeSq:          sigmaRange * sigmaRange,
		SigmaDopplerSq:        sigmaDoppler * sigmaDoppler,
		SigmaBearingSqRad:     sigmaBearingRad * sigmaBearingRad,
		MaxBearingConfidence:  float32(cfg.GetMaxBearingConfidence()),
		MinBearingConfidence:  float32(cfg.GetMinBearingConfidence()),
		SensorWeakBearingArea: float32(cfg.GetSensorWeakBearingArea()),
	}
}

// Build turns a raw (sensor, position, velocity) reading into a plot ready
// for gating/fusion, plus its track-creation priority.
func Build(params Params, sensor sensors.Descriptor, posX, posY, velX, velY float32) (track.Plot, float32) {
	z := [4]float32{posX, posY, velX, velY}

	// Apply the sensor's global offset (CAN frame to vehicle frame).
	z[0] += sensor.CanX
	z[1] += sensor.CanY

	var r [4]float32
	r[0] = radarstats.VarX(z[0], z[1], params.SigmaRangeSq, params.SigmaBearingSqRad, params.SigmaBaseSq)
	r[1] = radarstats.VarY(z[0], z[1], params.SigmaRangeSq, params.SigmaBearingSqRad, params.SigmaBaseSq)
	r[2] = params.SigmaDopplerSq
	r[3] = params.SigmaDopplerSq

	weight := bearingConfidence(z[0], z[1], sensor, params)
	priority := float32(MaxPriority) - radarstats.Range(z[0], z[1])

	return track.Plot{Z: z, R: r, Weight: weight}, priority
}

// bearingConfidence scores trust in a measurement based on how far off the
// sensor's boresight it falls: full confidence near boresight, linearly
// falling off over the last SensorWeakBearingArea degrees of the field of
// view, floored at MinBearingConfidence outside the FOV entirely.
func bearingConfidence(x, y float32, sensor sensors.Descriptor, params Params) float32 {
	dx := x - sensor.X
	dy := y - sensor.Y

	bearingDeg := float32(math.Atan2(float64(dy), float64(dx))) * 180 / float32(math.Pi)
	theta := absf(bearingDeg - sensor.Mounting)

	maxBearing := sensor.FOV / 2
	weakBearing := maxBearing - params.SensorWeakBearingArea

	switch {
	case theta <= weakBearing:
		return params.MaxBearingConfidence
	case theta <= maxBearing:
		return radarstats.LinearInterpolate(theta, weakBearing, maxBearing,
			params.MaxBearingConfidence, params.MinBearingConfidence)
	default:
		return params.MinBearingConfidence
	}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
