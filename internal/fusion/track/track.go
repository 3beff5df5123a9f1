// Package track holds the per-object Kalman state: the fused mean, its
// covariance in both full and U-D factored form, and the init/predict/fuse
// operations that advance it one cycle at a time.
package track

import "github.com/avfusion/radar-fusion/internal/fusion/kalman"

// Plot is a single measurement handed to a track: a mean vector, the
// diagonal of its covariance (off-diagonal entries are always zero by
// construction), and a trust weight derived from bearing confidence.
type Plot struct {
	Z      kalman.State
	R      kalman.Diagonal
	Weight float32
}

// Track is the Kalman state of one tracked object: mean X, covariance P in
// both full and U-D factored form. P is redundant with (PU, PD); it is kept
// because gating reads its diagonal directly, while PU/PD are authoritative
// during predict/fuse.
type Track struct {
	X  kalman.State
	P  kalman.Matrix
	PU kalman.Upper
	PD kalman.Diagonal
}

// Init seeds a track from a plot: the mean copies straight across, and the
// covariance starts diagonal (the plot's R diagonal), then gets factored.
func (t *Track) Init(plot Plot) {
	*t = Track{}
	for i := 0; i < kalman.N; i++ {
		t.X[i] = plot.Z[i]
		t.P[kalman.N*i+i] = plot.R[i]
	}
	t.PU, t.PD = kalman.Decompose(t.P)
}

// Predict advances the track one cycle: covariance first (Thornton time
// update using f and the process-noise factors), then the state mean, then
// P is recomposed from the freshly predicted factors. This ordering is
// required: the Thornton update reads the pre-predict factors.
func (t *Track) Predict(f kalman.Matrix, qu kalman.Upper, qd kalman.Diagonal) {
	kalman.EstimateCovariance(f, qu, qd, &t.PU, &t.PD)
	kalman.PredictState(f, &t.X)
	t.P = kalman.Compose(t.PU, t.PD)
}

// Fuse applies one plot to the track via N sequential scalar Bierman
// updates, one per state index. Each scalar innovation is the raw residual
// scaled by the plot's trust weight; alpha stays R[i,i] unscaled. This
// under-weights the innovation without inflating the posterior covariance
// to match — preserved as specified, not "fixed".
func (t *Track) Fuse(plot Plot) {
	for i := 0; i < kalman.N; i++ {
		var h kalman.State
		h[i] = 1
		innovation := (plot.Z[i] - t.X[i]) * plot.Weight
		kalman.FuseState(innovation, plot.R[i], h, &t.X, &t.PU, &t.PD)
	}
	t.P = kalman.Compose(t.PU, t.PD)
}
