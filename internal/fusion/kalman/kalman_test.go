package kalman

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestUpperIndexCoversEveryEntryOnce(t *testing.T) {
	t.Parallel()

	seen := make(map[int]bool)
	for i := 0; i < N; i++ {
		for j := i; j < N; j++ {
			idx := UpperIndex(i, j)
			require.False(t, seen[idx], "index %d reused at (%d,%d)", idx, i, j)
			seen[idx] = true
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, UpperLen)
		}
	}
	assert.Len(t, seen, UpperLen)
}

// symmetricPSD builds a symmetric positive-definite test matrix with
// distinct positive leading minors, matching the law's precondition.
func symmetricPSD() Matrix {
	return Matrix{
		4, 1, 0.5, 0.2,
		1, 3, 0.3, 0.1,
		0.5, 0.3, 2, 0.4,
		0.2, 0.1, 0.4, 1.5,
	}
}

func toGonum(m Matrix) *mat.Dense {
	data := make([]float64, N*N)
	for i, v := range m {
		data[i] = float64(v)
	}
	return mat.NewDense(N, N, data)
}

func TestUDRoundTrip(t *testing.T) {
	t.Parallel()

	m := symmetricPSD()
	u, d := Decompose(m)
	got := Compose(u, d)

	for i := 0; i < N*N; i++ {
		assert.InDeltaf(t, float64(m[i]), float64(got[i]), 1e-5*math.Max(1, math.Abs(float64(m[i]))),
			"entry %d: want %v got %v", i, m[i], got[i])
	}

	// Independent cross-check: the gonum 2-norm of the difference between
	// the input and the recomposed product should be near zero, confirming
	// the packed recurrence above did not silently drop a term.
	want := toGonum(m)
	gotDense := toGonum(got)
	var diff mat.Dense
	diff.Sub(want, gotDense)
	assert.InDelta(t, 0, mat.Norm(&diff, 2), 1e-4)
}

func identityPlusCoupling(dt float32) Matrix {
	return Matrix{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func TestPredictStateIdempotenceAtRest(t *testing.T) {
	t.Parallel()

	dt := float32(0.04)
	f := identityPlusCoupling(dt)
	state := State{4, 3, 10, -2}
	want := State{
		state[0] + dt*state[2],
		state[1] + dt*state[3],
		state[2],
		state[3],
	}

	PredictState(f, &state)
	assert.Equal(t, want, state)
}

func TestFuseStateDrivesStateTowardMeasurement(t *testing.T) {
	t.Parallel()

	p := Matrix{
		4, 0, 0, 0,
		0, 4, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	qu, qd := Decompose(p)
	state := State{0, 0, 0, 0}

	target := float32(10.0)
	var lastDiag float32 = math.MaxFloat32
	for i := 0; i < 50; i++ {
		var h State
		h[0] = 1
		innovation := target - state[0]
		FuseState(innovation, 0.1, h, &state, &qu, &qd)

		p := Compose(qu, qd)
		diag := p[0]
		assert.LessOrEqualf(t, diag, lastDiag+1e-4, "iteration %d: covariance diagonal increased", i)
		lastDiag = diag
	}
	assert.InDelta(t, float64(target), float64(state[0]), 0.5)
}

func TestEstimateCovarianceProducesSymmetricPSDResult(t *testing.T) {
	t.Parallel()

	dt := float32(0.04)
	f := identityPlusCoupling(dt)

	q := Matrix{
		0.01, 0, 0.001, 0,
		0, 0.01, 0, 0.001,
		0.001, 0, 0.02, 0,
		0, 0.001, 0, 0.02,
	}
	inputQu, inputQd := Decompose(q)

	p := symmetricPSD()
	qu, qd := Decompose(p)

	EstimateCovariance(f, inputQu, inputQd, &qu, &qd)

	got := Compose(qu, qd)
	gotT := transpose(got)
	for i := 0; i < N*N; i++ {
		assert.InDelta(t, float64(got[i]), float64(gotT[i]), 1e-4, "result is not symmetric at %d", i)
	}
	for i := 0; i < N; i++ {
		assert.GreaterOrEqualf(t, got[N*i+i], float32(0), "diagonal %d is negative", i)
	}
}
