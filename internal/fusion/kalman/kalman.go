// Package kalman implements the U-D factorized Kalman numeric kernel shared
// by every tracked object: factorization compose/decompose, state
// prediction, the Thornton covariance time-update, and the Bierman scalar
// measurement update. All state is fixed-size float32 arrays; there is no
// allocation in the hot path.
package kalman

// N is the number of Kalman states (x, y, vx, vy). Fixed by design.
const N = 4

// UpperLen is the number of scalars needed to store the upper triangle,
// diagonal included, of an NxN matrix in row-major upper order.
const UpperLen = N*(N+1)/2

// State is the Kalman state vector (x, y, vx, vy).
type State [N]float32

// Matrix is a dense row-major NxN matrix.
type Matrix [N * N]float32

// Upper is the upper triangle, diagonal included, of an NxN
// unit-upper-triangular matrix, stored row-major: entry (i,j) with i<=j
// lives at UpperIndex(i,j). Decompose writes 1 into the diagonal entries;
// ToFull and Compose take the diagonal as 1 without reading it, while
// EstimateCovariance reads the stored diagonal of the process-noise factor.
type Upper [UpperLen]float32

// Diagonal is the N diagonal entries of a diagonal matrix.
type Diagonal [N]float32

// UpperIndex returns the storage offset for entry (i,j), i<=j, of an NxN
// upper-triangular matrix packed row-major.
func UpperIndex(i, j int) int {
	return N*i - i*(i-1)/2 + (j - i)
}

// ToFull expands an Upper (implicit unit diagonal) into a dense matrix,
// leaving the lower triangle zero.
func (u Upper) ToFull() Matrix {
	var m Matrix
	for i := 0; i < N; i++ {
		for j := i; j < N; j++ {
			if i == j {
				m[N*i+j] = 1
			} else {
				m[N*i+j] = u[UpperIndex(i, j)]
			}
		}
	}
	return m
}

func diagonalToMatrix(d Diagonal) Matrix {
	var m Matrix
	for i := 0; i < N; i++ {
		m[N*i+i] = d[i]
	}
	return m
}

func multiply(a, b Matrix) Matrix {
	var c Matrix
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			var sum float32
			for k := 0; k < N; k++ {
				sum += a[N*i+k] * b[N*k+j]
			}
			c[N*i+j] = sum
		}
	}
	return c
}

func transpose(a Matrix) Matrix {
	var t Matrix
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			t[N*j+i] = a[N*i+j]
		}
	}
	return t
}

// Compose forms the dense product U*D*U' from the packed factors.
func Compose(u Upper, d Diagonal) Matrix {
	uFull := u.ToFull()
	dFull := diagonalToMatrix(d)
	ut := transpose(uFull)
	return multiply(uFull, multiply(dFull, ut))
}

// Decompose computes the U-D (modified Cholesky) factorization of a
// symmetric positive semi-definite matrix udu: udu = U*D*U'. It proceeds
// from the last row/column down to the first, per the classical Bierman
// recurrence. Behavior is undefined for non-PSD input; callers guarantee
// PSD inputs.
func Decompose(udu Matrix) (Upper, Diagonal) {
	var u Upper
	var d Diagonal

	for j := N - 1; j >= 0; j-- {
		for i := j; i >= 0; i-- {
			sigma := udu[N*i+j]
			for k := j + 1; k <= N-1; k++ {
				sigma -= u[UpperIndex(i, k)] * d[k] * u[UpperIndex(j, k)]
			}
			if i == j {
				d[j] = sigma
				u[UpperIndex(j, j)] = 1
			} else {
				u[UpperIndex(i, j)] = sigma / d[j]
			}
		}
	}
	return u, d
}

// PredictState advances state in place by the ordinary matrix-vector
// product state = f * state.
func PredictState(f Matrix, state *State) {
	var tmp State
	for i := 0; i < N; i++ {
		var sum float32
		for j := 0; j < N; j++ {
			sum += f[N*i+j] * state[j]
		}
		tmp[i] = sum
	}
	*state = tmp
}

// FuseState applies one scalar Bierman measurement update to state and the
// in/out U-D factors (qu, qd), mutated in place. innovation is the
// (possibly weighted) residual, alpha is the scalar measurement variance,
// and h is the measurement row (the linear map from state to the scalar
// observation).
func FuseState(innovation, alpha float32, h State, state *State, qu *Upper, qd *Diagonal) {
	var tempVector1, tempVector2 State

	tempAlpha := alpha
	gamma := float32(1.0) / tempAlpha

	for j := 0; j < N; j++ {
		tempVector1[j] = h[j]
		for i := 0; i <= j-1; i++ {
			tempVector1[j] += qu[UpperIndex(i, j)] * h[i]
		}
	}

	for j := 0; j < N; j++ {
		tempVector2[j] = qd[j] * tempVector1[j]
	}

	for j := 0; j < N; j++ {
		beta := tempAlpha
		tempAlpha += tempVector1[j] * tempVector2[j]
		lambda := -tempVector1[j] * gamma
		gamma = float32(1.0) / tempAlpha
		qd[j] *= beta * gamma

		for i := 0; i <= j-1; i++ {
			beta := qu[UpperIndex(i, j)]
			qu[UpperIndex(i, j)] = beta + tempVector2[i]*lambda
			tempVector2[i] += tempVector2[j] * beta
		}
	}

	scaledInnovation := gamma * innovation
	for j := 0; j < N; j++ {
		state[j] += scaledInnovation * tempVector2[j]
	}
}

// EstimateCovariance runs the Thornton time-update: given the state
// transition f and the input U-D factors of P and of the process noise Q,
// it produces the output U-D factors of f*P*f' + Q in (qu, qd), which on
// entry hold the P factors and on exit hold the predicted factors. inputQu
// and inputQd are the process-noise factors, built once at initialization
// and never mutated.
func EstimateCovariance(f Matrix, inputQu Upper, inputQd Diagonal, qu *Upper, qd *Diagonal) {
	var scratch Matrix // holds F*U (teacher's "F" scratch, distinct from the transition matrix f)

	for i := 0; i < N; i++ {
		for j := N - 1; j >= 0; j-- {
			sigma := f[N*i+j]
			for k := 0; k <= j-1; k++ {
				sigma += f[N*i+k] * qu[UpperIndex(k, j)]
			}
			scratch[N*i+j] = sigma
		}
	}

	var outQd Diagonal
	workingQu := inputQu // scratch copy of the process-noise U factor, mutated locally only

	for i := N - 1; i >= 0; i-- {
		var sigma float32
		for j := 0; j < N; j++ {
			sigma += scratch[N*i+j] * scratch[N*i+j] * qd[j]
			if i <= j {
				sigma += workingQu[UpperIndex(i, j)] * workingQu[UpperIndex(i, j)] * inputQd[j]
			}
		}
		outQd[i] = sigma

		for j := 0; j <= i-1; j++ {
			var s float32
			for k := 0; k < N; k++ {
				s += scratch[N*i+k] * qd[k] * scratch[N*j+k]
				if i <= k && j <= k {
					s += workingQu[UpperIndex(i, k)] * inputQd[k] * workingQu[UpperIndex(j, k)]
				}
			}

			qu[UpperIndex(j, i)] = s / outQd[i]

			for k := 0; k < N; k++ {
				scratch[N*j+k] += -qu[UpperIndex(j, i)] * scratch[N*i+k]
				if i <= k && j <= k {
					workingQu[UpperIndex(j, k)] += -qu[UpperIndex(j, i)] * workingQu[UpperIndex(i, k)]
				}
			}
		}
	}

	*qd = outQd
}
