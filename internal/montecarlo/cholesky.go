package montecarlo

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"montewalk/internal/domain"
)

// pivotTolerance scales the largest diagonal entry to decide when a pivot is
// numerically zero.
const pivotTolerance = 1e-10

// Cholesky returns the lower-triangular L with L*L' = a. Unlike
// mat.Cholesky it accepts positive-semidefinite input: a pivot within
// tolerance of zero produces a zero column, so perfectly correlated assets
// share the same shock. A pivot that is negative beyond the tolerance, or a
// zero pivot whose column residuals are not zero, fails with a
// non-positive-definite error.
func Cholesky(a *mat.SymDense) (*mat.TriDense, error) {
	const op = "montecarlo.Cholesky"
	n := a.SymmetricDim()
	if n == 0 {
		return nil, domain.InvalidParameter(op, "matrix", "empty matrix")
	}

	var maxDiag float64
	for i := 0; i < n; i++ {
		maxDiag = math.Max(maxDiag, math.Abs(a.At(i, i)))
	}
	tol := pivotTolerance * maxDiag

	l := mat.NewTriDense(n, mat.Lower, nil)
	for j := 0; j < n; j++ {
		d := a.At(j, j)
		for k := 0; k < j; k++ {
			d -= l.At(j, k) * l.At(j, k)
		}
		if d < -tol || math.IsNaN(d) {
			return nil, domain.NonPositiveDefinite(op, "pivot %d is %g", j, d)
		}
		if d <= tol {
			// Zero column; the rest of it must vanish too or a is indefinite.
			for i := j + 1; i < n; i++ {
				s := a.At(i, j)
				for k := 0; k < j; k++ {
					s -= l.At(i, k) * l.At(j, k)
				}
				if math.Abs(s) > tol || math.IsNaN(s) {
					return nil, domain.NonPositiveDefinite(op, "pivot %d is zero but column residual %g", j, s)
				}
			}
			continue
		}
		ljj := math.Sqrt(d)
		l.SetTri(j, j, ljj)
		for i := j + 1; i < n; i++ {
			s := a.At(i, j)
			for k := 0; k < j; k++ {
				s -= l.At(i, k) * l.At(j, k)
			}
			l.SetTri(i, j, s/ljj)
		}
	}
	return l, nil
}
