package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"montewalk/internal/domain"
)

func assetName(i int, names []string) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("asset[%d]", i)
}

func checkMatrix(op string, aligned [][]float64, names []string) error {
	if len(aligned) == 0 {
		return domain.InsufficientData(op, "", "no series")
	}
	n := len(aligned[0])
	if n < 2 {
		return domain.InsufficientData(op, assetName(0, names), "need at least 2 observations, got %d", n)
	}
	for i, col := range aligned {
		if len(col) != n {
			return domain.InvalidParameter(op, assetName(i, names), "length %d differs from %d", len(col), n)
		}
	}
	return nil
}

// CorrelationMatrix returns the Pearson correlation of each pair of series
// in aligned (one slice per asset, equal lengths). The diagonal is exactly 1
// and every off-diagonal entry is computed once and stored symmetrically.
// Optional names label the offending asset in errors.
func CorrelationMatrix(aligned [][]float64, names ...string) (*mat.SymDense, error) {
	const op = "risk.CorrelationMatrix"
	if err := checkMatrix(op, aligned, names); err != nil {
		return nil, err
	}
	for i, col := range aligned {
		if constant(col) {
			return nil, domain.InsufficientData(op, assetName(i, names), "series has zero variance")
		}
	}

	k := len(aligned)
	corr := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < k; j++ {
			c := stat.Correlation(aligned[i], aligned[j], nil)
			// Guard rounding just outside [-1,1].
			c = math.Max(-1, math.Min(1, c))
			corr.SetSym(i, j, c)
		}
	}
	return corr, nil
}

// CovarianceMatrix returns the sample covariance matrix of aligned.
func CovarianceMatrix(aligned [][]float64, names ...string) (*mat.SymDense, error) {
	const op = "risk.CovarianceMatrix"
	if err := checkMatrix(op, aligned, names); err != nil {
		return nil, err
	}
	k := len(aligned)
	cov := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			cov.SetSym(i, j, stat.Covariance(aligned[i], aligned[j], nil))
		}
	}
	return cov, nil
}

// CovarianceFromCorrelation returns diag(sigma)*corr*diag(sigma).
func CovarianceFromCorrelation(sigma []float64, corr *mat.SymDense) (*mat.SymDense, error) {
	const op = "risk.CovarianceFromCorrelation"
	if corr == nil {
		return nil, domain.InvalidParameter(op, "correlation", "nil matrix")
	}
	k := corr.SymmetricDim()
	if len(sigma) != k {
		return nil, domain.InvalidParameter(op, "sigma", "has %d entries for a %dx%d correlation matrix", len(sigma), k, k)
	}
	cov := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			cov.SetSym(i, j, sigma[i]*corr.At(i, j)*sigma[j])
		}
	}
	return cov, nil
}

// Rows converts a symmetric matrix into nested slices for JSON output.
func Rows(m *mat.SymDense) [][]float64 {
	if m == nil {
		return nil
	}
	k := m.SymmetricDim()
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
