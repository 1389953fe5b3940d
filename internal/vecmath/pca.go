package vecmath

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tanagra-labs/querent/internal/domain"
)

// PrincipalComponent computes the dominant principal component of an
// N x VectorDims sample: mean-centered covariance (N-1 divisor), symmetric
// eigendecomposition, eigenvector of the largest eigenvalue, unit L2 norm.
// The sign of the returned vector is unspecified.
func PrincipalComponent(vectors [][]float64) ([]float64, error) {
	n := len(vectors)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d, need at least 2", domain.ErrInsufficientSamples, n)
	}
	for i, v := range vectors {
		if len(v) != domain.VectorDims {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d",
				domain.ErrDimensionMismatch, i, len(v), domain.VectorDims)
		}
	}

	data := mat.NewDense(n, domain.VectorDims, nil)
	for i, v := range vectors {
		data.SetRow(i, v)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, fmt.Errorf("eigendecomposition did not converge")
	}

	// EigenSym orders eigenvalues ascending; the dominant component is last.
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	component := mat.Col(nil, domain.VectorDims-1, &vecs)

	if norm := floats.Norm(component, 2); norm > 0 {
		floats.Scale(1/norm, component)
	}

	return component, nil
}
