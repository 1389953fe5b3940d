// Package vecmath holds the numeric core of the ranking pipeline: cosine
// similarity and the principal-component refinement used by deepsense.
package vecmath

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/tanagra-labs/querent/internal/domain"
)

// Cosine returns the cosine similarity of two equal-length vectors in [-1, 1].
// A zero-norm operand yields 0 rather than a division by zero.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}

	return floats.Dot(a, b) / (na * nb), nil
}
