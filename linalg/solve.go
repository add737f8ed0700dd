package linalg

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrSingularMatrix is returned when a system has no unique solution.
	ErrSingularMatrix = errors.New("matrix is singular")
	// ErrDimensionMismatch is returned when operand shapes are incompatible.
	ErrDimensionMismatch = errors.New("matrix dimensions do not match")
)

// Solve solves A·X = B for X using Gauss-Jordan elimination with partial pivoting. A must be
// square and B must have as many rows as A; B may have several columns. Neither input is
// modified.
func Solve(a, b *Matrix) (*Matrix, error) {
	n, ac := a.Dims()
	if n != ac {
		return nil, errors.Wrapf(ErrDimensionMismatch, "cannot solve with non-square matrix %s", dimString(a))
	}
	br, bc := b.Dims()
	if br != n {
		return nil, errors.Wrapf(ErrDimensionMismatch, "left side is %s but right side is %s", dimString(a), dimString(b))
	}

	// augmented [A|B]
	aug := make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, n+bc)
		copy(row, a.Row(r))
		copy(row[n:], b.Row(r))
		aug[r] = row
	}

	if err := gaussJordan(aug, n); err != nil {
		return nil, err
	}

	x := Zeros(n, bc)
	for r := 0; r < n; r++ {
		for c := 0; c < bc; c++ {
			x.Set(r, c, aug[r][n+c])
		}
	}
	return x, nil
}

// Inverse returns A⁻¹, computed by solving against the identity.
func Inverse(a *Matrix) (*Matrix, error) {
	n, _ := a.Dims()
	return Solve(a, Identity(n))
}

// gaussJordan reduces the first n columns of aug to the identity in place.
func gaussJordan(aug [][]float64, n int) error {
	for col := 0; col < n; col++ {
		pivot := col
		maxAbs := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug[r][col]); v > maxAbs {
				maxAbs = v
				pivot = r
			}
		}
		if maxAbs == 0 || math.IsNaN(maxAbs) || math.IsInf(maxAbs, 0) {
			return errors.Wrapf(ErrSingularMatrix, "no pivot in column %d", col)
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		div := aug[col][col]
		for c := col; c < len(aug[col]); c++ {
			aug[col][c] /= div
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for c := col; c < len(aug[r]); c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}
	return nil
}
