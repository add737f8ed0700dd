// Package linalg provides the small dense matrix toolkit used by calibration and ray
// reconstruction: construction, multiplication, transpose, Gauss-Jordan solving and inversion.
package linalg

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense row-major float64 matrix.
type Matrix struct {
	d *mat.Dense
}

// New creates a rows x cols matrix. If data is nil the matrix is zeroed, otherwise data must
// hold rows*cols values in row-major order.
func New(rows, cols int, data []float64) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("invalid matrix dimensions %dx%d", rows, cols)
	}
	if data != nil && len(data) != rows*cols {
		return nil, errors.Errorf("matrix of size %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data))
	}
	if data != nil {
		data = append([]float64(nil), data...)
	}
	return &Matrix{mat.NewDense(rows, cols, data)}, nil
}

// Zeros creates a zeroed rows x cols matrix. It panics on non-positive dimensions, like gonum.
func Zeros(rows, cols int) *Matrix {
	return &Matrix{mat.NewDense(rows, cols, nil)}
}

// NewFromRows builds a matrix from equal length rows.
func NewFromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("cannot build a matrix from no rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return &Matrix{mat.NewDense(len(rows), cols, data)}, nil
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Matrix {
	m := Zeros(n, n)
	for i := 0; i < n; i++ {
		m.d.Set(i, i, 1)
	}
	return m
}

// FromDense wraps a copy of a gonum matrix.
func FromDense(m mat.Matrix) *Matrix {
	return &Matrix{mat.DenseCopyOf(m)}
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (int, int) {
	return m.d.Dims()
}

// At returns the value at row r, column c.
func (m *Matrix) At(r, c int) float64 {
	return m.d.At(r, c)
}

// Set writes the value at row r, column c.
func (m *Matrix) Set(r, c int, v float64) {
	m.d.Set(r, c, v)
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	return mat.Row(nil, i, m.d)
}

// Col returns a copy of column j.
func (m *Matrix) Col(j int) []float64 {
	return mat.Col(nil, j, m.d)
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{mat.DenseCopyOf(m.d)}
}

// Dense exposes the matrix as a gonum matrix. The result must not be modified.
func (m *Matrix) Dense() mat.Matrix {
	return m.d
}

// T returns the transpose as a new matrix.
func (m *Matrix) T() *Matrix {
	return &Matrix{mat.DenseCopyOf(m.d.T())}
}

// Mul returns the product a*b.
func Mul(a, b *Matrix) (*Matrix, error) {
	_, ac := a.Dims()
	br, _ := b.Dims()
	if ac != br {
		return nil, errors.Wrapf(ErrDimensionMismatch, "cannot multiply %s by %s", dimString(a), dimString(b))
	}
	var out mat.Dense
	out.Mul(a.d, b.d)
	return &Matrix{&out}, nil
}

// String formats the matrix one row per line.
func (m *Matrix) String() string {
	rows, cols := m.Dims()
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		sb.WriteString("[")
		for c := 0; c < cols; c++ {
			if c > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%.6g", m.At(r, c))
		}
		sb.WriteString("]\n")
	}
	return sb.String()
}

func dimString(m *Matrix) string {
	r, c := m.Dims()
	return fmt.Sprintf("%dx%d", r, c)
}
