// Package transform holds the projective camera model used by the tracker: the DLT homography
// computed from calibration points and the back-projection of tracked pixels into rays.
package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/cadplugins/camtrack/linalg"
)

// HomographyParams is the number of free parameters of a Homography.
const HomographyParams = 11

// ErrPointAtInfinity is returned when a point projects onto the line at infinity.
var ErrPointAtInfinity = errors.New("point projects to infinity")

// Homography is a 3x4 projective matrix mapping a padded world point [x y z 1] to a homogeneous
// pixel coordinate. Its bottom-right entry is always 1. A Homography is immutable.
type Homography struct {
	h [3][4]float64
}

// NewHomography builds a Homography from its 11 free parameters in row-major order; the
// trailing entry is fixed to 1.
func NewHomography(params []float64) (*Homography, error) {
	if len(params) != HomographyParams {
		return nil, errors.Errorf("input to NewHomography must have length of %d. Has length of %d", HomographyParams, len(params))
	}
	var h Homography
	for i, v := range params {
		h.h[i/4][i%4] = v
	}
	h.h[2][3] = 1
	return &h, nil
}

// NewHomographyFromMatrix normalizes a full 3x4 camera matrix so its bottom-right entry is 1.
func NewHomographyFromMatrix(p [3][4]float64) (*Homography, error) {
	scale := p[2][3]
	if scale == 0 {
		return nil, errors.New("camera matrix cannot be normalized: bottom-right entry is 0")
	}
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			h.h[r][c] = p[r][c] / scale
		}
	}
	return &h, nil
}

// At returns the entry at row r, column c.
func (h *Homography) At(r, c int) float64 {
	return h.h[r][c]
}

// Values returns all 12 entries in row-major order.
func (h *Homography) Values() [12]float64 {
	var out [12]float64
	for i := range out {
		out[i] = h.h[i/4][i%4]
	}
	return out
}

// Matrix returns the homography as a 3x4 linalg matrix.
func (h *Homography) Matrix() *linalg.Matrix {
	vals := h.Values()
	m, err := linalg.New(3, 4, vals[:])
	if err != nil {
		panic(err) // fixed shape
	}
	return m
}

// Project maps a world point to its pixel coordinate.
func (h *Homography) Project(p r3.Vector) (r2.Point, error) {
	x := [4]float64{p.X, p.Y, p.Z, 1}
	var out [3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			out[r] += h.h[r][c] * x[c]
		}
	}
	if out[2] == 0 {
		return r2.Point{}, errors.Wrapf(ErrPointAtInfinity, "projecting %v", p)
	}
	return r2.Point{X: out[0] / out[2], Y: out[1] / out[2]}, nil
}

// CameraCenter returns the world point that H maps to the zero vector, i.e. the projection
// centre implied by the calibration.
func (h *Homography) CameraCenter() (r3.Vector, error) {
	m, t := h.split()
	c, err := linalg.Solve(m, t)
	if err != nil {
		return r3.Vector{}, errors.Wrap(ErrSingularRaySolve, err.Error())
	}
	return r3.Vector{X: -c.At(0, 0), Y: -c.At(1, 0), Z: -c.At(2, 0)}, nil
}

// split returns the left 3x3 block of H and its last column.
func (h *Homography) split() (*linalg.Matrix, *linalg.Matrix) {
	m := linalg.Zeros(3, 3)
	t := linalg.Zeros(3, 1)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, h.h[r][c])
		}
		t.Set(r, 0, h.h[r][3])
	}
	return m, t
}

func (h *Homography) String() string {
	return fmt.Sprintf("[%.6g %.6g %.6g %.6g; %.6g %.6g %.6g %.6g; %.6g %.6g %.6g %.6g]",
		h.h[0][0], h.h[0][1], h.h[0][2], h.h[0][3],
		h.h[1][0], h.h[1][1], h.h[1][2], h.h[1][3],
		h.h[2][0], h.h[2][1], h.h[2][2], h.h[2][3])
}
