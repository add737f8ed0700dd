package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/cadplugins/camtrack/linalg"
)

// MinCalibrationPoints is the smallest number of point pairs that determines the 11 homography
// parameters (two equations per pair).
const MinCalibrationPoints = 6

// maxNormalCondition bounds the condition number of the column-equilibrated AᵀA. Elimination
// alone only rejects exact zero pivots, so nearly degenerate layouts are caught here instead of
// producing garbage. Equilibrating first keeps the bound independent of world and pixel units.
const maxNormalCondition = 1e15

var (
	// ErrSingularCalibration is returned when the calibration points do not determine a homography.
	ErrSingularCalibration = errors.New("calibration matrix is singular")
	// ErrMismatchedPoints is returned when the world and pixel point lists differ in length.
	ErrMismatchedPoints = errors.New("world and pixel calibration points must have the same length")
)

// Calibrate computes the least squares DLT homography mapping each world point onto its paired
// pixel. The normal equations (AᵀA)⁻¹AᵀB are solved by Gauss-Jordan inversion.
func Calibrate(world []r3.Vector, pixels []r2.Point) (*Homography, error) {
	if len(world) != len(pixels) {
		return nil, errors.Wrapf(ErrMismatchedPoints, "got %d world and %d pixel points", len(world), len(pixels))
	}
	if len(world) < MinCalibrationPoints {
		return nil, errors.Wrapf(ErrSingularCalibration,
			"need at least %d calibration points, got %d", MinCalibrationPoints, len(world))
	}

	a, b := dltSystem(world, pixels)
	at := a.T()
	ata, err := linalg.Mul(at, a)
	if err != nil {
		return nil, err
	}
	atb, err := linalg.Mul(at, b)
	if err != nil {
		return nil, err
	}

	// Solve (S·AᵀA·S)·y = S·AᵀB with S = diag(AᵀA)^-1/2, then h = S·y. The scaled system has the
	// same solution as the raw one but its conditioning does not depend on coordinate magnitudes.
	scale := make([]float64, HomographyParams)
	for i := range scale {
		d := ata.At(i, i)
		if !(d > 0) || math.IsInf(d, 1) {
			return nil, errors.Wrapf(ErrSingularCalibration, "parameter %d is not constrained by the points", i)
		}
		scale[i] = 1 / math.Sqrt(d)
	}
	normal := linalg.Zeros(HomographyParams, HomographyParams)
	rhs := linalg.Zeros(HomographyParams, 1)
	for r := 0; r < HomographyParams; r++ {
		for c := 0; c < HomographyParams; c++ {
			normal.Set(r, c, ata.At(r, c)*scale[r]*scale[c])
		}
		rhs.Set(r, 0, atb.At(r, 0)*scale[r])
	}
	if cond := mat.Cond(normal.Dense(), 2); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > maxNormalCondition {
		return nil, errors.Wrapf(ErrSingularCalibration, "normal matrix is ill conditioned (cond=%g)", cond)
	}
	normalInv, err := linalg.Inverse(normal)
	if err != nil {
		return nil, errors.Wrap(ErrSingularCalibration, err.Error())
	}
	y, err := linalg.Mul(normalInv, rhs)
	if err != nil {
		return nil, err
	}
	params := y.Col(0)
	for i := range params {
		params[i] *= scale[i]
	}
	return NewHomography(params)
}

// dltSystem builds the 2N x 11 coefficient matrix and the 2N x 1 target vector.
func dltSystem(world []r3.Vector, pixels []r2.Point) (*linalg.Matrix, *linalg.Matrix) {
	n := len(world)
	a := linalg.Zeros(2*n, HomographyParams)
	b := linalg.Zeros(2*n, 1)
	for i := range world {
		x, y, z := world[i].X, world[i].Y, world[i].Z
		u, v := pixels[i].X, pixels[i].Y

		r := 2 * i
		for c, val := range []float64{x, y, z, 1, 0, 0, 0, 0, -u * x, -u * y, -u * z} {
			a.Set(r, c, val)
		}
		b.Set(r, 0, u)

		for c, val := range []float64{0, 0, 0, 0, x, y, z, 1, -v * x, -v * y, -v * z} {
			a.Set(r+1, c, val)
		}
		b.Set(r+1, 0, v)
	}
	return a, b
}

// CalibrationReport summarizes how well a homography reproduces its calibration points.
type CalibrationReport struct {
	Errors []float64 // per point reprojection distance in pixels
	Mean   float64
	Max    float64
	RMS    float64
}

// ReprojectionReport projects every world point through h and measures the pixel distance to its
// paired observation.
func ReprojectionReport(h *Homography, world []r3.Vector, pixels []r2.Point) (CalibrationReport, error) {
	if len(world) != len(pixels) {
		return CalibrationReport{}, errors.Wrapf(ErrMismatchedPoints, "got %d world and %d pixel points", len(world), len(pixels))
	}
	if len(world) == 0 {
		return CalibrationReport{}, errors.New("no points to report on")
	}
	errs := make([]float64, len(world))
	for i, p := range world {
		proj, err := h.Project(p)
		if err != nil {
			return CalibrationReport{}, err
		}
		errs[i] = proj.Sub(pixels[i]).Norm()
	}

	report := CalibrationReport{Errors: errs}
	var err error
	if report.Mean, err = stats.Mean(errs); err != nil {
		return CalibrationReport{}, err
	}
	if report.Max, err = stats.Max(errs); err != nil {
		return CalibrationReport{}, err
	}
	squares := make([]float64, len(errs))
	for i, e := range errs {
		squares[i] = e * e
	}
	meanSquare, err := stats.Mean(squares)
	if err != nil {
		return CalibrationReport{}, err
	}
	report.RMS = math.Sqrt(meanSquare)
	return report, nil
}

// DefaultCalibrationPoints returns the built-in reference set: the corners of a 100mm cube plus
// two interior points, and where they appear in a 640x480 frame of the reference rig.
func DefaultCalibrationPoints() ([]r3.Vector, []r2.Point) {
	world := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 100, Y: 0, Z: 0},
		{X: 0, Y: 100, Z: 0},
		{X: 100, Y: 100, Z: 0},
		{X: 0, Y: 0, Z: 100},
		{X: 100, Y: 0, Z: 100},
		{X: 0, Y: 100, Z: 100},
		{X: 100, Y: 100, Z: 100},
		{X: 50, Y: 50, Z: 150},
		{X: 0, Y: 50, Z: 50},
	}
	pixels := []r2.Point{
		{X: 220.925, Y: 191.501},
		{X: 419.075, Y: 191.501},
		{X: 225.777, Y: 378.204},
		{X: 414.223, Y: 378.204},
		{X: 240.247, Y: 167.796},
		{X: 399.753, Y: 167.796},
		{X: 243.421, Y: 320.481},
		{X: 396.579, Y: 320.481},
		{X: 320.0, Y: 230.364},
		{X: 233.614, Y: 264.25},
	}
	return world, pixels
}
