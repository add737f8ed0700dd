package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/cadplugins/camtrack/linalg"
)

// ErrSingularRaySolve is returned when a pixel cannot be back-projected through a homography.
var ErrSingularRaySolve = errors.New("cannot resolve ray")

// maxRayCondition bounds the condition number of the left 3x3 block of H. Cameras without a
// finite projection centre, such as orthographic ones, fall above it.
const maxRayCondition = 1e12

// Ray is a half line in world space. Direction is unit length.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// PointAt returns Origin + t*Direction.
func (r Ray) PointAt(t float64) r3.Vector {
	return r.Origin.Add(r.Direction.Mul(t))
}

// DistanceTo returns the shortest distance between p and the infinite line carrying the ray.
func (r Ray) DistanceTo(p r3.Vector) float64 {
	return p.Sub(r.Origin).Cross(r.Direction).Norm()
}

func (r Ray) String() string {
	return fmt.Sprintf("origin (%.3f, %.3f, %.3f) direction (%.4f, %.4f, %.4f)",
		r.Origin.X, r.Origin.Y, r.Origin.Z, r.Direction.X, r.Direction.Y, r.Direction.Z)
}

// Ray returns the ray of world points consistent with pixel p under the tracker's camera
// model: the projection centre is taken to be the world origin, so the translation column of H
// is ignored and the direction solves M·d = [u v 1]ᵀ for the left 3x3 block M.
// Rays from several cameras are meant to be intersected by the caller.
func (h *Homography) Ray(p r2.Point) (Ray, error) {
	dir, err := h.pixelDirection(p)
	if err != nil {
		return Ray{}, err
	}
	return Ray{Direction: dir}, nil
}

// BackProject is like Ray but starts the ray at the projection centre recovered from H
// instead of the world origin.
func (h *Homography) BackProject(p r2.Point) (Ray, error) {
	dir, err := h.pixelDirection(p)
	if err != nil {
		return Ray{}, err
	}
	center, err := h.CameraCenter()
	if err != nil {
		return Ray{}, err
	}
	return Ray{Origin: center, Direction: dir}, nil
}

func (h *Homography) pixelDirection(p r2.Point) (r3.Vector, error) {
	m, _ := h.split()
	if cond := mat.Cond(m.Dense(), 2); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > maxRayCondition {
		return r3.Vector{}, errors.Wrapf(ErrSingularRaySolve, "camera matrix is ill conditioned (cond=%g)", cond)
	}
	rhs, err := linalg.New(3, 1, []float64{p.X, p.Y, 1})
	if err != nil {
		return r3.Vector{}, err
	}
	sol, err := linalg.Solve(m, rhs)
	if err != nil {
		return r3.Vector{}, errors.Wrapf(ErrSingularRaySolve, "pixel (%.2f, %.2f): %v", p.X, p.Y, err)
	}
	dir := r3.Vector{X: sol.At(0, 0), Y: sol.At(1, 0), Z: sol.At(2, 0)}
	norm := dir.Norm()
	if norm == 0 {
		return r3.Vector{}, errors.Wrapf(ErrSingularRaySolve, "pixel (%.2f, %.2f) has no direction", p.X, p.Y)
	}
	return dir.Mul(1 / norm), nil
}

// Triangulate returns the point with the least summed squared distance to all rays. At least two
// non-parallel rays are required.
func Triangulate(rays []Ray) (r3.Vector, error) {
	if len(rays) < 2 {
		return r3.Vector{}, errors.Errorf("need at least 2 rays to triangulate, got %d", len(rays))
	}
	// Σ (I - d dᵀ) x = Σ (I - d dᵀ) o
	a := linalg.Zeros(3, 3)
	b := linalg.Zeros(3, 1)
	for _, ray := range rays {
		d := [3]float64{ray.Direction.X, ray.Direction.Y, ray.Direction.Z}
		o := [3]float64{ray.Origin.X, ray.Origin.Y, ray.Origin.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				v := -d[r] * d[c]
				if r == c {
					v++
				}
				a.Set(r, c, a.At(r, c)+v)
				b.Set(r, 0, b.At(r, 0)+v*o[c])
			}
		}
	}
	x, err := linalg.Solve(a, b)
	if err != nil {
		return r3.Vector{}, errors.Wrap(err, "rays are parallel")
	}
	return r3.Vector{X: x.At(0, 0), Y: x.At(1, 0), Z: x.At(2, 0)}, nil
}
