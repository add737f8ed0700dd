package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestRayFromOriginHitsPoint(t *testing.T) {
	// a camera sitting just behind the world origin, looking down +z
	h := pinhole(t, 800, 320, 240, r3.Vector{Z: -1e-3}, 0)

	for _, p := range []r3.Vector{
		{X: 10, Y: 20, Z: 500},
		{X: -150, Y: 40, Z: 900},
		{X: 60, Y: -75, Z: 320},
	} {
		px, err := h.Project(p)
		test.That(t, err, test.ShouldBeNil)

		ray, err := h.Ray(px)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ray.Origin, test.ShouldResemble, r3.Vector{})
		test.That(t, ray.Direction.Norm(), test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, ray.DistanceTo(p), test.ShouldBeLessThan, 1e-2)
	}
}

func TestBackProjectDefaultCalibration(t *testing.T) {
	world, pixels := DefaultCalibrationPoints()
	h, err := Calibrate(world, pixels)
	test.That(t, err, test.ShouldBeNil)

	target := r3.Vector{X: 35, Y: 70, Z: 120}
	px, err := h.Project(target)
	test.That(t, err, test.ShouldBeNil)

	ray, err := h.BackProject(px)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ray.DistanceTo(target), test.ShouldBeLessThan, 1e-6)
	test.That(t, ray.Origin.X, test.ShouldAlmostEqual, 50, 0.5)

	// the target lies in front of the camera
	along := target.Sub(ray.Origin).Dot(ray.Direction)
	test.That(t, math.Abs(along), test.ShouldBeGreaterThan, 100)
	test.That(t, ray.PointAt(along).Distance(target), test.ShouldBeLessThan, 1e-6)
}

func TestRaySingular(t *testing.T) {
	h, err := NewHomography([]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)

	_, err = h.Ray(r2.Point{X: 10, Y: 10})
	test.That(t, errors.Is(err, ErrSingularRaySolve), test.ShouldBeTrue)

	_, err = h.BackProject(r2.Point{X: 10, Y: 10})
	test.That(t, errors.Is(err, ErrSingularRaySolve), test.ShouldBeTrue)
}

func TestTriangulate(t *testing.T) {
	left := pinhole(t, 800, 320, 240, r3.Vector{X: -200, Y: 0, Z: -800}, 0)
	right := pinhole(t, 800, 320, 240, r3.Vector{X: 250, Y: -40, Z: -700}, 8)

	target := r3.Vector{X: 30, Y: 15, Z: 60}
	rays := make([]Ray, 0, 2)
	for _, h := range []*Homography{left, right} {
		px, err := h.Project(target)
		test.That(t, err, test.ShouldBeNil)
		ray, err := h.BackProject(px)
		test.That(t, err, test.ShouldBeNil)
		rays = append(rays, ray)
	}

	got, err := Triangulate(rays)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Distance(target), test.ShouldBeLessThan, 1e-6)

	_, err = Triangulate(rays[:1])
	test.That(t, err, test.ShouldNotBeNil)

	parallel := []Ray{
		{Direction: r3.Vector{Z: 1}},
		{Origin: r3.Vector{X: 5}, Direction: r3.Vector{Z: 1}},
	}
	_, err = Triangulate(parallel)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRayHelpers(t *testing.T) {
	ray := Ray{Origin: r3.Vector{X: 1}, Direction: r3.Vector{Y: 1}}
	test.That(t, ray.PointAt(3), test.ShouldResemble, r3.Vector{X: 1, Y: 3})
	test.That(t, ray.DistanceTo(r3.Vector{X: 4, Y: 10}), test.ShouldAlmostEqual, 3)
	test.That(t, ray.String(), test.ShouldContainSubstring, "origin (1.000")
}

func TestRayOrthographicCalibration(t *testing.T) {
	// pixels that ignore depth come from a camera at infinity
	world, _ := DefaultCalibrationPoints()
	pixels := make([]r2.Point, len(world))
	for i, p := range world {
		pixels[i] = r2.Point{X: p.X + 100, Y: p.Y + 100}
	}
	h, err := Calibrate(world, pixels)
	test.That(t, err, test.ShouldBeNil)

	report, err := ReprojectionReport(h, world, pixels)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Max, test.ShouldBeLessThan, 1e-6)

	_, err = h.Ray(r2.Point{X: 150, Y: 150})
	test.That(t, errors.Is(err, ErrSingularRaySolve), test.ShouldBeTrue)
}
