package transform

import (
	"math"

	"github.com/golang/geo/r3"
)

// PinholeCamera describes an ideal camera without lens distortion. The camera looks down its
// local +z axis and is rotated by Pitch degrees about the world x axis.
type PinholeCamera struct {
	Focal  float64
	Cx, Cy float64
	Center r3.Vector
	Pitch  float64
}

// Homography returns the normalized camera matrix K[R|-RC] of the camera.
func (pc PinholeCamera) Homography() (*Homography, error) {
	a := pc.Pitch * math.Pi / 180
	rot := [3][3]float64{
		{1, 0, 0},
		{0, math.Cos(a), -math.Sin(a)},
		{0, math.Sin(a), math.Cos(a)},
	}
	k := [3][3]float64{{pc.Focal, 0, pc.Cx}, {0, pc.Focal, pc.Cy}, {0, 0, 1}}
	c := [3]float64{pc.Center.X, pc.Center.Y, pc.Center.Z}

	var rt [3][4]float64
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			rt[r][col] = rot[r][col]
			rt[r][3] -= rot[r][col] * c[col]
		}
	}
	var p [3][4]float64
	for r := 0; r < 3; r++ {
		for col := 0; col < 4; col++ {
			for i := 0; i < 3; i++ {
				p[r][col] += k[r][i] * rt[i][col]
			}
		}
	}
	return NewHomographyFromMatrix(p)
}
