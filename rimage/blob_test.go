package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func grayFrom(rows []string) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				g.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return g
}

func TestThreshold(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.SetGray(0, 0, color.Gray{Y: 199})
	g.SetGray(1, 0, color.Gray{Y: 200})
	g.SetGray(2, 0, color.Gray{Y: 255})

	out := Threshold(g, DefaultThreshold)
	test.That(t, out.GrayAt(0, 0).Y, test.ShouldEqual, 0)
	test.That(t, out.GrayAt(1, 0).Y, test.ShouldEqual, 255)
	test.That(t, out.GrayAt(2, 0).Y, test.ShouldEqual, 255)
}

func TestErode(t *testing.T) {
	g := grayFrom([]string{
		"........",
		".###....",
		".###..#.",
		".###....",
		"........",
	})
	out := Erode(g)
	test.That(t, out.Bounds(), test.ShouldResemble, g.Bounds())
	test.That(t, out.GrayAt(2, 2).Y, test.ShouldEqual, 255)
	test.That(t, out.GrayAt(1, 1).Y, test.ShouldEqual, 0)
	test.That(t, out.GrayAt(6, 2).Y, test.ShouldEqual, 0)
}

func TestDetectBlobs(t *testing.T) {
	g := grayFrom([]string{
		"##......",
		"..#.....",
		"...#..##",
		"......##",
		"........",
		"#.......",
	})
	blobs := DetectBlobs(g, BlobFilter{MinSize: 1, MaxSize: 10})
	test.That(t, blobs, test.ShouldHaveLength, 3)

	// diagonal neighbors join
	test.That(t, blobs[0].Rect, test.ShouldResemble, image.Rect(0, 0, 4, 3))
	test.That(t, blobs[0].Area(), test.ShouldEqual, 4)
	test.That(t, blobs[1].Rect, test.ShouldResemble, image.Rect(6, 2, 8, 4))
	test.That(t, blobs[2].Area(), test.ShouldEqual, 1)

	SortBlobsByArea(blobs)
	test.That(t, blobs[0].Area(), test.ShouldEqual, 4)
	test.That(t, blobs[1].Area(), test.ShouldEqual, 4)
	test.That(t, blobs[0].Rect.Min, test.ShouldResemble, image.Pt(0, 0))

	// width 4 passes, height 3 does not
	blobs = DetectBlobs(g, BlobFilter{MinSize: 4, MaxSize: 10})
	test.That(t, blobs, test.ShouldBeEmpty)
}

func TestBlobFilterBounds(t *testing.T) {
	f := DefaultBlobFilter()
	test.That(t, f.Accepts(Blob{Rect: image.Rect(0, 0, 5, 20)}), test.ShouldBeTrue)
	test.That(t, f.Accepts(Blob{Rect: image.Rect(0, 0, 4, 10)}), test.ShouldBeFalse)
	test.That(t, f.Accepts(Blob{Rect: image.Rect(0, 0, 10, 21)}), test.ShouldBeFalse)
}

func TestWeightedCentroid(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	g.SetGray(2, 2, color.Gray{Y: 100})
	g.SetGray(4, 2, color.Gray{Y: 100})
	g.SetGray(4, 6, color.Gray{Y: 200})

	pt, ok := WeightedCentroid(g, image.Rect(0, 0, 10, 10))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pt.X, test.ShouldAlmostEqual, 3.5)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 4)

	// only the rectangle is weighed
	pt, ok = WeightedCentroid(g, image.Rect(0, 0, 5, 3))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pt.X, test.ShouldAlmostEqual, 3)

	_, ok = WeightedCentroid(g, image.Rect(6, 6, 9, 9))
	test.That(t, ok, test.ShouldBeFalse)
}
