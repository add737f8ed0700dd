package rimage

import (
	"image"
	"slices"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"
)

// Blob is an 8-connected region of foreground pixels in a binary image.
type Blob struct {
	Rect   image.Rectangle
	Pixels []image.Point
}

// Area is the number of pixels in the blob.
func (b Blob) Area() int {
	return len(b.Pixels)
}

// BlobFilter bounds the size of the bounding box of accepted blobs, inclusive, in both width and
// height.
type BlobFilter struct {
	MinSize int
	MaxSize int
}

// DefaultBlobFilter accepts blobs between 5 and 20 pixels on each side.
func DefaultBlobFilter() BlobFilter {
	return BlobFilter{MinSize: 5, MaxSize: 20}
}

// Accepts reports whether b fits the filter.
func (f BlobFilter) Accepts(b Blob) bool {
	w, h := b.Rect.Dx(), b.Rect.Dy()
	return w >= f.MinSize && w <= f.MaxSize && h >= f.MinSize && h <= f.MaxSize
}

var neighbors = [8]image.Point{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// DetectBlobs labels the non-zero pixels of bin into 8-connected components and returns the
// ones accepted by filter, in scan order of their first pixel.
func DetectBlobs(bin *image.Gray, filter BlobFilter) []Blob {
	b := bin.Bounds()
	seen := make([]bool, b.Dx()*b.Dy())
	idx := func(p image.Point) int {
		return (p.Y-b.Min.Y)*b.Dx() + (p.X - b.Min.X)
	}

	var blobs []Blob
	var stack []image.Point
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			start := image.Pt(x, y)
			if seen[idx(start)] || bin.GrayAt(x, y).Y == 0 {
				continue
			}
			seen[idx(start)] = true
			blob := Blob{Rect: image.Rectangle{Min: start, Max: start.Add(image.Pt(1, 1))}}
			stack = append(stack[:0], start)
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				blob.Pixels = append(blob.Pixels, p)
				blob.Rect = blob.Rect.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
				for _, d := range neighbors {
					n := p.Add(d)
					if !n.In(b) || seen[idx(n)] || bin.GrayAt(n.X, n.Y).Y == 0 {
						continue
					}
					seen[idx(n)] = true
					stack = append(stack, n)
				}
			}
			blobs = append(blobs, blob)
		}
	}

	return lo.Filter(blobs, func(blob Blob, _ int) bool {
		return filter.Accepts(blob)
	})
}

// SortBlobsByArea orders blobs largest first. Blobs of equal area keep their relative order.
func SortBlobsByArea(blobs []Blob) {
	slices.SortStableFunc(blobs, func(a, b Blob) int {
		return b.Area() - a.Area()
	})
}

// WeightedCentroid returns the centre of mass of rect using the intensities of g as weights. It
// returns false when every pixel in rect is zero.
func WeightedCentroid(g *image.Gray, rect image.Rectangle) (r2.Point, bool) {
	rect = rect.Intersect(g.Bounds())
	var sum, sx, sy float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			w := float64(g.GrayAt(x, y).Y)
			sum += w
			sx += w * float64(x)
			sy += w * float64(y)
		}
	}
	if sum == 0 {
		return r2.Point{}, false
	}
	return r2.Point{X: sx / sum, Y: sy / sum}, true
}
