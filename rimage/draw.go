package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// Annotation colors.
var (
	BoxColor    = mustHex("#32cd32")
	MarkerColor = mustHex("#4b0082") // indigo
	FillColor   = mustHex("#fffdd0") // cream
	TextColor   = mustHex("#ffffff")
)

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

func mustHex(s string) color.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c.Clamped()
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawRectangleEmpty strokes the outline of r.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// Annotate draws the outcome of a processed frame on a copy of img: a box around every accepted
// blob and, when a marker was found, a filled box and a dot on the chosen one. A non-empty label
// is written in the top left corner.
func Annotate(img image.Image, res FrameResult, label string) image.Image {
	dc := gg.NewContextForImage(img)
	for _, b := range res.Blobs {
		DrawRectangleEmpty(dc, b.Rect, BoxColor, 1)
	}
	if res.Detected && len(res.Blobs) > 0 {
		r := res.Blobs[0].Rect
		dc.SetColor(FillColor)
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Fill()

		dc.SetColor(MarkerColor)
		dc.DrawCircle(res.Point.X, res.Point.Y, 3)
		dc.Fill()
	}
	if label != "" {
		DrawString(dc, label, image.Pt(4, 4), TextColor, 14)
	}
	return dc.Image()
}
