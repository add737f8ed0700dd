// Package rimage holds the per-frame image processing used to locate a tracked marker:
// channel extraction, binarization, erosion, blob detection and centroid estimation.
package rimage

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
)

// Channel selects one color plane of an RGB frame.
type Channel int

// The color planes a frame can be split into.
const (
	Red Channel = iota
	Green
	Blue
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return "unknown"
	}
}

// ChannelFromString parses "red", "green" or "blue".
func ChannelFromString(s string) (Channel, error) {
	switch s {
	case "red", "":
		return Red, nil
	case "green":
		return Green, nil
	case "blue":
		return Blue, nil
	default:
		return Red, errors.Errorf("unknown channel %q", s)
	}
}

// ToNRGBA returns img as a non-premultiplied RGBA image whose bounds start at the origin.
// Frames that already have that layout are returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// ExtractChannel copies a single color plane of img into a grayscale image.
func ExtractChannel(img image.Image, ch Channel) *image.Gray {
	src := ToNRGBA(img)
	b := src.Bounds()
	out := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = row[4*x+int(ch)]
		}
	}
	return out
}

// Threshold binarizes g: pixels at or above t become 255, all others 0.
func Threshold(g *image.Gray, t uint8) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y >= t {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Erode applies a single 3x3 square erosion pass.
func Erode(g *image.Gray) *image.Gray {
	filter := gift.New(gift.Minimum(3, false))
	out := image.NewGray(filter.Bounds(g.Bounds()))
	filter.Draw(out, g)
	return out
}

// ReadImageFromFile decodes the image stored at path. ppm and qoi files are read through their
// registered decoders.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading image %q", path)
	}
	return img, nil
}

// WriteImageToFile encodes img to path. The format follows the file extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	var encode func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ppm":
		encode = func(w io.Writer, img image.Image) error {
			return ppm.Encode(w, toRGBA(img))
		}
	case ".qoi":
		encode = qoi.Encode
	default:
		return errors.Wrapf(imaging.Save(img, path), "writing image %q", path)
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "writing image %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return errors.Wrapf(encode(f, img), "writing image %q", path)
}

// toRGBA copies img into an *image.RGBA, the only model the ppm encoder accepts.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
