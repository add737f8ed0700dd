// Package fake implements a synthetic camera that renders a square marker on a black background.
package fake

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/cadplugins/camtrack/tracker"
)

const (
	defaultWidth      = 640
	defaultHeight     = 480
	defaultMarkerSize = 12
)

var errClosed = errors.New("fake camera has been closed")

// Path gives the marker position for a frame number. ok is false when the marker is hidden.
type Path func(frame uint64) (p r2.Point, ok bool)

// FixedPath keeps the marker at p.
func FixedPath(p r2.Point) Path {
	return func(uint64) (r2.Point, bool) { return p, true }
}

// CirclePath moves the marker around center, completing a turn every period frames.
func CirclePath(center r2.Point, radius float64, period uint64) Path {
	if period == 0 {
		period = 1
	}
	return func(frame uint64) (r2.Point, bool) {
		a := 2 * math.Pi * float64(frame%period) / float64(period)
		return r2.Point{X: center.X + radius*math.Cos(a), Y: center.Y + radius*math.Sin(a)}, true
	}
}

// MarkerConfig configures a MarkerSource. Zero values take defaults.
type MarkerConfig struct {
	Name       string
	Width      int
	Height     int
	MarkerSize int
	Color      color.NRGBA
	// FrameRate limits how fast frames are produced. Zero produces frames as fast as they are read.
	FrameRate float64
	Path      Path
}

// Validate checks that the config describes a drawable frame.
func (conf *MarkerConfig) Validate() error {
	if conf.Width < 0 || conf.Height < 0 {
		return errors.Errorf("got illegal negative dimensions (%d, %d) for fake camera", conf.Width, conf.Height)
	}
	if conf.MarkerSize < 0 {
		return errors.Errorf("got illegal negative marker size %d for fake camera", conf.MarkerSize)
	}
	if conf.FrameRate < 0 {
		return errors.Errorf("got illegal negative frame rate %.2f for fake camera", conf.FrameRate)
	}
	return nil
}

// MarkerSource is a tracker.FrameSource rendering one marker per frame.
type MarkerSource struct {
	conf MarkerConfig

	// limiter is nil when frames are produced as fast as they are read.
	limiter *rate.Limiter

	mu     sync.Mutex
	path   Path
	frame  uint64
	closed bool
}

var _ tracker.FrameSource = (*MarkerSource)(nil)

// NewMarkerSource returns a synthetic camera.
func NewMarkerSource(conf MarkerConfig) (*MarkerSource, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.Name == "" {
		conf.Name = "fake"
	}
	if conf.Width == 0 {
		conf.Width = defaultWidth
	}
	if conf.Height == 0 {
		conf.Height = defaultHeight
	}
	if conf.MarkerSize == 0 {
		conf.MarkerSize = defaultMarkerSize
	}
	if conf.Color == (color.NRGBA{}) {
		conf.Color = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	path := conf.Path
	if path == nil {
		path = FixedPath(r2.Point{X: float64(conf.Width) / 2, Y: float64(conf.Height) / 2})
	}
	ms := &MarkerSource{conf: conf, path: path}
	if conf.FrameRate > 0 {
		ms.limiter = rate.NewLimiter(rate.Limit(conf.FrameRate), 1)
	}
	return ms, nil
}

// Name returns the configured camera name.
func (ms *MarkerSource) Name() string {
	return ms.conf.Name
}

// SetPath replaces the marker path. A nil path hides the marker.
func (ms *MarkerSource) SetPath(path Path) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.path = path
}

// Read renders the next frame, waiting for the frame interval when a frame rate is set.
func (ms *MarkerSource) Read(ctx context.Context) (image.Image, func(), error) {
	ms.mu.Lock()
	closed := ms.closed
	ms.mu.Unlock()
	if closed {
		return nil, nil, errClosed
	}
	if ms.limiter != nil {
		if err := ms.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return nil, nil, errClosed
	}
	frame := ms.frame
	ms.frame++

	var (
		p       r2.Point
		visible bool
	)
	if ms.path != nil {
		p, visible = ms.path(frame)
	}
	return ms.render(p, visible), func() {}, nil
}

// Frames is the number of frames read so far.
func (ms *MarkerSource) Frames() uint64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.frame
}

// Close makes further reads fail.
func (ms *MarkerSource) Close(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return errors.New("fake camera already closed")
	}
	ms.closed = true
	return nil
}

// render draws a MarkerSize square whose pixel centres average to p.
func (ms *MarkerSource) render(p r2.Point, visible bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, ms.conf.Width, ms.conf.Height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	if !visible {
		return img
	}
	size := ms.conf.MarkerSize
	minX := int(math.Round(p.X - float64(size-1)/2))
	minY := int(math.Round(p.Y - float64(size-1)/2))
	marker := image.Rect(minX, minY, minX+size, minY+size).Intersect(img.Rect)
	for y := marker.Min.Y; y < marker.Max.Y; y++ {
		for x := marker.Min.X; x < marker.Max.X; x++ {
			img.SetNRGBA(x, y, ms.conf.Color)
		}
	}
	return img
}
