package rimage

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
)

// DefaultThreshold is the binarization level applied to the selected channel.
const DefaultThreshold = 200

// PipelineConfig controls how a frame is reduced to a tracked point.
type PipelineConfig struct {
	Channel   Channel
	Threshold uint8
	Filter    BlobFilter
	// Annotate enables rendering of FrameResult.Annotated.
	Annotate bool
}

// DefaultPipelineConfig tracks bright red markers between 5 and 20 pixels wide.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Channel:   Red,
		Threshold: DefaultThreshold,
		Filter:    DefaultBlobFilter(),
		Annotate:  true,
	}
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	// Point is the tracked point. It is the previous point when nothing was detected.
	Point    r2.Point
	Detected bool
	// Blobs are the accepted blobs, largest first.
	Blobs     []Blob
	Annotated image.Image
}

// Pipeline turns frames into tracked points. It remembers the last point it reported and is not
// safe for concurrent use.
type Pipeline struct {
	cfg   PipelineConfig
	last  r2.Point
	found bool
}

// NewPipeline returns a pipeline with the given configuration.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Last returns the last tracked point and whether any frame has produced a detection yet.
func (p *Pipeline) Last() (r2.Point, bool) {
	return p.last, p.found
}

// Process runs channel extraction, thresholding, erosion and blob detection on img and returns
// the intensity weighted centroid of the largest accepted blob.
func (p *Pipeline) Process(img image.Image) FrameResult {
	channel := ExtractChannel(img, p.cfg.Channel)
	bin := Erode(Threshold(channel, p.cfg.Threshold))
	blobs := DetectBlobs(bin, p.cfg.Filter)
	SortBlobsByArea(blobs)

	res := FrameResult{Point: p.last, Blobs: blobs}
	if len(blobs) > 0 {
		if pt, ok := WeightedCentroid(channel, blobs[0].Rect); ok {
			p.last, p.found = pt, true
			res.Point, res.Detected = pt, true
		}
	}
	if p.cfg.Annotate {
		label := "no marker"
		if res.Detected {
			label = fmt.Sprintf("(%.1f, %.1f)", res.Point.X, res.Point.Y)
		}
		res.Annotated = Annotate(img, res, label)
	}
	return res
}
