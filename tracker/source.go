// Package tracker runs one capture worker per camera, turning frames into tracked points and
// tracked points into rays through the camera's calibration.
package tracker

import (
	"context"
	"image"
)

// FrameSource produces frames from a capture device. Read blocks until a frame is available.
// The returned release func must be called once the frame is no longer used.
type FrameSource interface {
	Name() string
	Read(ctx context.Context) (image.Image, func(), error)
	Close(ctx context.Context) error
}
