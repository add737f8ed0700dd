package tracker

import (
	"github.com/pkg/errors"

	"github.com/cadplugins/camtrack/rimage/transform"
)

var (
	// ErrDeviceUnavailable is returned when no capture device can be found or opened.
	ErrDeviceUnavailable = errors.New("no capture device available")
	// ErrSingularCalibration is returned when the calibration points do not determine a camera.
	ErrSingularCalibration = transform.ErrSingularCalibration
	// ErrSingularRaySolve is returned when the tracked point cannot be turned into a ray.
	ErrSingularRaySolve = transform.ErrSingularRaySolve
	// ErrNoBlobDetected is returned by Ray until a marker has been seen at least once.
	ErrNoBlobDetected = errors.New("no blob detected")

	errClosed = errors.New("tracking session has been closed")
)
