// Package videosource implements webcam capture through mediadevices.
package videosource

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/mediadevices"
	driverutils "github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/tracker"
)

var errClosed = errors.New("camera has been closed")

// Property is one capture mode a device supports.
type Property struct {
	Width       int
	Height      int
	FrameRate   float32
	FrameFormat string
}

// DeviceInfo describes a video capture device found by Discover.
type DeviceInfo struct {
	Name       string
	ID         string
	Label      string
	Status     string
	Properties []Property
}

// VideoDrivers returns every registered video recording driver.
func VideoDrivers() []driverutils.Driver {
	mediadevicescamera.Initialize()
	return driverutils.GetManager().Query(driverutils.FilterVideoRecorder())
}

// getDriverProperties returns the media properties of a driver, opening it if needed.
func getDriverProperties(d driverutils.Driver) (_ []prop.Media, err error) {
	if d.Status() == driverutils.StateClosed {
		if errOpen := d.Open(); errOpen != nil {
			return nil, errOpen
		}
		defer func() {
			if errClose := d.Close(); errClose != nil {
				err = errClose
			}
		}()
	}
	return d.Properties(), err
}

// Discover lists the capture devices returned by getDrivers. Devices that are busy or expose no
// properties are skipped. It returns tracker.ErrDeviceUnavailable when nothing usable is found.
func Discover(ctx context.Context, getDrivers func() []driverutils.Driver, logger logging.Logger) ([]DeviceInfo, error) {
	var devices []DeviceInfo
	for _, d := range getDrivers() {
		driverInfo := d.Info()
		props, err := getDriverProperties(d)
		if err != nil {
			logger.CDebugw(ctx, "cannot access driver properties, skipping discovery...", "driver", driverInfo.Label, "error", err)
			continue
		}
		if len(props) == 0 {
			logger.CDebugw(ctx, "no properties detected for driver, skipping discovery...", "driver", driverInfo.Label)
			continue
		}
		if d.Status() == driverutils.StateRunning {
			logger.CDebugw(ctx, "driver is in use, skipping discovery...", "driver", driverInfo.Label)
			continue
		}

		label := strings.Split(driverInfo.Label, mediadevicescamera.LabelSeparator)[0]
		name, id := label, label
		if nameParts := strings.Split(driverInfo.Name, mediadevicescamera.LabelSeparator); len(nameParts) > 1 {
			name, id = nameParts[0], nameParts[1]
		} else if nameParts[0] != "" {
			name = nameParts[0]
		}

		info := DeviceInfo{
			Name:       name,
			ID:         id,
			Label:      label,
			Status:     string(d.Status()),
			Properties: make([]Property, 0, len(props)),
		}
		for _, p := range props {
			info.Properties = append(info.Properties, Property{
				Width:       p.Video.Width,
				Height:      p.Video.Height,
				FrameRate:   p.Video.FrameRate,
				FrameFormat: string(p.Video.FrameFormat),
			})
		}
		devices = append(devices, info)
	}
	if len(devices) == 0 {
		return nil, tracker.ErrDeviceUnavailable
	}
	return devices, nil
}

// WebcamConfig selects and configures a capture device.
type WebcamConfig struct {
	Name      string  `json:"name"`
	Path      string  `json:"video_path"`
	Format    string  `json:"format,omitempty"`
	Width     int     `json:"width_px,omitempty"`
	Height    int     `json:"height_px,omitempty"`
	FrameRate float32 `json:"frame_rate,omitempty"`
	Debug     bool    `json:"debug,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c WebcamConfig) Validate(path string) error {
	if c.Width < 0 || c.Height < 0 {
		return errors.Errorf(
			"%s: got illegal negative dimensions for width_px and height_px (%d, %d) fields set for webcam",
			path, c.Width, c.Height)
	}
	if c.FrameRate < 0 {
		return errors.Errorf("%s: got illegal negative frame rate (%.2f) field set for webcam", path, c.FrameRate)
	}
	return nil
}

// makeConstraints returns the stream constraints for conf, defaulting to 640x480 at 30fps.
func makeConstraints(conf WebcamConfig, deviceID string, logger logging.Logger) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(constraint *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				constraint.DeviceID = prop.StringExact(deviceID)
			}
			if conf.Width > 0 {
				constraint.Width = prop.IntExact(conf.Width)
			} else {
				constraint.Width = prop.IntRanged{Min: 0, Ideal: 640, Max: 4096}
			}
			if conf.Height > 0 {
				constraint.Height = prop.IntExact(conf.Height)
			} else {
				constraint.Height = prop.IntRanged{Min: 0, Ideal: 480, Max: 2160}
			}
			if conf.FrameRate > 0.0 {
				constraint.FrameRate = prop.FloatExact(conf.FrameRate)
			} else {
				constraint.FrameRate = prop.FloatRanged{Min: 0.0, Ideal: 30.0, Max: 140.0}
			}
			if conf.Format == "" {
				constraint.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatYUY2,
					frame.FormatUYVY,
					frame.FormatRGBA,
					frame.FormatMJPEG,
					frame.FormatNV12,
					frame.FormatNV21,
				}
			} else {
				constraint.FrameFormat = prop.FrameFormatExact(conf.Format)
			}
			if conf.Debug {
				logger.Debugf("constraints: %v", constraint)
			}
		},
	}
}

// findDriver picks the driver whose label matches path, or the first one when path is empty.
func findDriver(drivers []driverutils.Driver, path string) (driverutils.Driver, error) {
	if len(drivers) == 0 {
		return nil, tracker.ErrDeviceUnavailable
	}
	if path == "" {
		return drivers[0], nil
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	base := filepath.Base(path)
	for _, d := range drivers {
		for _, label := range strings.Split(d.Info().Label, mediadevicescamera.LabelSeparator) {
			if label == path || filepath.Base(label) == base {
				return d, nil
			}
		}
	}
	return nil, errors.Wrapf(tracker.ErrDeviceUnavailable, "no webcam at %q", path)
}

// Webcam is a tracker.FrameSource reading from a local capture device.
type Webcam struct {
	name   string
	label  string
	logger logging.Logger

	mu     sync.Mutex
	track  mediadevices.Track
	reader video.Reader
	closed bool
}

var _ tracker.FrameSource = (*Webcam)(nil)

// NewWebcam opens the device selected by conf.
func NewWebcam(ctx context.Context, conf WebcamConfig, logger logging.Logger) (*Webcam, error) {
	if err := conf.Validate("webcam"); err != nil {
		return nil, err
	}
	driver, err := findDriver(VideoDrivers(), conf.Path)
	if err != nil {
		return nil, err
	}
	label := strings.Split(driver.Info().Label, mediadevicescamera.LabelSeparator)[0]
	name := conf.Name
	if name == "" {
		name = label
	}
	logger = logger.WithFields("camera", name, "camera_label", label)

	stream, err := mediadevices.GetUserMedia(makeConstraints(conf, driver.ID(), logger))
	if err != nil {
		return nil, errors.Wrapf(tracker.ErrDeviceUnavailable, "opening webcam %q: %v", label, err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, errors.Wrapf(tracker.ErrDeviceUnavailable, "webcam %q has no video track", label)
	}
	videoTrack, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		return nil, multiCloseErr(tracks[0], fmt.Errorf("unexpected track type %T", tracks[0]))
	}
	logger.CDebugw(ctx, "webcam opened")

	return &Webcam{
		name:   name,
		label:  label,
		logger: logger,
		track:  videoTrack,
		reader: videoTrack.NewReader(false),
	}, nil
}

func multiCloseErr(track mediadevices.Track, err error) error {
	if errClose := track.Close(); errClose != nil {
		return errors.Wrapf(err, "also failed to close track: %v", errClose)
	}
	return err
}

// Name is the configured camera name, or the device label.
func (w *Webcam) Name() string {
	return w.name
}

type readResult struct {
	img     image.Image
	release func()
	err     error
}

// Read blocks for the next frame from the device, or until ctx is done. A frame that arrives after
// ctx is done is released without being returned.
func (w *Webcam) Read(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, nil, errClosed
	}
	reader := w.reader
	w.mu.Unlock()

	results := make(chan readResult, 1)
	goutils.PanicCapturingGo(func() {
		img, release, err := reader.Read()
		results <- readResult{img: img, release: release, err: err}
	})

	select {
	case <-ctx.Done():
		goutils.PanicCapturingGo(func() {
			if res := <-results; res.release != nil {
				res.release()
			}
		})
		return nil, nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, nil, errors.Wrapf(res.err, "reading from webcam %q", w.label)
		}
		if res.release == nil {
			res.release = func() {}
		}
		return res.img, res.release, nil
	}
}

// Close releases the device.
func (w *Webcam) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("webcam already closed")
	}
	w.closed = true
	w.logger.CDebugw(ctx, "closing webcam")
	return w.track.Close()
}
