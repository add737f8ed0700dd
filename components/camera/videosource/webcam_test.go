package videosource

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	driverutils "github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"go.viam.com/test"

	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/tracker"
)

type fakeDriver struct {
	id     string
	info   driverutils.Info
	props  []prop.Media
	status driverutils.State
	opened int
}

func (d *fakeDriver) Open() error {
	d.opened++
	d.status = driverutils.StateOpened
	return nil
}

func (d *fakeDriver) Close() error {
	d.status = driverutils.StateClosed
	return nil
}

func (d *fakeDriver) Properties() []prop.Media { return d.props }
func (d *fakeDriver) ID() string               { return d.id }
func (d *fakeDriver) Info() driverutils.Info   { return d.info }
func (d *fakeDriver) Status() driverutils.State {
	return d.status
}

func newFakeDriver(label, name string, props ...prop.Media) *fakeDriver {
	return &fakeDriver{
		id:     label,
		info:   driverutils.Info{Label: label, Name: name},
		props:  props,
		status: driverutils.StateClosed,
	}
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	_, err := Discover(ctx, func() []driverutils.Driver { return nil }, logger)
	test.That(t, errors.Is(err, tracker.ErrDeviceUnavailable), test.ShouldBeTrue)

	sep := mediadevicescamera.LabelSeparator
	hd := prop.Media{Video: prop.Video{Width: 1280, Height: 720, FrameRate: 30, FrameFormat: frame.FormatMJPEG}}
	vga := prop.Media{Video: prop.Video{Width: 640, Height: 480, FrameRate: 60, FrameFormat: frame.FormatYUY2}}
	cam := newFakeDriver("/dev/video0"+sep+"usb-1", "Desk Cam"+sep+"046d:0825", hd, vga)
	empty := newFakeDriver("/dev/video1", "Broken")
	busy := newFakeDriver("/dev/video2", "Busy", vga)
	busy.status = driverutils.StateRunning

	devices, err := Discover(ctx, func() []driverutils.Driver {
		return []driverutils.Driver{cam, empty, busy}
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, devices, test.ShouldHaveLength, 1)
	test.That(t, devices[0].Name, test.ShouldEqual, "Desk Cam")
	test.That(t, devices[0].ID, test.ShouldEqual, "046d:0825")
	test.That(t, devices[0].Label, test.ShouldEqual, "/dev/video0")
	test.That(t, devices[0].Properties, test.ShouldResemble, []Property{
		{Width: 1280, Height: 720, FrameRate: 30, FrameFormat: string(frame.FormatMJPEG)},
		{Width: 640, Height: 480, FrameRate: 60, FrameFormat: string(frame.FormatYUY2)},
	})

	// drivers opened for discovery are closed again
	test.That(t, cam.opened, test.ShouldEqual, 1)
	test.That(t, cam.Status(), test.ShouldEqual, driverutils.StateClosed)
}

func TestFindDriver(t *testing.T) {
	_, err := findDriver(nil, "")
	test.That(t, errors.Is(err, tracker.ErrDeviceUnavailable), test.ShouldBeTrue)

	sep := mediadevicescamera.LabelSeparator
	first := newFakeDriver("/dev/video0"+sep+"usb-1", "A")
	second := newFakeDriver("/dev/video4"+sep+"usb-2", "B")
	drivers := []driverutils.Driver{first, second}

	d, err := findDriver(drivers, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, first)

	d, err = findDriver(drivers, "video4")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, second)

	d, err = findDriver(drivers, "usb-2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, second)

	_, err = findDriver(drivers, "/dev/video9")
	test.That(t, errors.Is(err, tracker.ErrDeviceUnavailable), test.ShouldBeTrue)
}

func TestWebcamConfigValidate(t *testing.T) {
	test.That(t, WebcamConfig{Width: 640, Height: 480, FrameRate: 30}.Validate("cameras.0"), test.ShouldBeNil)

	err := WebcamConfig{Width: -1}.Validate("cameras.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cameras.0")

	test.That(t, WebcamConfig{FrameRate: -2}.Validate("cameras.1"), test.ShouldNotBeNil)
}

func TestWebcamReadReturnsOnCancel(t *testing.T) {
	frames := make(chan image.Image)
	released := make(chan struct{})
	w := &Webcam{
		name:   "stalled",
		label:  "stalled",
		logger: logging.NewTestLogger(t),
		reader: video.ReaderFunc(func() (image.Image, func(), error) {
			img := <-frames
			return img, func() { close(released) }, nil
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := w.Read(ctx)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)

	// the frame that arrives late is handed back to the device
	frames <- image.NewRGBA(image.Rect(0, 0, 1, 1))
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("late frame was not released")
	}

	go func() { frames <- image.NewRGBA(image.Rect(0, 0, 2, 2)) }()
	img, release, err := w.Read(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 2)
	release()
}
