package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/rimage"
	"github.com/cadplugins/camtrack/rimage/transform"
)

const twoCameras = `{
	"cameras": [
		{"name": "left", "type": "webcam", "video_path": "${CAMTRACK_TEST_DEVICE}", "width_px": 640, "height_px": 480},
		{"name": "right", "type": "fake", "fake": {"marker": [10, 20, 30], "orbit_px": 4}}
	],
	"pipeline": {"channel": "green", "min_blob_size_px": 3, "max_blob_size_px": 30},
	"animations": [
		{
			"name": "open",
			"loop": true,
			"interval_ms": 20,
			"tracks": [
				{"component": "lid", "keyframes": [
					{"at_ms": 0, "translation": [0, 0, 0]},
					{"at_ms": 500, "translation": [0, 0, 10], "axis": [1, 0, 0], "angle_deg": 90}
				]}
			]
		}
	]
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camtrack.json")
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

func TestRead(t *testing.T) {
	t.Setenv("CAMTRACK_TEST_DEVICE", "/dev/video2")
	logger := logging.NewTestLogger(t)

	cfg, err := Read(writeConfig(t, twoCameras), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Cameras, test.ShouldHaveLength, 2)
	test.That(t, cfg.Debug, test.ShouldBeFalse)

	left, ok := cfg.Camera("left")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, left.Path, test.ShouldEqual, "/dev/video2")
	test.That(t, left.WebcamConfig().Width, test.ShouldEqual, 640)

	_, ok = cfg.Camera("middle")
	test.That(t, ok, test.ShouldBeFalse)

	pipeline, err := cfg.Pipeline.PipelineConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pipeline.Channel, test.ShouldEqual, rimage.Green)
	test.That(t, pipeline.Threshold, test.ShouldEqual, rimage.DefaultThreshold)
	test.That(t, pipeline.Filter, test.ShouldResemble, rimage.BlobFilter{MinSize: 3, MaxSize: 30})
	test.That(t, pipeline.Annotate, test.ShouldBeTrue)

	anim, ok := cfg.Animation("open")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, anim.Options().Interval, test.ShouldEqual, 20*time.Millisecond)
	converted := anim.Animation()
	test.That(t, converted.Loop, test.ShouldBeTrue)
	test.That(t, converted.Duration(), test.ShouldEqual, 500*time.Millisecond)
	test.That(t, converted.Tracks[0].Keyframes[1].Translation.Z, test.ShouldEqual, 10)
}

func TestReadDefaults(t *testing.T) {
	cfg, err := FromReader("", strings.NewReader(`{}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Cameras, test.ShouldResemble, Defaults().Cameras)
	test.That(t, cfg.Pipeline.Threshold, test.ShouldEqual, rimage.DefaultThreshold)

	session, err := cfg.SessionConfig(cfg.Cameras[0])
	test.That(t, err, test.ShouldBeNil)
	world, pixels := transform.DefaultCalibrationPoints()
	test.That(t, session.Calibration.World, test.ShouldResemble, world)
	test.That(t, session.Calibration.Pixels, test.ShouldResemble, pixels)
	test.That(t, session.Pipeline, test.ShouldResemble, rimage.DefaultPipelineConfig())
}

func TestReadDebugOverride(t *testing.T) {
	t.Setenv(DebugEnvVar, "true")
	cfg, err := FromReader("", strings.NewReader(`{}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Debug, test.ShouldBeTrue)

	t.Setenv(DebugEnvVar, "sometimes")
	_, err = FromReader("", strings.NewReader(`{}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, DebugEnvVar)
}

func TestReadInvalid(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name    string
		content string
		errMsg  string
	}{
		{"bad json", `{"cameras": [`, "decode"},
		{"missing name", `{"cameras": [{"type": "fake"}]}`, `"cameras.0"`},
		{"duplicate name", `{"cameras": [{"name": "a", "type": "fake"}, {"name": "a", "type": "fake"}]}`, "more than once"},
		{"unknown type", `{"cameras": [{"name": "a", "type": "kinect"}]}`, "kinect"},
		{"negative width", `{"cameras": [{"name": "a", "width_px": -1}]}`, "cameras.0"},
		{"bad channel", `{"pipeline": {"channel": "alpha"}}`, "pipeline"},
		{"bad threshold", `{"pipeline": {"threshold": 300}}`, "threshold"},
		{"inverted filter", `{"pipeline": {"min_blob_size_px": 9, "max_blob_size_px": 4}}`, "min_blob_size_px"},
		{"min above default max", `{"pipeline": {"min_blob_size_px": 30}}`, "min_blob_size_px 30 is larger than max_blob_size_px 20"},
		{"max below default min", `{"pipeline": {"max_blob_size_px": 3}}`, "min_blob_size_px 5 is larger than max_blob_size_px 3"},
		{"few calibration points", `{"calibration": {"points": [{"world": [0, 0, 0], "pixel": [1, 1]}]}}`, "calibration"},
		{"camera calibration", `{"cameras": [{"name": "a", "type": "fake", "calibration": {"points": [{}]}}]}`, "cameras.0.calibration"},
		{"negative orbit", `{"cameras": [{"name": "a", "type": "fake", "fake": {"orbit_px": -2}}]}`, "cameras.0.fake"},
		{"unnamed animation", `{"animations": [{"tracks": []}]}`, "animations.0"},
		{"empty animation", `{"animations": [{"name": "x"}]}`, "animations.0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("", strings.NewReader(tc.content), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}

	_, err := Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	cfg, err := FromReader("", strings.NewReader(`{"pipeline": {"min_blob_size_px": 12}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	conf, err := cfg.Pipeline.PipelineConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Filter.MinSize, test.ShouldEqual, 12)
	test.That(t, conf.Filter.MaxSize, test.ShouldEqual, 20)
}

func TestCameraCalibrationOverride(t *testing.T) {
	world, pixels := transform.DefaultCalibrationPoints()
	points := make([]CalibrationPoint, len(world))
	for i := range world {
		points[i] = CalibrationPoint{
			World: [3]float64{world[i].X, world[i].Y, world[i].Z},
			Pixel: [2]float64{pixels[i].X + 1, pixels[i].Y},
		}
	}
	cfg := Defaults()
	cam := CameraConfig{Name: "shifted", Type: CameraTypeFake, Calibration: &CalibrationConfig{Points: points}}

	session, err := cfg.SessionConfig(cam)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, session.Calibration.World, test.ShouldResemble, world)
	test.That(t, session.Calibration.Pixels[0].X, test.ShouldEqual, pixels[0].X+1)
}

func TestMarkerConfig(t *testing.T) {
	world, pixels := transform.DefaultCalibrationPoints()
	h, err := transform.Calibrate(world, pixels)
	test.That(t, err, test.ShouldBeNil)

	target := world[2]
	cam := CameraConfig{
		Name:      "synthetic",
		Type:      CameraTypeFake,
		FrameRate: 15,
		Fake:      &FakeConfig{Marker: &[3]float64{target.X, target.Y, target.Z}, MarkerSize: 8},
	}
	conf, err := cam.MarkerConfig(h)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Name, test.ShouldEqual, "synthetic")
	test.That(t, conf.FrameRate, test.ShouldEqual, 15)
	test.That(t, conf.MarkerSize, test.ShouldEqual, 8)

	want, err := h.Project(target)
	test.That(t, err, test.ShouldBeNil)
	p, ok := conf.Path(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X, test.ShouldAlmostEqual, want.X)
	test.That(t, p.Y, test.ShouldAlmostEqual, want.Y)
}
