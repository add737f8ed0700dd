// Package config defines the JSON configuration of the tracker and animator add-ins.
package config

import (
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/cadplugins/camtrack/animator"
	"github.com/cadplugins/camtrack/components/camera/fake"
	"github.com/cadplugins/camtrack/components/camera/videosource"
	"github.com/cadplugins/camtrack/rimage"
	"github.com/cadplugins/camtrack/rimage/transform"
	"github.com/cadplugins/camtrack/tracker"
)

// Camera source types.
const (
	CameraTypeWebcam = "webcam"
	CameraTypeFake   = "fake"
)

// Config is the whole add-in configuration.
type Config struct {
	ConfigFilePath string `json:"-"`

	Cameras     []CameraConfig    `json:"cameras,omitempty"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Calibration CalibrationConfig `json:"calibration"`
	Animations  []AnimationConfig `json:"animations,omitempty"`
	Debug       bool              `json:"debug,omitempty"`
}

// Defaults returns a config with a single webcam using the reference calibration.
func Defaults() *Config {
	return &Config{
		Cameras:  []CameraConfig{{Name: "cam0", Type: CameraTypeWebcam}},
		Pipeline: PipelineConfig{Channel: "red", Threshold: rimage.DefaultThreshold, MinBlobSize: 5, MaxBlobSize: 20},
	}
}

// Validate checks every section, naming the offending field by its path.
func (c *Config) Validate(path string) error {
	seen := map[string]bool{}
	for idx := range c.Cameras {
		if err := c.Cameras[idx].Validate(fmt.Sprintf("%s.%d", join(path, "cameras"), idx)); err != nil {
			return err
		}
		if seen[c.Cameras[idx].Name] {
			return errors.Errorf("%s: camera name %q is used more than once", join(path, "cameras"), c.Cameras[idx].Name)
		}
		seen[c.Cameras[idx].Name] = true
	}
	if err := c.Pipeline.Validate(join(path, "pipeline")); err != nil {
		return err
	}
	if err := c.Calibration.Validate(join(path, "calibration")); err != nil {
		return err
	}
	for idx := range c.Animations {
		if err := c.Animations[idx].Validate(fmt.Sprintf("%s.%d", join(path, "animations"), idx)); err != nil {
			return err
		}
	}
	return nil
}

// Camera returns the camera config with the given name.
func (c *Config) Camera(name string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

// Animation returns the animation config with the given name.
func (c *Config) Animation(name string) (AnimationConfig, bool) {
	for _, anim := range c.Animations {
		if anim.Name == name {
			return anim, true
		}
	}
	return AnimationConfig{}, false
}

// SessionConfig builds the tracker session config of a camera. A camera level calibration
// replaces the shared one.
func (c *Config) SessionConfig(cam CameraConfig) (tracker.SessionConfig, error) {
	pipeline, err := c.Pipeline.PipelineConfig()
	if err != nil {
		return tracker.SessionConfig{}, err
	}
	calib := c.Calibration
	if cam.Calibration != nil {
		calib = *cam.Calibration
	}
	conf := tracker.DefaultSessionConfig()
	conf.Pipeline = pipeline
	conf.Calibration = calib.Calibration()
	return conf, nil
}

// CameraConfig selects a capture device.
type CameraConfig struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Path      string  `json:"video_path,omitempty"`
	Format    string  `json:"format,omitempty"`
	Width     int     `json:"width_px,omitempty"`
	Height    int     `json:"height_px,omitempty"`
	FrameRate float32 `json:"frame_rate,omitempty"`

	// Calibration overrides the shared calibration for this camera.
	Calibration *CalibrationConfig `json:"calibration,omitempty"`
	// Fake configures the synthetic camera used when Type is "fake".
	Fake *FakeConfig `json:"fake,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *CameraConfig) Validate(path string) error {
	if c.Name == "" {
		return newFieldRequiredError(path, "name")
	}
	switch c.Type {
	case "", CameraTypeWebcam:
		c.Type = CameraTypeWebcam
		if err := c.WebcamConfig().Validate(path); err != nil {
			return err
		}
	case CameraTypeFake:
	default:
		return errors.Errorf("%s: unknown camera type %q", path, c.Type)
	}
	if c.Calibration != nil {
		if err := c.Calibration.Validate(join(path, "calibration")); err != nil {
			return err
		}
	}
	if c.Fake != nil {
		if err := c.Fake.Validate(join(path, "fake")); err != nil {
			return err
		}
	}
	return nil
}

// WebcamConfig converts the camera config for the webcam source.
func (c CameraConfig) WebcamConfig() videosource.WebcamConfig {
	return videosource.WebcamConfig{
		Name:      c.Name,
		Path:      c.Path,
		Format:    c.Format,
		Width:     c.Width,
		Height:    c.Height,
		FrameRate: c.FrameRate,
	}
}

// FakeConfig places the marker of a synthetic camera.
type FakeConfig struct {
	// Marker is the world point the marker sits at. The camera renders it through its
	// calibration.
	Marker *[3]float64 `json:"marker,omitempty"`
	// Orbit moves the marker in a circle of this radius, in pixels, around its position.
	Orbit      float64 `json:"orbit_px,omitempty"`
	MarkerSize int     `json:"marker_size_px,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *FakeConfig) Validate(path string) error {
	if c.Orbit < 0 {
		return errors.Errorf("%s: orbit_px cannot be negative", path)
	}
	if c.MarkerSize < 0 {
		return errors.Errorf("%s: marker_size_px cannot be negative", path)
	}
	return nil
}

// MarkerConfig builds the synthetic camera config, projecting the marker through h.
func (c CameraConfig) MarkerConfig(h *transform.Homography) (fake.MarkerConfig, error) {
	conf := fake.MarkerConfig{
		Name:      c.Name,
		Width:     c.Width,
		Height:    c.Height,
		FrameRate: float64(c.FrameRate),
	}
	if conf.FrameRate == 0 {
		conf.FrameRate = 30
	}
	marker, orbit := r3.Vector{X: 50, Y: 50, Z: 50}, 0.0
	if c.Fake != nil {
		conf.MarkerSize = c.Fake.MarkerSize
		orbit = c.Fake.Orbit
		if c.Fake.Marker != nil {
			marker = r3.Vector{X: c.Fake.Marker[0], Y: c.Fake.Marker[1], Z: c.Fake.Marker[2]}
		}
	}
	px, err := h.Project(marker)
	if err != nil {
		return fake.MarkerConfig{}, errors.Wrapf(err, "camera %q cannot see its marker", c.Name)
	}
	if orbit > 0 {
		conf.Path = fake.CirclePath(px, orbit, 90)
	} else {
		conf.Path = fake.FixedPath(px)
	}
	return conf, nil
}

// PipelineConfig configures marker detection.
type PipelineConfig struct {
	Channel     string `json:"channel,omitempty"`
	Threshold   int    `json:"threshold,omitempty"`
	MinBlobSize int    `json:"min_blob_size_px,omitempty"`
	MaxBlobSize int    `json:"max_blob_size_px,omitempty"`
	NoAnnotate  bool   `json:"no_annotate,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *PipelineConfig) Validate(path string) error {
	if _, err := rimage.ChannelFromString(c.Channel); err != nil {
		return errors.Wrap(err, path)
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		return errors.Errorf("%s: threshold must be within [0, 255], got %d", path, c.Threshold)
	}
	if c.MinBlobSize < 0 || c.MaxBlobSize < 0 {
		return errors.Errorf("%s: blob sizes cannot be negative", path)
	}
	// unset sizes fall back to the default filter
	filter := rimage.DefaultBlobFilter()
	if c.MinBlobSize > 0 {
		filter.MinSize = c.MinBlobSize
	}
	if c.MaxBlobSize > 0 {
		filter.MaxSize = c.MaxBlobSize
	}
	if filter.MinSize > filter.MaxSize {
		return errors.Errorf("%s: min_blob_size_px %d is larger than max_blob_size_px %d", path, filter.MinSize, filter.MaxSize)
	}
	return nil
}

// PipelineConfig converts to the image pipeline config, filling in defaults.
func (c PipelineConfig) PipelineConfig() (rimage.PipelineConfig, error) {
	conf := rimage.DefaultPipelineConfig()
	ch, err := rimage.ChannelFromString(c.Channel)
	if err != nil {
		return conf, err
	}
	conf.Channel = ch
	if c.Threshold > 0 {
		conf.Threshold = uint8(c.Threshold)
	}
	if c.MinBlobSize > 0 {
		conf.Filter.MinSize = c.MinBlobSize
	}
	if c.MaxBlobSize > 0 {
		conf.Filter.MaxSize = c.MaxBlobSize
	}
	conf.Annotate = !c.NoAnnotate
	return conf, nil
}

// CalibrationPoint pairs a world point with the pixel it was seen at.
type CalibrationPoint struct {
	World [3]float64 `json:"world"`
	Pixel [2]float64 `json:"pixel"`
}

// CalibrationConfig lists calibration points. An empty list means the reference rig.
type CalibrationConfig struct {
	Points []CalibrationPoint `json:"points,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *CalibrationConfig) Validate(path string) error {
	if len(c.Points) > 0 && len(c.Points) < transform.MinCalibrationPoints {
		return errors.Errorf("%s: need at least %d calibration points, got %d",
			path, transform.MinCalibrationPoints, len(c.Points))
	}
	return nil
}

// Calibration converts the points for a tracker session.
func (c CalibrationConfig) Calibration() tracker.Calibration {
	if len(c.Points) == 0 {
		return tracker.DefaultCalibration()
	}
	out := tracker.Calibration{
		World:  make([]r3.Vector, len(c.Points)),
		Pixels: make([]r2.Point, len(c.Points)),
	}
	for i, p := range c.Points {
		out.World[i] = r3.Vector{X: p.World[0], Y: p.World[1], Z: p.World[2]}
		out.Pixels[i] = r2.Point{X: p.Pixel[0], Y: p.Pixel[1]}
	}
	return out
}

// AnimationConfig describes a keyframed animation.
type AnimationConfig struct {
	Name       string        `json:"name"`
	Loop       bool          `json:"loop,omitempty"`
	IntervalMs int           `json:"interval_ms,omitempty"`
	Tracks     []TrackConfig `json:"tracks"`
}

// TrackConfig is the motion of one component.
type TrackConfig struct {
	Component string           `json:"component"`
	Keyframes []KeyframeConfig `json:"keyframes"`
}

// KeyframeConfig is a pose at a time. Rotation is given as an axis and an angle in degrees.
type KeyframeConfig struct {
	AtMs        float64    `json:"at_ms"`
	Translation [3]float64 `json:"translation"`
	Axis        [3]float64 `json:"axis,omitempty"`
	AngleDeg    float64    `json:"angle_deg,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *AnimationConfig) Validate(path string) error {
	if c.Name == "" {
		return newFieldRequiredError(path, "name")
	}
	if c.IntervalMs < 0 {
		return errors.Errorf("%s: interval_ms cannot be negative", path)
	}
	anim := c.Animation()
	return errors.Wrap(anim.Validate(), path)
}

// Animation converts the config for the animator.
func (c AnimationConfig) Animation() animator.Animation {
	anim := animator.Animation{Name: c.Name, Loop: c.Loop, Tracks: make([]animator.Track, 0, len(c.Tracks))}
	for _, tc := range c.Tracks {
		track := animator.Track{Component: tc.Component, Keyframes: make([]animator.Keyframe, 0, len(tc.Keyframes))}
		for _, k := range tc.Keyframes {
			track.Keyframes = append(track.Keyframes, animator.Keyframe{
				At:          time.Duration(k.AtMs * float64(time.Millisecond)),
				Translation: r3.Vector{X: k.Translation[0], Y: k.Translation[1], Z: k.Translation[2]},
				Rotation:    animator.FromAxisAngle(r3.Vector{X: k.Axis[0], Y: k.Axis[1], Z: k.Axis[2]}, k.AngleDeg),
			})
		}
		anim.Tracks = append(anim.Tracks, track)
	}
	return anim
}

// Options converts the playback settings for the animator.
func (c AnimationConfig) Options() animator.Options {
	return animator.Options{Interval: time.Duration(c.IntervalMs) * time.Millisecond}
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func newFieldRequiredError(path, field string) error {
	return errors.Errorf("error validating %q: %q is required", path, field)
}
