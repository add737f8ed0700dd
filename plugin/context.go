// Package plugin ties the tracker and animator to a host CAD application. The host loads a
// Context when the add-in starts and hands it to every command it dispatches.
package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cadplugins/camtrack/animator"
	"github.com/cadplugins/camtrack/components/camera/fake"
	"github.com/cadplugins/camtrack/components/camera/videosource"
	"github.com/cadplugins/camtrack/config"
	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/rimage/transform"
	"github.com/cadplugins/camtrack/tracker"
	"github.com/cadplugins/camtrack/utils"
)

// DefaultStatusInterval is how often camera statuses are pushed to the host.
const DefaultStatusInterval = time.Second

// Host is the CAD application the add-in runs in.
type Host interface {
	// AddRay creates or replaces the ray geometry with the given name in the open document.
	AddRay(name string, ray transform.Ray) error
	// ApplyTransform moves a component of the open document.
	ApplyTransform(component string, t animator.Transform) error
	// SetStatus updates the status label of a camera.
	SetStatus(camera, text string)
}

// SourceOpener opens the capture source of a configured camera.
type SourceOpener func(ctx context.Context, cfg *config.Config, cam config.CameraConfig, logger logging.Logger) (tracker.FrameSource, error)

// Option configures a Context.
type Option func(*options)

type options struct {
	clock          clock.Clock
	statusInterval time.Duration
	openSource     SourceOpener
}

// WithClock sets the clock driving status updates, sessions and animations.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithStatusInterval sets how often camera statuses are pushed to the host.
func WithStatusInterval(interval time.Duration) Option {
	return func(o *options) { o.statusInterval = interval }
}

// WithSourceOpener replaces how camera sources are opened.
func WithSourceOpener(open SourceOpener) Option {
	return func(o *options) { o.openSource = open }
}

// Context is the state of a loaded add-in. It lives from Load to Unload.
type Context struct {
	id      uuid.UUID
	host    Host
	cfg     *config.Config
	opts    options
	logger  logging.Logger
	tracker *tracker.Manager
	rays    *animator.DerivedCache[string, RayObject]
	workers utils.StoppableWorkers

	mu        sync.Mutex
	animators map[string]*animator.Animator
	unloaded  bool
}

// Load creates the add-in context and starts pushing camera statuses to the host.
func Load(host Host, cfg *config.Config, logger logging.Logger, opts ...Option) (*Context, error) {
	if host == nil {
		return nil, errors.New("host is required")
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	o := options{
		clock:          clock.New(),
		statusInterval: DefaultStatusInterval,
		openSource:     OpenSource,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Debug {
		logger.SetLevel(logging.DEBUG)
	}

	id := uuid.New()
	logger = logger.WithFields("plugin_id", id.String())
	pc := &Context{
		id:        id,
		host:      host,
		cfg:       cfg,
		opts:      o,
		logger:    logger,
		tracker:   tracker.NewManager(logger.Sublogger("tracker")),
		rays:      animator.NewDerivedCache[string, RayObject](),
		animators: map[string]*animator.Animator{},
	}
	ticker := o.clock.Ticker(o.statusInterval)
	pc.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		pc.publishStatuses(ctx, ticker)
	})
	logger.Infow("loaded", "cameras", len(cfg.Cameras), "animations", len(cfg.Animations))
	return pc, nil
}

// ID identifies this load of the add-in in logs.
func (pc *Context) ID() uuid.UUID {
	return pc.id
}

// Config is the configuration the context was loaded with.
func (pc *Context) Config() *config.Config {
	return pc.cfg
}

// Tracker is the camera session manager.
func (pc *Context) Tracker() *tracker.Manager {
	return pc.tracker
}

// Unload stops every camera and animation. The context cannot be used afterwards.
func (pc *Context) Unload(ctx context.Context) error {
	pc.mu.Lock()
	if pc.unloaded {
		pc.mu.Unlock()
		return errors.New("plugin already unloaded")
	}
	pc.unloaded = true
	animators := pc.animators
	pc.animators = nil
	pc.mu.Unlock()

	pc.workers.Stop()
	for _, a := range animators {
		a.Close()
	}
	if err := pc.tracker.StopAll(ctx); err != nil {
		return err
	}
	pc.logger.Info("unloaded")
	return nil
}

func (pc *Context) checkLoaded() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.unloaded {
		return errors.New("plugin is unloaded")
	}
	return nil
}

// StartCamera opens and calibrates the named camera. Failures are also shown on the camera's
// status label.
func (pc *Context) StartCamera(ctx context.Context, name string) error {
	if err := pc.checkLoaded(); err != nil {
		return err
	}
	cam, ok := pc.cfg.Camera(name)
	if !ok {
		return errors.Errorf("no camera named %q", name)
	}
	err := pc.startCamera(ctx, cam)
	if err != nil {
		pc.host.SetStatus(name, errorStatus(err))
	}
	return err
}

func (pc *Context) startCamera(ctx context.Context, cam config.CameraConfig) error {
	sessionCfg, err := pc.cfg.SessionConfig(cam)
	if err != nil {
		return err
	}
	sessionCfg.Clock = pc.opts.clock
	src, err := pc.opts.openSource(ctx, pc.cfg, cam, pc.logger.Sublogger(cam.Name))
	if err != nil {
		return err
	}
	if _, err := pc.tracker.Start(ctx, cam.Name, src, sessionCfg); err != nil {
		return err
	}

	// Unload may have stopped every camera while this one was starting.
	if err := pc.checkLoaded(); err != nil {
		if stopErr := pc.tracker.Stop(ctx, cam.Name); stopErr != nil {
			pc.logger.Debugw("camera already stopped by unload", "camera", cam.Name, "error", stopErr)
		}
		return errors.Wrapf(err, "starting camera %q", cam.Name)
	}
	return nil
}

// StopCamera stops the named camera and forgets its ray.
func (pc *Context) StopCamera(ctx context.Context, name string) error {
	if err := pc.checkLoaded(); err != nil {
		return err
	}
	pc.rays.Invalidate(name)
	if err := pc.tracker.Stop(ctx, name); err != nil {
		return err
	}
	pc.host.SetStatus(name, "stopped")
	return nil
}

// PublishStatuses pushes the status of every running camera to the host.
func (pc *Context) PublishStatuses() {
	for name, status := range pc.tracker.Statuses() {
		pc.host.SetStatus(name, status)
	}
}

func (pc *Context) publishStatuses(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pc.PublishStatuses()
		}
	}
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, tracker.ErrDeviceUnavailable):
		return "no camera found"
	case errors.Is(err, tracker.ErrSingularCalibration):
		return "calibration failed"
	default:
		return "error: " + err.Error()
	}
}

// OpenSource opens a webcam, or a synthetic marker camera for cameras of type "fake".
func OpenSource(ctx context.Context, cfg *config.Config, cam config.CameraConfig, logger logging.Logger) (tracker.FrameSource, error) {
	if cam.Type != config.CameraTypeFake {
		webcam, err := videosource.NewWebcam(ctx, cam.WebcamConfig(), logger)
		if err != nil {
			return nil, err
		}
		return webcam, nil
	}

	sessionCfg, err := cfg.SessionConfig(cam)
	if err != nil {
		return nil, err
	}
	h, err := transform.Calibrate(sessionCfg.Calibration.World, sessionCfg.Calibration.Pixels)
	if err != nil {
		return nil, err
	}
	markerCfg, err := cam.MarkerConfig(h)
	if err != nil {
		return nil, err
	}
	src, err := fake.NewMarkerSource(markerCfg)
	if err != nil {
		return nil, err
	}
	return src, nil
}
