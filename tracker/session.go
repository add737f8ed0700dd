package tracker

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/rimage"
	"github.com/cadplugins/camtrack/rimage/transform"
	"github.com/cadplugins/camtrack/utils"
)

const (
	// readRetryInterval is how long the worker backs off after a failed read.
	readRetryInterval = 100 * time.Millisecond
	// workerStopTimeout is how long Close waits for the capture worker before releasing the device
	// underneath a read that does not return, and again after that before giving up on the worker.
	workerStopTimeout = time.Second
)

// Calibration pairs known world points with the pixels they were observed at.
type Calibration struct {
	World  []r3.Vector
	Pixels []r2.Point
}

// DefaultCalibration is the reference calibration rig.
func DefaultCalibration() Calibration {
	world, pixels := transform.DefaultCalibrationPoints()
	return Calibration{World: world, Pixels: pixels}
}

// SessionConfig configures a single camera session.
type SessionConfig struct {
	Calibration Calibration
	Pipeline    rimage.PipelineConfig
	// FPSSmoothing is the weight of the newest frame interval in the FPS estimate.
	FPSSmoothing float64
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultSessionConfig uses the reference calibration and the default pipeline.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Calibration:  DefaultCalibration(),
		Pipeline:     rimage.DefaultPipelineConfig(),
		FPSSmoothing: utils.DefaultRateSmoothing,
	}
}

// Snapshot is the published state of a session after a frame. Snapshots are immutable.
type Snapshot struct {
	Camera string
	// Point is the last tracked point. It is stale when Detected is false.
	Point r2.Point
	// Detected is whether the marker was found in the latest frame.
	Detected bool
	// Tracked is whether the marker has been found in any frame so far.
	Tracked    bool
	Annotated  image.Image
	FPS        float64
	FrameCount uint64
	At         time.Time
}

// Status formats the snapshot for a status label.
func (s *Snapshot) Status() string {
	return fmt.Sprintf("%.1f FPS. (%.1f, %.1f)", s.FPS, s.Point.X, s.Point.Y)
}

// Session tracks a marker through a single camera. The capture worker is the only writer of the
// snapshot; readers on any goroutine see whole snapshots.
type Session struct {
	name       string
	id         uuid.UUID
	src        FrameSource
	homography *transform.Homography
	report     transform.CalibrationReport
	pipeline   *rimage.Pipeline
	rate       *utils.RateMeter
	clk        clock.Clock
	snapshot   atomic.Pointer[Snapshot]
	workers    utils.StoppableWorkers
	logger     logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewSession calibrates the camera and starts its capture worker. The session owns src from
// here on: it is closed when calibration fails or the session is closed.
func NewSession(ctx context.Context, name string, src FrameSource, cfg SessionConfig, logger logging.Logger) (*Session, error) {
	id := uuid.New()
	logger = logger.WithFields("camera", name, "session_id", id.String())

	h, err := transform.Calibrate(cfg.Calibration.World, cfg.Calibration.Pixels)
	if err != nil {
		return nil, multierr.Combine(
			errors.Wrapf(err, "calibrating camera %q", name),
			src.Close(ctx))
	}
	report, err := transform.ReprojectionReport(h, cfg.Calibration.World, cfg.Calibration.Pixels)
	if err != nil {
		return nil, multierr.Combine(err, src.Close(ctx))
	}
	logger.Infow("camera calibrated", "rms_px", report.RMS, "max_px", report.Max)
	logger.Debugw("calibration", "homography", h.String())

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	s := &Session{
		name:       name,
		id:         id,
		src:        src,
		homography: h,
		report:     report,
		pipeline:   rimage.NewPipeline(cfg.Pipeline),
		rate:       utils.NewRateMeter(clk, cfg.FPSSmoothing),
		clk:        clk,
		logger:     logger,
	}
	s.snapshot.Store(&Snapshot{Camera: name, At: clk.Now()})
	s.workers = utils.NewStoppableWorkers(s.captureLoop)
	return s, nil
}

// Name is the camera name the session was started with.
func (s *Session) Name() string {
	return s.name
}

// ID identifies this session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Homography is the calibration computed at startup.
func (s *Session) Homography() *transform.Homography {
	return s.homography
}

// CalibrationReport holds the reprojection errors of the calibration points.
func (s *Session) CalibrationReport() transform.CalibrationReport {
	return s.report
}

// Latest returns the most recently published snapshot.
func (s *Session) Latest() *Snapshot {
	return s.snapshot.Load()
}

// Status formats the latest snapshot as "<fps> FPS. (<u>, <v>)".
func (s *Session) Status() string {
	return s.Latest().Status()
}

// Ray returns the ray for the latest tracked point. Its origin is the world origin.
func (s *Session) Ray(ctx context.Context) (transform.Ray, error) {
	pt, err := s.trackedPoint(ctx)
	if err != nil {
		return transform.Ray{}, err
	}
	return s.homography.Ray(pt)
}

// BackProject returns the ray for the latest tracked point starting at the camera centre.
func (s *Session) BackProject(ctx context.Context) (transform.Ray, error) {
	pt, err := s.trackedPoint(ctx)
	if err != nil {
		return transform.Ray{}, err
	}
	return s.homography.BackProject(pt)
}

func (s *Session) trackedPoint(ctx context.Context) (r2.Point, error) {
	if err := ctx.Err(); err != nil {
		return r2.Point{}, err
	}
	snap := s.Latest()
	if !snap.Tracked {
		return r2.Point{}, errors.Wrapf(ErrNoBlobDetected, "camera %q", s.name)
	}
	return snap.Point, nil
}

// Close stops the capture worker, waits for the frame in flight, then releases the device. A worker
// stuck in a read is unblocked by closing the device under it.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	s.closed = true
	s.mu.Unlock()

	if s.stopWorker(ctx) {
		s.logger.Debugw("capture worker stopped", "frames", s.rate.Count())
		return errors.Wrapf(s.src.Close(ctx), "closing camera %q", s.name)
	}

	s.logger.Warnw("capture worker is stuck reading, releasing the device under it")
	err := errors.Wrapf(s.src.Close(ctx), "closing camera %q", s.name)
	if !s.stopWorker(ctx) {
		s.logger.Errorw("capture worker did not stop after the device was released")
	}
	return err
}

func (s *Session) stopWorker(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, workerStopTimeout)
	defer cancel()
	return s.workers.StopContext(ctx)
}

func (s *Session) captureLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		img, release, err := s.src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Debugw("cannot read frame", "error", err)
			if !goutils.SelectContextOrWait(ctx, readRetryInterval) {
				return
			}
			continue
		}
		s.processFrame(img)
		if release != nil {
			release()
		}
	}
}

func (s *Session) processFrame(img image.Image) {
	prev := s.Latest()
	res := s.pipeline.Process(img)
	fps := s.rate.Tick()
	_, tracked := s.pipeline.Last()

	if prev.Detected != res.Detected {
		s.logger.Debugw("marker visibility changed", "detected", res.Detected, "blobs", len(res.Blobs))
	}
	s.snapshot.Store(&Snapshot{
		Camera:     s.name,
		Point:      res.Point,
		Detected:   res.Detected,
		Tracked:    tracked,
		Annotated:  res.Annotated,
		FPS:        fps,
		FrameCount: s.rate.Count(),
		At:         s.clk.Now(),
	})
}
