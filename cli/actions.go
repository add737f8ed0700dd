package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	goutils "go.viam.com/utils"

	"github.com/cadplugins/camtrack/animator"
	"github.com/cadplugins/camtrack/components/camera/videosource"
	"github.com/cadplugins/camtrack/config"
	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/plugin"
	"github.com/cadplugins/camtrack/rimage"
	"github.com/cadplugins/camtrack/rimage/transform"
)

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("camtrack")
	logger.AddAppender(logging.NewWriterAppender(zapcore.Lock(zapcore.AddSync(c.App.ErrWriter))))
	if !c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	path := c.String(generalFlagConfig)
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Read(path, logger)
}

// interruptibleContext is done on SIGINT or SIGTERM, or after limit when it is positive.
func interruptibleContext(c *cli.Context, limit time.Duration) (context.Context, func()) {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	if limit <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	return ctx, func() {
		cancel()
		stop()
	}
}

// DevicesAction lists the video capture devices.
func DevicesAction(c *cli.Context) error {
	logger := newLogger(c)
	devices, err := videosource.Discover(c.Context, videosource.VideoDrivers, logger)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "ID", "Label", "Status", "Modes"})
	for _, d := range devices {
		modes := lo.Map(d.Properties, func(p videosource.Property, _ int) string {
			return fmt.Sprintf("%dx%d@%.0f %s", p.Width, p.Height, p.FrameRate, p.FrameFormat)
		})
		t.AppendRow(table.Row{d.Name, d.ID, d.Label, d.Status, strings.Join(lo.Uniq(modes), ", ")})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// CalibrateAction calibrates the configured cameras, or the cameras named as arguments, and
// prints each homography with its reprojection errors.
func CalibrateAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	names := c.Args().Slice()
	if len(names) == 0 {
		names = lo.Map(cfg.Cameras, func(cam config.CameraConfig, _ int) string { return cam.Name })
	}

	var errs error
	for _, name := range names {
		cam, ok := cfg.Camera(name)
		if !ok {
			errs = multierr.Append(errs, errors.Errorf("no camera named %q", name))
			continue
		}
		if err := printCalibration(c, cfg, cam); err != nil {
			warningf(c.App.ErrWriter, "camera %q: %v", name, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func printCalibration(c *cli.Context, cfg *config.Config, cam config.CameraConfig) error {
	sessionCfg, err := cfg.SessionConfig(cam)
	if err != nil {
		return err
	}
	calib := sessionCfg.Calibration
	h, err := transform.Calibrate(calib.World, calib.Pixels)
	if err != nil {
		return err
	}
	report, err := transform.ReprojectionReport(h, calib.World, calib.Pixels)
	if err != nil {
		return err
	}

	printf(c.App.Writer, "camera %s", cam.Name)
	printf(c.App.Writer, "%s", h)
	if center, err := h.CameraCenter(); err == nil {
		printf(c.App.Writer, "camera centre (%.2f, %.2f, %.2f)", center.X, center.Y, center.Z)
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "World", "Pixel", "Error (px)"})
	for i, w := range calib.World {
		p := calib.Pixels[i]
		t.AppendRow(table.Row{
			i,
			fmt.Sprintf("(%.1f, %.1f, %.1f)", w.X, w.Y, w.Z),
			fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y),
			fmt.Sprintf("%.4f", report.Errors[i]),
		})
	}
	t.AppendFooter(table.Row{"", "", "rms / max", fmt.Sprintf("%.4f / %.4f", report.RMS, report.Max)})
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// TrackAction tracks the marker until interrupted, printing statuses and rays as they change.
func TrackAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	if c.Bool(trackFlagFake) {
		for i := range cfg.Cameras {
			cfg.Cameras[i].Type = config.CameraTypeFake
		}
	}
	interval := c.Duration(trackFlagInterval)
	if interval <= 0 {
		return errors.Errorf("--%s must be positive", trackFlagInterval)
	}

	ctx, stop := interruptibleContext(c, c.Duration(trackFlagDuration))
	defer stop()

	host := newConsoleHost(c.App.Writer)
	pc, err := plugin.Load(host, cfg, logger, plugin.WithStatusInterval(interval))
	if err != nil {
		return err
	}

	cameras := c.StringSlice(trackFlagCamera)
	if len(cameras) == 0 {
		cameras = lo.Map(cfg.Cameras, func(cam config.CameraConfig, _ int) string { return cam.Name })
	}
	for _, name := range cameras {
		if err := pc.Execute(ctx, "tracker.start", plugin.Args{"camera": name}); err != nil {
			logger.Warnw("cannot start camera", "camera", name, "error", err)
		}
	}
	if len(pc.Tracker().Names()) == 0 {
		return multierr.Combine(errors.New("no camera could be started"), pc.Unload(context.Background()))
	}

	for goutils.SelectContextOrWait(ctx, interval) {
		if err := pc.Execute(ctx, "tracker.ray", nil); err != nil {
			logger.Debugw("cannot add rays", "error", err)
		}
		if c.Bool(trackFlagLocate) {
			if p, err := pc.Tracker().Locate(ctx); err == nil {
				host.printf("marker at (%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
			}
		}
	}

	printSessions(host, pc)
	var errs error
	if dir := c.Path(trackFlagSnapshot); dir != "" {
		errs = writeSnapshots(pc, dir)
	}
	return multierr.Combine(errs, pc.Unload(context.Background()))
}

func printSessions(host *consoleHost, pc *plugin.Context) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Camera", "Frames", "FPS", "Point", "Detected", "Calibration RMS (px)"})
	for _, name := range pc.Tracker().Names() {
		s, ok := pc.Tracker().Session(name)
		if !ok {
			continue
		}
		snap := s.Latest()
		t.AppendRow(table.Row{
			name,
			snap.FrameCount,
			fmt.Sprintf("%.1f", snap.FPS),
			fmt.Sprintf("(%.1f, %.1f)", snap.Point.X, snap.Point.Y),
			snap.Detected,
			fmt.Sprintf("%.4f", s.CalibrationReport().RMS),
		})
	}
	host.printf("%s", t.Render())
}

func writeSnapshots(pc *plugin.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	var errs error
	for _, name := range pc.Tracker().Names() {
		s, ok := pc.Tracker().Session(name)
		if !ok || s.Latest().Annotated == nil {
			continue
		}
		errs = multierr.Append(errs, rimage.WriteImageToFile(filepath.Join(dir, name+".png"), s.Latest().Annotated))
	}
	return errs
}

// AnimateAction plays an animation and prints each transform applied.
func AnimateAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	name := c.String(animateFlagName)
	if c.Bool(animateFlagLoop) {
		for i := range cfg.Animations {
			if name == "" || cfg.Animations[i].Name == name {
				cfg.Animations[i].Loop = true
			}
		}
	}

	ctx, stop := interruptibleContext(c, 0)
	defer stop()

	host := newConsoleHost(c.App.Writer)
	pc, err := plugin.Load(host, cfg, logger)
	if err != nil {
		return err
	}
	a, err := pc.Animator(name)
	if err != nil {
		return multierr.Combine(err, pc.Unload(context.Background()))
	}
	if err := pc.Execute(ctx, "animator.play", plugin.Args{"animation": name}); err != nil {
		return multierr.Combine(err, pc.Unload(context.Background()))
	}
	for a.State() != animator.Finished {
		if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
			break
		}
	}

	final := a.Sample(a.Position())
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Component", "Translation", "Rotation"})
	for _, tf := range final.Transforms {
		t.AppendRow(table.Row{
			tf.Component,
			fmt.Sprintf("(%.3f, %.3f, %.3f)", tf.Translation.X, tf.Translation.Y, tf.Translation.Z),
			fmt.Sprintf("%.4f", tf.Rotation),
		})
	}
	host.printf("%s", t.Render())
	host.printf("%d transforms applied", host.appliedTransforms())
	return pc.Unload(context.Background())
}
