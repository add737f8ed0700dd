package plugin

import (
	"context"
	"maps"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cadplugins/camtrack/animator"
	"github.com/cadplugins/camtrack/config"
)

// Args are the arguments of a host command, as sent by the host UI.
type Args map[string]interface{}

// Handler runs a host command against the loaded context.
type Handler func(ctx context.Context, pc *Context, args Args) error

type cameraArgs struct {
	Camera string `json:"camera"`
}

type rayArgs struct {
	Length float64 `json:"length"`
}

type animationArgs struct {
	Animation string  `json:"animation"`
	AtMs      float64 `json:"at_ms"`
}

var commands = map[string]Handler{
	"tracker.start": func(ctx context.Context, pc *Context, args Args) error {
		var a cameraArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		if a.Camera != "" {
			return pc.StartCamera(ctx, a.Camera)
		}
		var errs error
		for _, cam := range pc.cfg.Cameras {
			errs = multierr.Append(errs, pc.StartCamera(ctx, cam.Name))
		}
		return errs
	},
	"tracker.stop": func(ctx context.Context, pc *Context, args Args) error {
		var a cameraArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		if a.Camera != "" {
			return pc.StopCamera(ctx, a.Camera)
		}
		var errs error
		for _, name := range pc.tracker.Names() {
			errs = multierr.Append(errs, pc.StopCamera(ctx, name))
		}
		return errs
	},
	"tracker.ray": func(ctx context.Context, pc *Context, args Args) error {
		var a rayArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		_, err := pc.InjectRays(ctx, a.Length)
		return err
	},
	"tracker.status": func(ctx context.Context, pc *Context, args Args) error {
		if err := decodeArgs(args, &struct{}{}); err != nil {
			return err
		}
		if err := pc.checkLoaded(); err != nil {
			return err
		}
		pc.PublishStatuses()
		return nil
	},
	"animator.play": func(ctx context.Context, pc *Context, args Args) error {
		var a animationArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		anim, err := pc.Animator(a.Animation)
		if err != nil {
			return err
		}
		return anim.Play()
	},
	"animator.pause": func(ctx context.Context, pc *Context, args Args) error {
		var a animationArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		anim, err := pc.Animator(a.Animation)
		if err != nil {
			return err
		}
		anim.Pause()
		return nil
	},
	"animator.seek": func(ctx context.Context, pc *Context, args Args) error {
		var a animationArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		anim, err := pc.Animator(a.Animation)
		if err != nil {
			return err
		}
		anim.Seek(time.Duration(a.AtMs * float64(time.Millisecond)))
		return nil
	},
	"animator.stop": func(ctx context.Context, pc *Context, args Args) error {
		var a animationArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		anim, err := pc.Animator(a.Animation)
		if err != nil {
			return err
		}
		anim.Stop()
		return nil
	},
}

// Commands returns the commands a host can dispatch, by name.
func Commands() map[string]Handler {
	return maps.Clone(commands)
}

// Execute runs the named command.
func (pc *Context) Execute(ctx context.Context, name string, args Args) error {
	handler, ok := commands[name]
	if !ok {
		return errors.Errorf("unknown command %q", name)
	}
	pc.logger.CDebugw(ctx, "executing command", "command", name, "args", args)
	return errors.Wrapf(handler(ctx, pc, args), "command %q", name)
}

func decodeArgs(args Args, out interface{}) error {
	if args == nil {
		args = Args{}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "error creating decoder")
	}
	return errors.Wrap(decoder.Decode(args), "invalid command arguments")
}

// Animator returns the animator of the named animation, creating it on first use. Its frames
// are applied to the host document by a single consumer until the context is unloaded. An empty
// name selects the only configured animation.
func (pc *Context) Animator(name string) (*animator.Animator, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.unloaded {
		return nil, errors.New("plugin is unloaded")
	}
	if name == "" {
		if len(pc.cfg.Animations) != 1 {
			return nil, errors.New("animation name is required")
		}
		name = pc.cfg.Animations[0].Name
	}
	if a, ok := pc.animators[name]; ok {
		return a, nil
	}
	animCfg, ok := pc.cfg.Animation(name)
	if !ok {
		return nil, errors.Errorf("no animation named %q", name)
	}
	a, err := pc.newAnimator(animCfg)
	if err != nil {
		return nil, err
	}
	pc.animators[name] = a
	return a, nil
}

func (pc *Context) newAnimator(animCfg config.AnimationConfig) (*animator.Animator, error) {
	opts := animCfg.Options()
	opts.Clock = pc.opts.clock
	logger := pc.logger.Sublogger("animator")
	a, err := animator.New(animCfg.Animation(), opts, logger)
	if err != nil {
		return nil, err
	}
	pc.workers.AddWorkers(func(ctx context.Context) {
		if err := animator.Apply(ctx, a.Frames(), pc.host, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("animation consumer stopped", "error", err)
		}
	})
	return a, nil
}
