package animator

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/utils"
)

// DefaultInterval is the time between frames while playing.
const DefaultInterval = 33 * time.Millisecond

// State is the playback state of an Animator.
type State int

// Playback states.
const (
	Stopped State = iota
	Playing
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Frame is the set of component transforms at one playback position.
type Frame struct {
	At         time.Duration
	Transforms []Transform
}

// Options configure an Animator.
type Options struct {
	// Interval between frames while playing. Defaults to DefaultInterval.
	Interval time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Animator computes frames on a periodic task and hands them to a single consumer through
// Frames. The channel holds at most one frame: a frame the consumer has not picked up yet is
// replaced by the newer one.
type Animator struct {
	clk      clock.Clock
	interval time.Duration
	logger   logging.Logger
	frames   chan Frame
	samples  *DerivedCache[string, Transform]

	mu        sync.Mutex
	anim      Animation
	versions  map[string]uint64
	state     State
	base      time.Duration
	startedAt time.Time
	workers   utils.StoppableWorkers
	closed    bool
}

// New validates anim and returns a stopped Animator.
func New(anim Animation, opts Options, logger logging.Logger) (*Animator, error) {
	if err := anim.Validate(); err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	versions := make(map[string]uint64, len(anim.Tracks))
	for _, t := range anim.Tracks {
		versions[t.Component] = 1
	}
	return &Animator{
		clk:      opts.Clock,
		interval: opts.Interval,
		logger:   logger.WithFields("animation", anim.Name),
		frames:   make(chan Frame, 1),
		samples:  NewDerivedCache[string, Transform](),
		anim:     anim,
		versions: versions,
	}, nil
}

// Frames is the channel frames are delivered on. It is closed by Close.
func (a *Animator) Frames() <-chan Frame {
	return a.frames
}

// State returns the playback state.
func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Position returns the current playback position.
func (a *Animator) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positionLocked()
}

// Duration is the length of the animation.
func (a *Animator) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.anim.Duration()
}

// Play starts or resumes playback. A finished animation restarts from the beginning.
func (a *Animator) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("animator is closed")
	}
	switch a.state {
	case Playing:
		return nil
	case Finished:
		a.base = 0
	case Stopped, Paused:
	}
	if done := a.takeWorkersLocked(); done != nil {
		// the worker of a finished animation has already returned
		done.Stop()
	}
	a.state = Playing
	a.startedAt = a.clk.Now()
	ticker := a.clk.Ticker(a.interval)
	a.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		a.run(ctx, ticker)
	})
	a.logger.Debugw("playing", "from", a.base)
	return nil
}

// Pause holds the current position.
func (a *Animator) Pause() {
	a.mu.Lock()
	if a.state != Playing {
		a.mu.Unlock()
		return
	}
	a.base = a.positionLocked()
	a.state = Paused
	workers := a.takeWorkersLocked()
	a.mu.Unlock()

	if workers != nil {
		workers.Stop()
	}
}

// Seek moves playback to pos and emits the frame there. Playback continues if it was playing.
func (a *Animator) Seek(pos time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = min(max(pos, 0), a.anim.Duration())
	a.startedAt = a.clk.Now()
	if a.state == Finished {
		a.state = Paused
	}
	a.emitLocked(a.base)
}

// Stop halts playback and returns every component to its starting pose.
func (a *Animator) Stop() {
	a.mu.Lock()
	a.state = Stopped
	a.base = 0
	workers := a.takeWorkersLocked()
	a.mu.Unlock()

	if workers != nil {
		workers.Stop()
	}

	a.mu.Lock()
	a.emitLocked(0)
	a.mu.Unlock()
}

// SetTrack adds a track or replaces the track of the same component. Frames computed afterwards
// use the new keyframes.
func (a *Animator) SetTrack(track Track) error {
	if err := track.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	replaced := false
	for i := range a.anim.Tracks {
		if a.anim.Tracks[i].Component == track.Component {
			a.anim.Tracks[i] = track
			replaced = true
		}
	}
	if !replaced {
		a.anim.Tracks = append(a.anim.Tracks, track)
	}
	a.versions[track.Component]++
	return nil
}

// Close stops playback and closes the frame channel.
func (a *Animator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.state = Stopped
	workers := a.takeWorkersLocked()
	a.mu.Unlock()

	if workers != nil {
		workers.Stop()
	}
	close(a.frames)
}

// Sample computes the frame at pos without affecting playback.
func (a *Animator) Sample(pos time.Duration) Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sampleLocked(pos)
}

func (a *Animator) run(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.tick() {
				return
			}
		}
	}
}

// tick emits the frame at the current position and reports whether playback continues.
func (a *Animator) tick() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Playing {
		return false
	}
	duration := a.anim.Duration()
	pos := a.base + a.clk.Now().Sub(a.startedAt)
	if pos >= duration {
		if !a.anim.Loop || duration == 0 {
			a.base = duration
			a.state = Finished
			a.emitLocked(duration)
			a.logger.Debug("finished")
			return false
		}
		pos %= duration
		a.base, a.startedAt = pos, a.clk.Now()
	}
	a.emitLocked(pos)
	return true
}

func (a *Animator) positionLocked() time.Duration {
	if a.state != Playing {
		return a.base
	}
	pos := a.base + a.clk.Now().Sub(a.startedAt)
	if d := a.anim.Duration(); pos > d {
		if a.anim.Loop && d > 0 {
			return pos % d
		}
		return d
	}
	return pos
}

func (a *Animator) takeWorkersLocked() utils.StoppableWorkers {
	workers := a.workers
	a.workers = nil
	return workers
}

func (a *Animator) sampleLocked(pos time.Duration) Frame {
	frame := Frame{At: pos, Transforms: make([]Transform, 0, len(a.anim.Tracks))}
	for _, track := range a.anim.Tracks {
		deps, err := FingerprintOf(a.versions[track.Component], pos)
		if err != nil {
			frame.Transforms = append(frame.Transforms, track.Sample(pos))
			continue
		}
		t, _ := a.samples.Get(track.Component, deps, func() (Transform, error) {
			return track.Sample(pos), nil
		})
		frame.Transforms = append(frame.Transforms, t)
	}
	return frame
}

// emitLocked replaces any undelivered frame with the frame at pos.
func (a *Animator) emitLocked(pos time.Duration) {
	if a.closed {
		return
	}
	frame := a.sampleLocked(pos)
	for {
		select {
		case a.frames <- frame:
			return
		default:
		}
		select {
		case <-a.frames:
		default:
		}
	}
}

// Document receives transforms from the animation consumer.
type Document interface {
	ApplyTransform(component string, t Transform) error
}

// Apply is the consumer of an Animator's frames: it applies every frame to doc on the calling
// goroutine until frames is closed or ctx is done. A component is only touched when its
// transform changed. Failed updates are logged and retried with the next frame.
func Apply(ctx context.Context, frames <-chan Frame, doc Document, logger logging.Logger) error {
	applied := NewDerivedCache[string, Transform]()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			for _, t := range frame.Transforms {
				deps, err := FingerprintOf(t)
				if err != nil {
					return err
				}
				if _, err := applied.Get(t.Component, deps, func() (Transform, error) {
					return t, doc.ApplyTransform(t.Component, t)
				}); err != nil {
					logger.Warnw("cannot apply transform", "component", t.Component, "at", frame.At, "error", err)
				}
			}
		}
	}
}
