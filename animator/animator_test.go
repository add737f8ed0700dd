package animator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/cadplugins/camtrack/logging"
)

func slide() Animation {
	return Animation{
		Name: "slide",
		Tracks: []Track{
			{
				Component: "door",
				Keyframes: []Keyframe{
					{At: 0, Rotation: Identity},
					{At: 300 * time.Millisecond, Translation: r3.Vector{X: 30}, Rotation: FromAxisAngle(r3.Vector{Z: 1}, 90)},
				},
			},
			{
				Component: "handle",
				Keyframes: []Keyframe{{At: 0, Translation: r3.Vector{Y: 5}, Rotation: Identity}},
			},
		},
	}
}

func newTestAnimator(t *testing.T, anim Animation) (*Animator, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	a, err := New(anim, Options{Interval: 10 * time.Millisecond, Clock: clk}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(a.Close)
	return a, clk
}

func nextFrame(t *testing.T, a *Animator) Frame {
	t.Helper()
	select {
	case f := <-a.Frames():
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Frame{}
	}
}

func TestAnimatorPlaysToEnd(t *testing.T) {
	a, clk := newTestAnimator(t, slide())
	test.That(t, a.State(), test.ShouldEqual, Stopped)
	test.That(t, a.Duration(), test.ShouldEqual, 300*time.Millisecond)

	test.That(t, a.Play(), test.ShouldBeNil)
	test.That(t, a.State(), test.ShouldEqual, Playing)

	clk.Add(100 * time.Millisecond)
	test.That(t, a.Position(), test.ShouldEqual, 100*time.Millisecond)

	clk.Add(time.Second)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, a.State(), test.ShouldEqual, Finished)
	})
	test.That(t, a.Position(), test.ShouldEqual, 300*time.Millisecond)

	// the last frame delivered is the final pose
	f := nextFrame(t, a)
	test.That(t, f.At, test.ShouldEqual, 300*time.Millisecond)
	test.That(t, f.Transforms, test.ShouldHaveLength, 2)
	test.That(t, f.Transforms[0].Translation.X, test.ShouldAlmostEqual, 30)
	test.That(t, f.Transforms[1].Translation.Y, test.ShouldAlmostEqual, 5)

	// a finished animation restarts
	test.That(t, a.Play(), test.ShouldBeNil)
	test.That(t, a.Position(), test.ShouldEqual, 0)
}

func TestAnimatorPauseSeekStop(t *testing.T) {
	a, clk := newTestAnimator(t, slide())

	test.That(t, a.Play(), test.ShouldBeNil)
	clk.Add(150 * time.Millisecond)
	a.Pause()
	test.That(t, a.State(), test.ShouldEqual, Paused)
	clk.Add(time.Second)
	test.That(t, a.Position(), test.ShouldEqual, 150*time.Millisecond)

	a.Seek(75 * time.Millisecond)
	f := nextFrame(t, a)
	test.That(t, f.At, test.ShouldEqual, 75*time.Millisecond)
	test.That(t, f.Transforms[0].Translation.X, test.ShouldAlmostEqual, 7.5)

	a.Seek(time.Hour)
	test.That(t, a.Position(), test.ShouldEqual, 300*time.Millisecond)

	a.Stop()
	test.That(t, a.State(), test.ShouldEqual, Stopped)
	f = nextFrame(t, a)
	test.That(t, f.At, test.ShouldEqual, 0)
	test.That(t, f.Transforms[0].Translation, test.ShouldResemble, r3.Vector{})
}

func TestAnimatorLoops(t *testing.T) {
	anim := slide()
	anim.Loop = true
	a, clk := newTestAnimator(t, anim)

	test.That(t, a.Play(), test.ShouldBeNil)
	clk.Add(450 * time.Millisecond)
	test.That(t, a.Position(), test.ShouldEqual, 150*time.Millisecond)
	test.That(t, a.State(), test.ShouldEqual, Playing)
}

func TestAnimatorLatestFrameWins(t *testing.T) {
	a, _ := newTestAnimator(t, slide())
	a.Seek(10 * time.Millisecond)
	a.Seek(20 * time.Millisecond)
	a.Seek(30 * time.Millisecond)

	f := nextFrame(t, a)
	test.That(t, f.At, test.ShouldEqual, 30*time.Millisecond)
	select {
	case <-a.Frames():
		t.Fatal("stale frame left in channel")
	default:
	}
}

func TestAnimatorSetTrack(t *testing.T) {
	a, _ := newTestAnimator(t, slide())
	before := a.Sample(300 * time.Millisecond)
	test.That(t, before.Transforms[0].Translation.X, test.ShouldAlmostEqual, 30)

	err := a.SetTrack(Track{
		Component: "door",
		Keyframes: []Keyframe{{At: 0, Translation: r3.Vector{X: -4}, Rotation: Identity}},
	})
	test.That(t, err, test.ShouldBeNil)
	after := a.Sample(300 * time.Millisecond)
	test.That(t, after.Transforms[0].Translation.X, test.ShouldAlmostEqual, -4)

	test.That(t, a.SetTrack(Track{Component: "lid", Keyframes: []Keyframe{{At: 0, Rotation: Identity}}}), test.ShouldBeNil)
	test.That(t, a.Sample(0).Transforms, test.ShouldHaveLength, 3)

	test.That(t, a.SetTrack(Track{Component: "lid"}), test.ShouldNotBeNil)
}

func TestAnimatorClose(t *testing.T) {
	a, _ := newTestAnimator(t, slide())
	test.That(t, a.Play(), test.ShouldBeNil)
	a.Close()
	a.Close()

	_, ok := <-a.Frames()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, a.Play(), test.ShouldNotBeNil)
}

type recordingDoc struct {
	mu      sync.Mutex
	applied []Transform
	fail    map[string]bool
}

func (d *recordingDoc) ApplyTransform(component string, t Transform) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[component] {
		return errors.New("component is locked")
	}
	d.applied = append(d.applied, t)
	return nil
}

func TestApply(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	doc := &recordingDoc{fail: map[string]bool{"lid": true}}
	frames := make(chan Frame, 3)

	door := Transform{Component: "door", Rotation: Identity}
	moved := Transform{Component: "door", Translation: r3.Vector{X: 1}, Rotation: Identity}
	lid := Transform{Component: "lid", Rotation: Identity}
	frames <- Frame{At: 0, Transforms: []Transform{door, lid}}
	frames <- Frame{At: 10, Transforms: []Transform{door, lid}}
	frames <- Frame{At: 20, Transforms: []Transform{moved}}
	close(frames)

	test.That(t, Apply(context.Background(), frames, doc, logger), test.ShouldBeNil)
	test.That(t, doc.applied, test.ShouldResemble, []Transform{door, moved})
	// the failing component is retried with every frame
	test.That(t, logs.FilterMessage("cannot apply transform").Len(), test.ShouldEqual, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Apply(ctx, make(chan Frame), doc, logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
