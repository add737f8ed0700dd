// Package animator plays keyframed component transforms against a document.
package animator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// Identity is the rotation that leaves a vector unchanged.
var Identity = quat.Number{Real: 1}

// Transform places a component: rotate by Rotation, then translate by Translation.
type Transform struct {
	Component   string
	Translation r3.Vector
	Rotation    quat.Number
}

// Apply maps a point in component coordinates to document coordinates.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return Rotate(t.Rotation, p).Add(t.Translation)
}

func (t Transform) String() string {
	return fmt.Sprintf("%s: t=(%.3f, %.3f, %.3f) q=(%.4f, %.4f, %.4f, %.4f)", t.Component,
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.Real, t.Rotation.Imag, t.Rotation.Jmag, t.Rotation.Kmag)
}

// FromAxisAngle returns the unit quaternion rotating by degrees about axis.
func FromAxisAngle(axis r3.Vector, degrees float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return Identity
	}
	half := degrees * math.Pi / 360
	s := math.Sin(half) / n
	return quat.Number{Real: math.Cos(half), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// Rotate applies the rotation q to v.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// Nlerp interpolates between two rotations along the shorter arc and renormalizes.
func Nlerp(a, b quat.Number, t float64) quat.Number {
	if a.Real*b.Real+a.Imag*b.Imag+a.Jmag*b.Jmag+a.Kmag*b.Kmag < 0 {
		b = quat.Scale(-1, b)
	}
	q := quat.Add(quat.Scale(1-t, a), quat.Scale(t, b))
	return normalize(q)
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Keyframe pins a component pose at a point in time.
type Keyframe struct {
	At          time.Duration
	Translation r3.Vector
	Rotation    quat.Number
}

// Track is the keyframed motion of one component.
type Track struct {
	Component string
	Keyframes []Keyframe
}

// Validate checks that the track has keyframes at distinct, non-negative times.
func (t *Track) Validate() error {
	if t.Component == "" {
		return errors.New("track has no component")
	}
	if len(t.Keyframes) == 0 {
		return errors.Errorf("track %q has no keyframes", t.Component)
	}
	for i, k := range t.Keyframes {
		if k.At < 0 {
			return errors.Errorf("track %q: keyframe %d has negative time %s", t.Component, i, k.At)
		}
		if quat.Abs(k.Rotation) == 0 {
			return errors.Errorf("track %q: keyframe %d has a zero rotation", t.Component, i)
		}
	}
	sort.SliceStable(t.Keyframes, func(i, j int) bool { return t.Keyframes[i].At < t.Keyframes[j].At })
	for i := 1; i < len(t.Keyframes); i++ {
		if t.Keyframes[i].At == t.Keyframes[i-1].At {
			return errors.Errorf("track %q: two keyframes at %s", t.Component, t.Keyframes[i].At)
		}
	}
	return nil
}

// Duration is the time of the last keyframe.
func (t Track) Duration() time.Duration {
	if len(t.Keyframes) == 0 {
		return 0
	}
	return t.Keyframes[len(t.Keyframes)-1].At
}

// Sample returns the pose at time at, holding the first and last keyframes outside their range.
// Keyframes must be sorted, see Validate.
func (t Track) Sample(at time.Duration) Transform {
	ks := t.Keyframes
	out := Transform{Component: t.Component, Rotation: Identity}
	switch {
	case len(ks) == 0:
		return out
	case at <= ks[0].At:
		out.Translation, out.Rotation = ks[0].Translation, normalize(ks[0].Rotation)
		return out
	case at >= ks[len(ks)-1].At:
		last := ks[len(ks)-1]
		out.Translation, out.Rotation = last.Translation, normalize(last.Rotation)
		return out
	}

	i := sort.Search(len(ks), func(i int) bool { return ks[i].At > at }) - 1
	a, b := ks[i], ks[i+1]
	f := float64(at-a.At) / float64(b.At-a.At)
	out.Translation = a.Translation.Add(b.Translation.Sub(a.Translation).Mul(f))
	out.Rotation = Nlerp(a.Rotation, b.Rotation, f)
	return out
}

// Animation is a set of tracks played together.
type Animation struct {
	Name   string
	Tracks []Track
	Loop   bool
}

// Validate checks every track and that no component is animated twice.
func (a *Animation) Validate() error {
	if len(a.Tracks) == 0 {
		return errors.Errorf("animation %q has no tracks", a.Name)
	}
	seen := map[string]bool{}
	for i := range a.Tracks {
		if err := a.Tracks[i].Validate(); err != nil {
			return errors.Wrapf(err, "animation %q", a.Name)
		}
		if seen[a.Tracks[i].Component] {
			return errors.Errorf("animation %q: component %q has more than one track", a.Name, a.Tracks[i].Component)
		}
		seen[a.Tracks[i].Component] = true
	}
	return nil
}

// Duration is the length of the longest track.
func (a Animation) Duration() time.Duration {
	var d time.Duration
	for _, t := range a.Tracks {
		d = max(d, t.Duration())
	}
	return d
}
