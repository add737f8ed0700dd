package tracker

import (
	"context"
	"slices"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/cadplugins/camtrack/logging"
	"github.com/cadplugins/camtrack/rimage/transform"
)

// Manager owns the sessions of all cameras, keyed by camera name.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   logging.Logger
}

// NewManager returns a Manager without sessions.
func NewManager(logger logging.Logger) *Manager {
	return &Manager{sessions: map[string]*Session{}, logger: logger}
}

// Start calibrates and starts tracking through src under name. src is closed on failure.
func (m *Manager) Start(ctx context.Context, name string, src FrameSource, cfg SessionConfig) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[name]; ok {
		return nil, multierr.Combine(
			errors.Errorf("camera %q is already tracking", name),
			src.Close(ctx))
	}
	s, err := NewSession(ctx, name, src, cfg, m.logger.Sublogger("session"))
	if err != nil {
		return nil, err
	}
	m.sessions[name] = s
	return s, nil
}

// Session returns the session tracking through the named camera.
func (m *Manager) Session(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}

// Names lists the cameras being tracked, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	names := lo.Keys(m.sessions)
	m.mu.Unlock()
	slices.Sort(names)
	return names
}

// Stop closes the named session.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !ok {
		return errors.Errorf("camera %q is not tracking", name)
	}
	return s.Close(ctx)
}

// StopAll closes every session and returns the combined close errors.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := lo.Values(m.sessions)
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	var errs error
	for _, s := range sessions {
		errs = multierr.Combine(errs, s.Close(ctx))
	}
	return errs
}

// Statuses returns the status line of every session.
func (m *Manager) Statuses() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.MapValues(m.sessions, func(s *Session, _ string) string {
		return s.Status()
	})
}

// Rays returns one ray per camera. Cameras without a ray this time are logged and skipped.
func (m *Manager) Rays(ctx context.Context) map[string]transform.Ray {
	return m.collect(ctx, (*Session).Ray)
}

// Locate triangulates the marker from the back-projected rays of all cameras that currently
// track it.
func (m *Manager) Locate(ctx context.Context) (r3.Vector, error) {
	rays := m.collect(ctx, (*Session).BackProject)
	return transform.Triangulate(lo.Values(rays))
}

func (m *Manager) collect(
	ctx context.Context,
	rayFn func(*Session, context.Context) (transform.Ray, error),
) map[string]transform.Ray {
	m.mu.Lock()
	sessions := lo.Values(m.sessions)
	m.mu.Unlock()

	rays := make(map[string]transform.Ray, len(sessions))
	for _, s := range sessions {
		ray, err := rayFn(s, ctx)
		if err != nil {
			m.logger.Debugw("skipping camera without ray", "camera", s.Name(), "error", err)
			continue
		}
		rays[s.Name()] = ray
	}
	return rays
}
