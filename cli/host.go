package cli

import (
	"io"
	"sync"

	"github.com/cadplugins/camtrack/animator"
	"github.com/cadplugins/camtrack/rimage/transform"
)

// consoleHost stands in for the CAD application by printing what would be drawn.
type consoleHost struct {
	mu         sync.Mutex
	out        io.Writer
	statuses   map[string]string
	transforms int
}

func newConsoleHost(out io.Writer) *consoleHost {
	return &consoleHost{out: out, statuses: map[string]string{}}
}

func (h *consoleHost) AddRay(name string, ray transform.Ray) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	printf(h.out, "%s: %s", name, ray)
	return nil
}

func (h *consoleHost) ApplyTransform(component string, t animator.Transform) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transforms++
	printf(h.out, "%s", t)
	return nil
}

func (h *consoleHost) SetStatus(camera, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.statuses[camera] == text {
		return
	}
	h.statuses[camera] = text
	printf(h.out, "[%s] %s", camera, text)
}

func (h *consoleHost) appliedTransforms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transforms
}

func (h *consoleHost) printf(format string, a ...interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	printf(h.out, format, a...)
}
