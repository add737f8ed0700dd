package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers runs background loops that share one cancellable context, such as a camera's
// capture loop or a status publisher.
type StoppableWorkers interface {
	AddWorkers(...func(context.Context))
	// Stop cancels the workers and waits for all of them to return.
	Stop()
	// StopContext cancels the workers and waits for them until ctx is done. It reports whether
	// every worker returned. It may be called again to keep waiting.
	StopContext(ctx context.Context) bool
	Context() context.Context
}

// Always used through the interface: the struct holds a WaitGroup and must not be copied.
type stoppableWorkersImpl struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  func()
	running sync.WaitGroup

	drainOnce sync.Once
	drained   chan struct{}
}

// NewStoppableWorkers starts one goroutine per function.
func NewStoppableWorkers(funcs ...func(context.Context)) StoppableWorkers {
	return NewStoppableWorkersWithContext(context.Background(), funcs...)
}

// NewStoppableWorkersWithContext is like NewStoppableWorkers but the workers also stop once
// parent is done.
func NewStoppableWorkersWithContext(parent context.Context, funcs ...func(context.Context)) StoppableWorkers {
	ctx, cancel := context.WithCancel(parent)
	sw := &stoppableWorkersImpl{ctx: ctx, cancel: cancel, drained: make(chan struct{})}
	sw.AddWorkers(funcs...)
	return sw
}

// AddWorkers starts more workers. Nothing is started after a stop. A panicking worker is logged
// and counted as finished.
func (sw *stoppableWorkersImpl) AddWorkers(funcs ...func(context.Context)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.ctx.Err() != nil {
		return
	}

	sw.running.Add(len(funcs))
	for _, f := range funcs {
		goutils.PanicCapturingGo(func() {
			defer sw.running.Done()
			f(sw.ctx)
		})
	}
}

func (sw *stoppableWorkersImpl) Stop() {
	<-sw.shutdown()
}

func (sw *stoppableWorkersImpl) StopContext(ctx context.Context) bool {
	drained := sw.shutdown()
	select {
	case <-drained:
		return true
	case <-ctx.Done():
		select {
		case <-drained:
			return true
		default:
			return false
		}
	}
}

// shutdown cancels the workers and returns a channel closed once they have all returned.
// Cancelling under mu guarantees no worker is added while the WaitGroup is waited on.
func (sw *stoppableWorkersImpl) shutdown() <-chan struct{} {
	sw.mu.Lock()
	sw.cancel()
	sw.mu.Unlock()

	sw.drainOnce.Do(func() {
		goutils.PanicCapturingGo(func() {
			sw.running.Wait()
			close(sw.drained)
		})
	})
	return sw.drained
}

// Context is the context handed to every worker.
func (sw *stoppableWorkersImpl) Context() context.Context {
	return sw.ctx
}
