package tracker

import (
	"context"
	"sync"
)

// Dispatcher runs state mutations on the context observers expect them on.
type Dispatcher interface {
	Dispatch(fn func())
}

type DispatchFunc func(fn func())

func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// Immediate runs fn on the calling goroutine.
var Immediate Dispatcher = DispatchFunc(func(fn func()) { fn() })

// Loop serializes dispatched functions onto the single goroutine running Run.
// Functions dispatched after Run returns are dropped.
type Loop struct {
	queue    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		queue:   make(chan func(), size),
		stopped: make(chan struct{}),
	}
}

func (l *Loop) Dispatch(fn func()) {
	select {
	case <-l.stopped:
		return
	default:
	}

	select {
	case l.queue <- fn:
	case <-l.stopped:
	}
}

// Run drains the queue until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	defer l.stopOnce.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		}
	}
}
