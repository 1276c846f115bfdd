package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrPermissionDenied = errors.New("location authorization denied")

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// Provider is a device position source with a continuous update stream.
// Implementations must not hold internal locks while invoking the handler,
// since the handler may call StopUpdates.
type Provider interface {
	RequestAuthorization(ctx context.Context) error
	StartUpdates(handler func(Coordinate, error)) error
	StopUpdates()
}

// Fix is the outcome of a single-shot subscription.
type Fix struct {
	Coordinate Coordinate
	Err        error
}

// SubscribeOnce starts p, takes the first delivered coordinate or error,
// stops p and resolves the returned channel exactly once.
func SubscribeOnce(ctx context.Context, p Provider) <-chan Fix {
	out := make(chan Fix, 1)

	if err := p.RequestAuthorization(ctx); err != nil {
		out <- Fix{Err: err}
		return out
	}

	done := make(chan struct{})
	var once sync.Once
	finish := func(f Fix, stop bool) {
		once.Do(func() {
			close(done)
			if stop {
				p.StopUpdates()
			}
			out <- f
		})
	}

	err := p.StartUpdates(func(c Coordinate, err error) {
		finish(Fix{Coordinate: c, Err: err}, true)
	})
	if err != nil {
		finish(Fix{Err: fmt.Errorf("start location updates: %w", err)}, false)
		return out
	}

	go func() {
		select {
		case <-ctx.Done():
			finish(Fix{Err: ctx.Err()}, true)
		case <-done:
		}
	}()

	return out
}

// Fixed reports a configured coordinate, modelling a device that is never moved.
type Fixed struct {
	coord      Coordinate
	authorized bool

	mu      sync.Mutex
	running bool
}

func NewFixed(coord Coordinate, authorized bool) *Fixed {
	return &Fixed{coord: coord, authorized: authorized}
}

func (f *Fixed) RequestAuthorization(ctx context.Context) error {
	if !f.authorized {
		return ErrPermissionDenied
	}
	return nil
}

func (f *Fixed) StartUpdates(handler func(Coordinate, error)) error {
	if !f.authorized {
		return ErrPermissionDenied
	}

	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	go handler(f.coord, nil)
	return nil
}

func (f *Fixed) StopUpdates() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *Fixed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
