package ipgeo

import (
	"context"
	"sync"
	"time"

	"suntrack/internal/location"
)

// Locator is a location.Provider that positions the host by its public IP.
type Locator struct {
	client  *Client
	timeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewLocator(client *Client, timeout time.Duration) *Locator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Locator{client: client, timeout: timeout}
}

func (l *Locator) RequestAuthorization(ctx context.Context) error {
	if l.client.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (l *Locator) StartUpdates(handler func(location.Coordinate, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel = cancel
	l.mu.Unlock()

	go func() {
		info, err := l.client.lookupCaller(ctx)
		if ctx.Err() == context.Canceled {
			return
		}
		if err != nil {
			handler(location.Coordinate{}, err)
			return
		}
		handler(location.Coordinate{
			Latitude:  float64(info.Latitude),
			Longitude: float64(info.Longitude),
		}, nil)
	}()
	return nil
}

func (l *Locator) StopUpdates() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
