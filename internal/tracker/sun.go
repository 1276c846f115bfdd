package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"suntrack/internal/location"
	"suntrack/internal/sunrise"
)

var errNoLocator = errors.New("no location provider configured")

type SunState struct {
	City      string  `json:"city"`
	Status    string  `json:"status"`
	Sunrise   string  `json:"sunrise"`
	Sunset    string  `json:"sunset"`
	DayLength string  `json:"day_length"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type SunFetcher interface {
	Get(ctx context.Context, coord location.Coordinate) (*sunrise.SunTimes, error)
}

// SunTracker turns a single location fix into a city name and today's
// sunrise/sunset times.
type SunTracker struct {
	base
	store    *Store[SunState]
	locator  location.Provider
	geocoder location.Geocoder
	sun      SunFetcher

	mu      sync.Mutex
	pending bool
}

type SunTrackerConfig struct {
	Locator    location.Provider
	Geocoder   location.Geocoder
	Sun        SunFetcher
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Timeout    time.Duration
}

func NewSunTracker(cfg SunTrackerConfig) *SunTracker {
	t := &SunTracker{
		store:    NewStore[SunState](),
		locator:  cfg.Locator,
		geocoder: cfg.Geocoder,
		sun:      cfg.Sun,
	}
	t.base.init("sun", cfg.Logger, cfg.Dispatcher, cfg.Timeout)
	return t
}

func (t *SunTracker) Snapshot() SunState { return t.store.Snapshot() }

func (t *SunTracker) Subscribe(fn func(SunState)) func() { return t.store.Subscribe(fn) }

// FetchData requests one location fix. Calls made while a fix is pending are
// coalesced into that request.
func (t *SunTracker) FetchData() {
	if t.locator == nil {
		t.fail("location", errNoLocator)
		return
	}

	t.mu.Lock()
	if t.pending {
		t.mu.Unlock()
		t.logger.Debug("location fix already pending")
		return
	}
	t.pending = true
	t.mu.Unlock()

	t.run(func(ctx context.Context) {
		fix := <-location.SubscribeOnce(ctx, t.locator)

		t.mu.Lock()
		t.pending = false
		t.mu.Unlock()

		if fix.Err != nil {
			t.fail("location", fix.Err)
			return
		}
		t.succeed("location")
		t.OnLocationUpdate(fix.Coordinate)
	})
}

// OnLocationUpdate stores coord and starts the reverse geocode and the
// sunrise/sunset lookup. The two lookups are independent of each other.
func (t *SunTracker) OnLocationUpdate(coord location.Coordinate) {
	t.logger.Info("location update", "latitude", coord.Latitude, "longitude", coord.Longitude)

	publish(&t.base, t.store, func(s *SunState) {
		s.Latitude = coord.Latitude
		s.Longitude = coord.Longitude
	})

	if t.geocoder != nil {
		t.run(func(ctx context.Context) {
			city, err := t.geocoder.ReverseGeocode(ctx, coord)
			if err != nil {
				t.fail("geocode", err)
				return
			}
			t.succeed("geocode")
			publish(&t.base, t.store, func(s *SunState) {
				s.City = city
			})
		})
	}

	t.run(func(ctx context.Context) {
		times, err := t.sun.Get(ctx, coord)
		if err != nil {
			t.fail("sunrise", err)
			return
		}
		t.succeed("sunrise")
		publish(&t.base, t.store, func(s *SunState) {
			s.Sunrise = times.Sunrise
			s.Sunset = times.Sunset
			s.DayLength = times.DayLength
			s.Status = times.Status
		})
	})
}
