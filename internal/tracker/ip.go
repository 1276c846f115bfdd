package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"suntrack/internal/ipgeo"
)

type IPState struct {
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	ISPName    string  `json:"isp_name"`
	Latitude   float32 `json:"latitude"`
	Longitude  float32 `json:"longitude"`
}

type IPLookup interface {
	Lookup(ctx context.Context, ip string) (*ipgeo.Info, error)
}

// IPTracker geolocates user supplied IP addresses.
//
// Each UpdateIP issues an independent request with no sequencing. When calls
// overlap, the response that completes last wins, even if it belongs to an
// older submission.
type IPTracker struct {
	base
	store  *Store[IPState]
	lookup IPLookup

	mu        sync.RWMutex
	submitted string
}

type IPTrackerConfig struct {
	Lookup     IPLookup
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Timeout    time.Duration
}

func NewIPTracker(cfg IPTrackerConfig) *IPTracker {
	t := &IPTracker{
		store:  NewStore[IPState](),
		lookup: cfg.Lookup,
	}
	t.base.init("ip", cfg.Logger, cfg.Dispatcher, cfg.Timeout)
	return t
}

func (t *IPTracker) Snapshot() IPState { return t.store.Snapshot() }

func (t *IPTracker) Subscribe(fn func(IPState)) func() { return t.store.Subscribe(fn) }

// Submitted returns the most recent address passed to UpdateIP.
func (t *IPTracker) Submitted() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.submitted
}

// UpdateIP looks up ip as typed; validation is left to the upstream API.
func (t *IPTracker) UpdateIP(ip string) {
	t.mu.Lock()
	t.submitted = ip
	t.mu.Unlock()

	t.run(func(ctx context.Context) {
		info, err := t.lookup.Lookup(ctx, ip)
		if err != nil {
			t.fail("ipgeolocation", err)
			return
		}
		t.succeed("ipgeolocation")
		t.logger.Debug("ip resolved", "ip", ip, "city", info.City)
		publish(&t.base, t.store, func(s *IPState) {
			s.City = info.City
			s.PostalCode = info.PostalCode
			s.Country = info.Country
			s.ISPName = info.ISPName
			s.Latitude = info.Latitude
			s.Longitude = info.Longitude
		})
	})
}
