package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"suntrack/internal/fetch"
)

// streamProvider emits every coordinate it is fed, like a real continuous source.
type streamProvider struct {
	mu        sync.Mutex
	handler   func(Coordinate, error)
	starts    int
	stops     int
	authErr   error
	startErr  error
	startedCh chan struct{}
}

func newStreamProvider() *streamProvider {
	return &streamProvider{startedCh: make(chan struct{}, 4)}
}

func (p *streamProvider) RequestAuthorization(ctx context.Context) error { return p.authErr }

func (p *streamProvider) StartUpdates(handler func(Coordinate, error)) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.mu.Lock()
	p.handler = handler
	p.starts++
	p.mu.Unlock()
	p.startedCh <- struct{}{}
	return nil
}

func (p *streamProvider) StopUpdates() {
	p.mu.Lock()
	p.stops++
	p.handler = nil
	p.mu.Unlock()
}

func (p *streamProvider) emit(c Coordinate, err error) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(c, err)
	}
}

func waitFix(t *testing.T, ch <-chan Fix) Fix {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fix")
		return Fix{}
	}
}

func TestSubscribeOnce_FirstFixWins(t *testing.T) {
	p := newStreamProvider()
	ch := SubscribeOnce(context.Background(), p)
	<-p.startedCh

	first := Coordinate{Latitude: 48.8566, Longitude: 2.3522}
	p.emit(first, nil)
	p.emit(Coordinate{Latitude: 1, Longitude: 1}, nil)

	fix := waitFix(t, ch)
	if fix.Err != nil {
		t.Fatalf("fix error = %v", fix.Err)
	}
	if fix.Coordinate != first {
		t.Errorf("coordinate = %v, want %v", fix.Coordinate, first)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.starts != 1 || p.stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1 and 1", p.starts, p.stops)
	}
}

func TestSubscribeOnce_PermissionDenied(t *testing.T) {
	p := newStreamProvider()
	p.authErr = ErrPermissionDenied

	fix := waitFix(t, SubscribeOnce(context.Background(), p))
	if !errors.Is(fix.Err, ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", fix.Err)
	}
	if p.starts != 0 {
		t.Errorf("starts = %d, want 0", p.starts)
	}
}

func TestSubscribeOnce_StartError(t *testing.T) {
	p := newStreamProvider()
	p.startErr = errors.New("gps off")

	fix := waitFix(t, SubscribeOnce(context.Background(), p))
	if fix.Err == nil {
		t.Fatal("error = nil, want non-nil")
	}
	if p.stops != 0 {
		t.Errorf("stops = %d, want 0", p.stops)
	}
}

func TestSubscribeOnce_ContextCanceled(t *testing.T) {
	p := newStreamProvider()
	ctx, cancel := context.WithCancel(context.Background())
	ch := SubscribeOnce(ctx, p)
	<-p.startedCh
	cancel()

	fix := waitFix(t, ch)
	if !errors.Is(fix.Err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", fix.Err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stops != 1 {
		t.Errorf("stops = %d, want 1", p.stops)
	}
}

func TestFixed(t *testing.T) {
	want := Coordinate{Latitude: -33.8688, Longitude: 151.2093}

	t.Run("authorized", func(t *testing.T) {
		f := NewFixed(want, true)
		fix := waitFix(t, SubscribeOnce(context.Background(), f))
		if fix.Err != nil || fix.Coordinate != want {
			t.Fatalf("fix = %+v, want %v", fix, want)
		}
		if f.Running() {
			t.Error("provider still running after first fix")
		}
	})

	t.Run("denied", func(t *testing.T) {
		f := NewFixed(want, false)
		fix := waitFix(t, SubscribeOnce(context.Background(), f))
		if !errors.Is(fix.Err, ErrPermissionDenied) {
			t.Fatalf("error = %v, want ErrPermissionDenied", fix.Err)
		}
	})
}

func TestNominatimReverseGeocode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		want    string
		wantErr bool
	}{
		{name: "city", body: `{"address":{"city":"Paris","country":"France"}}`, want: "Paris"},
		{name: "town fallback", body: `{"address":{"town":"Gilroy"}}`, want: "Gilroy"},
		{name: "village fallback", body: `{"address":{"village":"Eze"}}`, want: "Eze"},
		{name: "no locality", body: `{"address":{"country":"Antarctica"}}`, want: UnknownCity},
		{name: "api error", body: `{"error":"Unable to geocode"}`, wantErr: true},
		{name: "bad status", body: `oops`, status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("lat") != "37.1835" || q.Get("lon") != "-121.7714" {
					t.Errorf("query = %q", r.URL.RawQuery)
				}
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewNominatim(srv.URL, fetch.NewClient(fetch.ClientConfig{Timeout: time.Second}))
			got, err := g.ReverseGeocode(context.Background(), Coordinate{Latitude: 37.1835, Longitude: -121.7714})
			if tt.wantErr {
				var geoErr *GeocodeError
				if !errors.As(err, &geoErr) {
					t.Fatalf("error = %v, want *GeocodeError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReverseGeocode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("city = %q, want %q", got, tt.want)
			}
		})
	}
}
