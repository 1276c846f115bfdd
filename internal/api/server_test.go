package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"suntrack/internal/ipgeo"
	"suntrack/internal/location"
	"suntrack/internal/sunrise"
	"suntrack/internal/tracker"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubSun struct{}

func (stubSun) Get(ctx context.Context, c location.Coordinate) (*sunrise.SunTimes, error) {
	return &sunrise.SunTimes{Sunrise: "7:27:02 AM", Sunset: "5:05:55 PM", DayLength: "9:38:53", Status: "OK"}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(ctx context.Context, c location.Coordinate) (string, error) {
	return "Málaga", nil
}

type stubLookup struct{}

func (stubLookup) Lookup(ctx context.Context, ip string) (*ipgeo.Info, error) {
	if ip == "bad" {
		return nil, errors.New("invalid ip")
	}
	return &ipgeo.Info{City: "San Jose", PostalCode: "95141", Country: "United States", ISPName: "AT&T Mobility LLC", Latitude: 37.1835, Longitude: -121.7714}, nil
}

func newTestServer(t *testing.T) (*Server, *tracker.SunTracker, *tracker.IPTracker) {
	t.Helper()
	sun := tracker.NewSunTracker(tracker.SunTrackerConfig{
		Locator:  location.NewFixed(location.Coordinate{Latitude: 36.72016, Longitude: -4.42034}, true),
		Geocoder: stubGeocoder{},
		Sun:      stubSun{},
		Logger:   discard,
	})
	ip := tracker.NewIPTracker(tracker.IPTrackerConfig{Lookup: stubLookup{}, Logger: discard})
	return NewServer(ServerConfig{Port: 0, Sun: sun, IP: ip, Logger: discard}), sun, ip
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"sun_phase":"idle"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestFetchSun(t *testing.T) {
	s, sun, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/sun/fetch", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusAccepted)
	}
	sun.Wait()

	rec = do(t, s, http.MethodGet, "/api/v1/sun", "")
	var resp struct {
		State     tracker.SunState `json:"state"`
		Phase     string           `json:"phase"`
		LastError *string          `json:"last_error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	if resp.State.City != "Málaga" || resp.State.Sunrise != "7:27:02 AM" || resp.State.Latitude != 36.72016 {
		t.Errorf("state = %+v", resp.State)
	}
	if resp.Phase != "idle" || resp.LastError != nil {
		t.Errorf("phase = %q, last_error = %v", resp.Phase, resp.LastError)
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "valid", body: `{"latitude":48.8566,"longitude":2.3522}`, want: http.StatusAccepted},
		{name: "zero is a valid coordinate", body: `{"latitude":0,"longitude":0}`, want: http.StatusAccepted},
		{name: "missing longitude", body: `{"latitude":48.8566}`, want: http.StatusBadRequest},
		{name: "not json", body: `lat=1`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sun, _ := newTestServer(t)
			rec := do(t, s, http.MethodPost, "/api/v1/location", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d; want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			sun.Wait()
		})
	}
}

func TestUpdateIP(t *testing.T) {
	s, _, ip := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/ip", `{"ip":"166.171.248.255"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusAccepted)
	}
	ip.Wait()

	rec = do(t, s, http.MethodGet, "/api/v1/ip", "")
	body := rec.Body.String()
	for _, want := range []string{`"ip":"166.171.248.255"`, `"city":"San Jose"`, `"isp_name":"AT\u0026T Mobility LLC"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body = %s; missing %s", body, want)
		}
	}

	rec = do(t, s, http.MethodPost, "/api/v1/ip", `{"ip":"bad"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusAccepted)
	}
	ip.Wait()
	rec = do(t, s, http.MethodGet, "/api/v1/ip", "")
	if !strings.Contains(rec.Body.String(), `"city":"San Jose"`) || !strings.Contains(rec.Body.String(), `"last_error":"invalid ip"`) {
		t.Errorf("failed lookup should keep state and report error: %s", rec.Body.String())
	}
}

func TestUpdateIP_MissingField(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/v1/ip", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
}

type sseEvent struct {
	name string
	data string
}

// readEvents parses server-sent events from r until the body is closed.
func readEvents(r io.Reader, out chan<- sseEvent) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && ev.name != "":
			out <- ev
			ev = sseEvent{}
		}
	}
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return sseEvent{}
}

func TestStream(t *testing.T) {
	s, sun, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := make(chan sseEvent, 16)
	go readEvents(resp.Body, events)

	first, second := nextEvent(t, events), nextEvent(t, events)
	if first.name != "sun" || second.name != "ip" {
		t.Fatalf("initial events = %q, %q; want sun, ip", first.name, second.name)
	}

	sun.OnLocationUpdate(location.Coordinate{Latitude: 48.8566, Longitude: 2.3522})
	for {
		ev := nextEvent(t, events)
		if ev.name != "sun" {
			t.Fatalf("event = %q, want sun", ev.name)
		}
		var st tracker.SunState
		if err := json.Unmarshal([]byte(ev.data), &st); err != nil {
			t.Fatalf("decode %q: %v", ev.data, err)
		}
		if st.Latitude == 48.8566 && st.Sunrise == "7:27:02 AM" {
			break
		}
	}
	sun.Wait()

	cancel()
	for range events {
	}
}
