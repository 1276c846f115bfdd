package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"suntrack/internal/metrics"
)

const DefaultUserAgent = "suntrack/1.0"

// Request describes one outbound GET: a base URL plus query parameters.
// It is built fresh for every trigger.
type Request struct {
	BaseURL string
	Query   map[string]string
}

// URL merges Query into BaseURL. Existing query parameters on the base are kept.
func (r Request) URL() (string, error) {
	endpoint, err := url.Parse(r.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", r.BaseURL, err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return "", fmt.Errorf("invalid base url %q: missing scheme or host", r.BaseURL)
	}

	query := endpoint.Query()
	for k, v := range r.Query {
		query.Set(k, v)
	}
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

// Validator is implemented by response types with required fields. A body
// that decodes but fails Validate is reported as a DecodeError.
type Validator interface {
	Validate() error
}

type Client struct {
	client    *http.Client
	userAgent string
}

type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
	// Transport overrides the default round tripper, mostly for tests.
	Transport http.RoundTripper
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Client{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		userAgent: cfg.UserAgent,
	}
}

// GetJSON performs the request and decodes the body into out.
// op names the upstream in errors, logs and metrics.
func (c *Client) GetJSON(ctx context.Context, op string, r Request, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveFetch(op, resultLabel(err), time.Since(start))
	}()

	endpoint, err := r.URL()
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return &DecodeError{Op: op, Err: err}
		}
	}
	return nil
}

func resultLabel(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case *TransportError:
		return "transport_error"
	case *HTTPStatusError:
		return "status_error"
	case *DecodeError:
		return "decode_error"
	default:
		return "error"
	}
}
