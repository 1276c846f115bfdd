package sunrise

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"suntrack/internal/fetch"
	"suntrack/internal/location"
)

const DefaultBaseURL = "https://api.sunrise-sunset.org/json"

// SunTimes holds the localized strings as returned by the API.
type SunTimes struct {
	Sunrise   string `json:"sunrise"`
	Sunset    string `json:"sunset"`
	DayLength string `json:"day_length"`
	Status    string `json:"status"`
}

type Results struct {
	Sunrise                   string `json:"sunrise"`
	Sunset                    string `json:"sunset"`
	SolarNoon                 string `json:"solar_noon"`
	DayLength                 string `json:"day_length"`
	CivilTwilightBegin        string `json:"civil_twilight_begin"`
	CivilTwilightEnd          string `json:"civil_twilight_end"`
	NauticalTwilightBegin     string `json:"nautical_twilight_begin"`
	NauticalTwilightEnd       string `json:"nautical_twilight_end"`
	AstronomicalTwilightBegin string `json:"astronomical_twilight_begin"`
	AstronomicalTwilightEnd   string `json:"astronomical_twilight_end"`
}

// Response is the full body of the /json endpoint.
type Response struct {
	Results *Results `json:"results"`
	Status  string   `json:"status"`
	TZID    string   `json:"tzid"`
}

// Validate rejects bodies that decode but lack the fields callers publish,
// such as {} or {"error": ...}.
func (r *Response) Validate() error {
	var missing []string
	if r.Results == nil {
		missing = append(missing, "results")
	} else {
		for _, f := range []struct{ name, value string }{
			{"results.sunrise", r.Results.Sunrise},
			{"results.sunset", r.Results.Sunset},
			{"results.day_length", r.Results.DayLength},
		} {
			if f.value == "" {
				missing = append(missing, f.name)
			}
		}
	}
	if r.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (r *Response) SunTimes() *SunTimes {
	if r.Results == nil {
		return &SunTimes{Status: r.Status}
	}
	return &SunTimes{
		Sunrise:   r.Results.Sunrise,
		Sunset:    r.Results.Sunset,
		DayLength: r.Results.DayLength,
		Status:    r.Status,
	}
}

type Client struct {
	baseURL string
	client  *fetch.Client
}

func NewClient(baseURL string, client *fetch.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, client: client}
}

// Request builds the lookup for today's times at c. Coordinates are sent
// unclamped with full float precision.
func (c *Client) Request(coord location.Coordinate) fetch.Request {
	return fetch.Request{
		BaseURL: c.baseURL,
		Query: map[string]string{
			"lat":  strconv.FormatFloat(coord.Latitude, 'f', -1, 64),
			"lng":  strconv.FormatFloat(coord.Longitude, 'f', -1, 64),
			"date": "today",
		},
	}
}

func (c *Client) Get(ctx context.Context, coord location.Coordinate) (*SunTimes, error) {
	payload, err := c.GetFull(ctx, coord)
	if err != nil {
		return nil, err
	}
	return payload.SunTimes(), nil
}

func (c *Client) GetFull(ctx context.Context, coord location.Coordinate) (*Response, error) {
	var payload Response
	if err := c.client.GetJSON(ctx, "sunrise-sunset", c.Request(coord), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
