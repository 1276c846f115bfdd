package location

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"suntrack/internal/fetch"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"
	UnknownCity         = "Unknown City"
)

// Geocoder resolves a coordinate to a locality name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c Coordinate) (string, error)
}

type GeocodeError struct {
	Coordinate Coordinate
	Err        error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("reverse geocode %s: %v", e.Coordinate, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

type nominatimReverseResponse struct {
	PlaceID     int64  `json:"place_id"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		Country      string `json:"country"`
		CountryCode  string `json:"country_code"`
	} `json:"address"`
}

type Nominatim struct {
	baseURL string
	client  *fetch.Client
}

func NewNominatim(baseURL string, client *fetch.Client) *Nominatim {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultNominatimURL
	}
	return &Nominatim{baseURL: baseURL, client: client}
}

// ReverseGeocode returns the locality of c, or UnknownCity when the place
// resolves but has no city, town or village.
func (n *Nominatim) ReverseGeocode(ctx context.Context, c Coordinate) (string, error) {
	req := fetch.Request{
		BaseURL: n.baseURL,
		Query: map[string]string{
			"lat":             strconv.FormatFloat(c.Latitude, 'f', -1, 64),
			"lon":             strconv.FormatFloat(c.Longitude, 'f', -1, 64),
			"format":          "json",
			"zoom":            "10",
			"addressdetails":  "1",
			"accept-language": "en",
		},
	}

	var payload nominatimReverseResponse
	if err := n.client.GetJSON(ctx, "nominatim", req, &payload); err != nil {
		return "", &GeocodeError{Coordinate: c, Err: err}
	}
	if payload.Error != "" {
		return "", &GeocodeError{Coordinate: c, Err: fmt.Errorf("nominatim: %s", payload.Error)}
	}

	for _, name := range []string{
		payload.Address.City,
		payload.Address.Town,
		payload.Address.Village,
		payload.Address.Municipality,
	} {
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
	}
	return UnknownCity, nil
}
