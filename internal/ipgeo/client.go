package ipgeo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"suntrack/internal/fetch"
)

const DefaultBaseURL = "https://ipgeolocation.abstractapi.com/v1/"

var ErrMissingAPIKey = errors.New("ipgeolocation api key is empty")

// Info is the subset of a lookup that callers display.
type Info struct {
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	ISPName    string  `json:"isp_name"`
	Latitude   float32 `json:"latitude"`
	Longitude  float32 `json:"longitude"`
}

// Response mirrors the full abstractapi payload.
type Response struct {
	IPAddress          string   `json:"ip_address"`
	City               *string  `json:"city"`
	CityGeonameID      int64    `json:"city_geoname_id"`
	Region             string   `json:"region"`
	RegionISOCode      string   `json:"region_iso_code"`
	RegionGeonameID    int64    `json:"region_geoname_id"`
	PostalCode         string   `json:"postal_code"`
	Country            string   `json:"country"`
	CountryCode        string   `json:"country_code"`
	CountryGeonameID   int64    `json:"country_geoname_id"`
	CountryIsEU        bool     `json:"country_is_eu"`
	Continent          string   `json:"continent"`
	ContinentCode      string   `json:"continent_code"`
	ContinentGeonameID int64    `json:"continent_geoname_id"`
	Longitude          *float32 `json:"longitude"`
	Latitude           *float32 `json:"latitude"`
	Security           struct {
		IsVPN bool `json:"is_vpn"`
	} `json:"security"`
	Timezone struct {
		Name         string `json:"name"`
		Abbreviation string `json:"abbreviation"`
		GMTOffset    int    `json:"gmt_offset"`
		CurrentTime  string `json:"current_time"`
		IsDST        bool   `json:"is_dst"`
	} `json:"timezone"`
	Flag struct {
		Emoji   string `json:"emoji"`
		Unicode string `json:"unicode"`
		PNG     string `json:"png"`
		SVG     string `json:"svg"`
	} `json:"flag"`
	Currency struct {
		CurrencyName string `json:"currency_name"`
		CurrencyCode string `json:"currency_code"`
	} `json:"currency"`
	Connection *Connection `json:"connection"`
}

type Connection struct {
	AutonomousSystemNumber       uint32  `json:"autonomous_system_number"`
	AutonomousSystemOrganization string  `json:"autonomous_system_organization"`
	ConnectionType               string  `json:"connection_type"`
	ISPName                      *string `json:"isp_name"`
	OrganizationName             string  `json:"organization_name"`
}

// Validate rejects payloads without a location, such as the all-null body
// returned for private and reserved addresses.
func (r *Response) Validate() error {
	var missing []string
	if r.City == nil {
		missing = append(missing, "city")
	}
	if r.Latitude == nil {
		missing = append(missing, "latitude")
	}
	if r.Longitude == nil {
		missing = append(missing, "longitude")
	}
	if r.Connection == nil || r.Connection.ISPName == nil {
		missing = append(missing, "connection.isp_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (r *Response) Info() *Info {
	info := &Info{
		City:       value(r.City),
		PostalCode: r.PostalCode,
		Country:    r.Country,
		Latitude:   value(r.Latitude),
		Longitude:  value(r.Longitude),
	}
	if r.Connection != nil {
		info.ISPName = value(r.Connection.ISPName)
	}
	return info
}

func value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

type Client struct {
	baseURL string
	apiKey  string
	client  *fetch.Client
}

func NewClient(baseURL, apiKey string, client *fetch.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, apiKey: strings.TrimSpace(apiKey), client: client}
}

// Request builds the lookup for ip. The address is passed through as typed.
func (c *Client) Request(ip string) fetch.Request {
	return fetch.Request{
		BaseURL: c.baseURL,
		Query:   map[string]string{"api_key": c.apiKey, "ip_address": ip},
	}
}

// callerRequest omits ip_address so the API geolocates the caller.
func (c *Client) callerRequest() fetch.Request {
	return fetch.Request{
		BaseURL: c.baseURL,
		Query:   map[string]string{"api_key": c.apiKey},
	}
}

func (c *Client) Lookup(ctx context.Context, ip string) (*Info, error) {
	payload, err := c.LookupFull(ctx, ip)
	if err != nil {
		return nil, err
	}
	return payload.Info(), nil
}

func (c *Client) LookupFull(ctx context.Context, ip string) (*Response, error) {
	return c.do(ctx, c.Request(ip))
}

func (c *Client) lookupCaller(ctx context.Context) (*Info, error) {
	payload, err := c.do(ctx, c.callerRequest())
	if err != nil {
		return nil, err
	}
	return payload.Info(), nil
}

func (c *Client) do(ctx context.Context, r fetch.Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var payload Response
	if err := c.client.GetJSON(ctx, "ipgeolocation", r, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
