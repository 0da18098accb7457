package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/models"
)

var (
	// ErrUnexpectedStatus is returned for non-2xx upstream responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrDecode covers bodies that are not valid JSON at either decode stage.
	ErrDecode = errors.New("decode payload")
	// ErrNullPayload is returned when the upstream had no data to give (it encodes None as null).
	ErrNullPayload = errors.New("upstream returned null payload")
	// ErrMalformedReading is returned when a reading lacks a required field.
	ErrMalformedReading = errors.New("malformed station reading")
	// ErrPayloadTooLarge is returned when the body exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Client fetches station readings from the display_<metric>/update endpoint.
type Client struct {
	http     *http.Client
	endpoint string
	metric   string
	maxBytes int64
}

// NewClient resolves path against baseURL the way a browser resolves a
// relative URL against its page.
func NewClient(httpClient *http.Client, baseURL, path, metric string, maxBytes int64) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse feed path: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:     httpClient,
		endpoint: base.ResolveReference(ref).String(),
		metric:   metric,
		maxBytes: maxBytes,
	}, nil
}

// Endpoint is the absolute URL polled by Fetch.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch issues one GET and returns the decoded readings in server order.
func (c *Client) Fetch(ctx context.Context) ([]models.StationReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w %s", ErrUnexpectedStatus, resp.Status)
	}

	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if c.maxBytes > 0 && int64(len(raw)) > c.maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrPayloadTooLarge, c.maxBytes)
	}

	readings, err := DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(readings, c.metric); err != nil {
		return nil, err
	}
	return readings, nil
}

// DecodePayload performs the two-stage decode of the feed body. The upstream
// JSON-encodes an already JSON-encoded string, so the transport value is a
// string holding the reading array. A body that is the array itself is
// accepted too.
func DecodePayload(raw []byte) ([]models.StationReading, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDecode)
	}

	inner := raw
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: outer: %v", ErrDecode, err)
		}
		inner = bytes.TrimSpace([]byte(s))
	}

	if bytes.Equal(inner, []byte("null")) {
		return nil, ErrNullPayload
	}

	var readings []models.StationReading
	if err := json.Unmarshal(inner, &readings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return readings, nil
}

// Validate checks that every reading carries what the chart needs.
func Validate(readings []models.StationReading, metric string) error {
	for i, r := range readings {
		if !r.HasStationID() {
			return fmt.Errorf("%w: index %d: missing station_id", ErrMalformedReading, i)
		}
		if r.Hours == nil {
			return fmt.Errorf("%w: station %s: missing hours", ErrMalformedReading, r.StationID)
		}
		if r.Series(metric) == nil {
			return fmt.Errorf("%w: station %s: missing %s", ErrMalformedReading, r.StationID, metric)
		}
	}
	return nil
}
