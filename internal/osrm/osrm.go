// Package osrm resolves trips through an OSRM routing backend's trip service.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/httputil"
	"github.com/banshee-data/roadtrip/internal/route"
)

// DefaultURL is the public OSRM demo server.
const DefaultURL = "https://router.project-osrm.org"

// codeOK is the envelope code of a successful response.
const codeOK = "Ok"

var (
	// ErrUnexpectedStatus is returned for HTTP statuses that carry no
	// routing verdict.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrNoPoints is returned when asked to route nothing.
	ErrNoPoints = errors.New("no points to route")
)

// Client calls the trip service of one OSRM instance.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// New returns a client for baseURL. An empty baseURL uses DefaultURL.
func New(baseURL string, client httputil.HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Trips   []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Legs     []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"legs"`
	} `json:"trips"`
}

// TripURL returns the round-trip request URL for points, starting and
// ending at the first point.
func (c *Client) TripURL(points []geo.Point) string {
	var b strings.Builder
	b.WriteString(c.BaseURL)
	b.WriteString("/trip/v1/driving/")
	for i, p := range points {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.FormatFloat(p.Lon, 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', -1, 64))
	}
	b.WriteString("?roundtrip=true&source=first&geometries=polyline6&overview=full")
	return b.String()
}

// Resolve asks the backend for a trip through points. A routing error the
// backend reports comes back as a backend-error Resolution; network
// failures, unexpected statuses and undecodable bodies are errors.
func (c *Client) Resolve(ctx context.Context, points []geo.Point) (route.Resolution, error) {
	if len(points) == 0 {
		return route.Resolution{}, ErrNoPoints
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TripURL(points), nil)
	if err != nil {
		return route.Resolution{}, fmt.Errorf("build trip request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return route.Resolution{}, fmt.Errorf("trip request: %w", err)
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return route.Resolution{}, err
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && resp.StatusCode != http.StatusBadRequest {
		return route.Resolution{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Code == "" {
		if err == nil {
			err = errors.New("missing code")
		}
		return route.Resolution{}, fmt.Errorf("decode trip response (HTTP %d): %w", resp.StatusCode, err)
	}

	return env.resolution(), nil
}

func (env *envelope) resolution() route.Resolution {
	if env.Code != codeOK {
		reason := env.Code
		if env.Message != "" {
			reason = env.Code + ": " + env.Message
		}
		return route.BackendError(reason)
	}
	if len(env.Trips) == 0 {
		return route.BackendError("Ok response without trips")
	}

	t := env.Trips[0]
	trip := route.Trip{
		Geometry: t.Geometry,
		Distance: t.Distance,
		Duration: t.Duration,
		Legs:     make([]route.Leg, len(t.Legs)),
	}
	for i, l := range t.Legs {
		trip.Legs[i] = route.Leg{Distance: l.Distance, Duration: l.Duration}
	}
	return route.OK(trip)
}
