// Package overpass fetches a brand's locations from an Overpass API
// instance.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/httputil"
	"github.com/banshee-data/roadtrip/internal/monitoring"
	"github.com/banshee-data/roadtrip/internal/subject"
	"github.com/banshee-data/roadtrip/internal/timeutil"
)

// DefaultURL is a public Overpass instance.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// DefaultAreas are the countries searched when none are configured.
var DefaultAreas = []string{"United States", "Canada", "Mexico"}

var (
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrRuntime is returned when the server reports a query runtime
	// error, typically a timeout, in an otherwise successful response.
	ErrRuntime = errors.New("overpass runtime error")
	// ErrNoFilter is returned for subjects without a node filter.
	ErrNoFilter = errors.New("subject has no filter")
)

// Client queries one Overpass instance.
type Client struct {
	URL  string
	HTTP httputil.HTTPClient
	// Areas are the named areas the simple query searches.
	Areas []string
	// Subregions replace Areas for subjects with outlying locations; one
	// query is issued per subregion.
	Subregions []string
	// Timeout is the server-side query timeout.
	Timeout time.Duration
	// Pause is waited between subregion queries.
	Pause time.Duration
	Clock timeutil.Clock
}

// New returns a client for url using the default areas.
func New(url string, client httputil.HTTPClient) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:     url,
		HTTP:    client,
		Areas:   DefaultAreas,
		Timeout: 180 * time.Second,
		Pause:   time.Second,
		Clock:   timeutil.RealClock{},
	}
}

// ResponseGrace is how long past the server-side query timeout a client
// should wait for Overpass to report that timeout itself.
const ResponseGrace = 30 * time.Second

// HTTPTimeout returns the shortest HTTP client timeout that still lets the
// server-side query timeout fire first.
func (c *Client) HTTPTimeout() time.Duration {
	return c.Timeout + ResponseGrace
}

type response struct {
	Remark   string    `json:"remark"`
	Elements []element `json:"elements"`
}

type element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// Query builds an Overpass QL query selecting nodes that match filter
// inside any of the named areas. adminLevel restricts the area lookup
// when non-empty.
func Query(filter string, areas []string, adminLevel string, timeout time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", int(timeout.Seconds()))
	for _, a := range areas {
		fmt.Fprintf(&b, "  area[\"name\"=%s]", quote(a))
		if adminLevel != "" {
			fmt.Fprintf(&b, "[\"admin_level\"=%s]", quote(adminLevel))
		}
		b.WriteString(";\n")
	}
	b.WriteString(")->.searchArea;\n")
	fmt.Fprintf(&b, "node[%s](area.searchArea);\nout;\n", filter)
	return b.String()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// Fetch returns every node matching s.Filter. Subjects with islands are
// fetched one subregion at a time and the results unioned by node ID in
// first-seen order.
func (c *Client) Fetch(ctx context.Context, s subject.Subject) (geo.PointSet, error) {
	if !s.Configured() {
		return geo.PointSet{}, fmt.Errorf("%w: %q", ErrNoFilter, s.Name)
	}

	ps := geo.PointSet{Subject: s.Key(), Points: []geo.Point{}}
	if !s.HasIslands || len(c.Subregions) == 0 {
		points, err := c.run(ctx, Query(s.Filter, c.Areas, "", c.Timeout))
		if err != nil {
			return geo.PointSet{}, err
		}
		ps.Points = union(ps.Points, points, map[int64]bool{})
	} else {
		seen := make(map[int64]bool)
		for i, region := range c.Subregions {
			if i > 0 {
				if err := c.Clock.Wait(ctx, c.Pause); err != nil {
					return geo.PointSet{}, err
				}
			}
			points, err := c.run(ctx, Query(s.Filter, []string{region}, "4", c.Timeout))
			if err != nil {
				return geo.PointSet{}, fmt.Errorf("subregion %s: %w", region, err)
			}
			ps.Points = union(ps.Points, points, seen)
		}
	}
	ps.FetchedAt = c.Clock.Now().UTC()
	monitoring.Logf("[%s] fetched %d points", ps.Subject, len(ps.Points))
	return ps, nil
}

func union(dst, src []geo.Point, seen map[int64]bool) []geo.Point {
	for _, p := range src {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		dst = append(dst, p)
	}
	return dst
}

func (c *Client) run(ctx context.Context, query string) ([]geo.Point, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	if strings.HasPrefix(r.Remark, "runtime error") {
		return nil, fmt.Errorf("%w: %s", ErrRuntime, r.Remark)
	}

	points := make([]geo.Point, 0, len(r.Elements))
	for _, el := range r.Elements {
		if el.Type != "node" {
			continue
		}
		points = append(points, geo.Point{
			ID:            el.ID,
			Lat:           el.Lat,
			Lon:           el.Lon,
			Name:          el.Tags["name"],
			Amenity:       el.Tags["amenity"],
			Brand:         el.Tags["brand"],
			BrandWikidata: el.Tags["brand:wikidata"],
		})
	}
	return points, nil
}
