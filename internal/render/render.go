// Package render draws a subject's resolved route as a PNG map artifact.
package render

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/roadtrip/internal/geo"
	"github.com/banshee-data/roadtrip/internal/route"
)

// MapRenderer plots every trip of a route over the subject's points.
type MapRenderer struct {
	Width  vg.Length
	Height vg.Length
}

// NewMapRenderer returns a renderer producing 12x8 inch images.
func NewMapRenderer() *MapRenderer {
	return &MapRenderer{Width: 12 * vg.Inch, Height: 8 * vg.Inch}
}

// Render draws one coloured line per trip, decoded from its polyline
// geometry, and a dot per point, in longitude/latitude space.
func (r *MapRenderer) Render(ar *route.AggregateRoute, ps geo.PointSet) ([]byte, error) {
	if len(ps.Points) == 0 {
		return nil, fmt.Errorf("render %s: %w", ar.Subject, geo.ErrNoPoints)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %d locations, %d trips", ar.Subject, len(ps.Points), len(ar.Trips))
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	colors := generateColors(len(ar.Trips))
	for i, trip := range ar.Trips {
		if trip.Geometry == "" {
			continue
		}
		vertices, err := geo.DecodePolyline(trip.Geometry, geo.PolylinePrecision)
		if err != nil {
			return nil, fmt.Errorf("render %s trip %d: %w", ar.Subject, i, err)
		}
		pts := make(plotter.XYs, len(vertices))
		for j, v := range vertices {
			pts[j] = plotter.XY{X: v.Lon, Y: v.Lat}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("render %s trip %d: %w", ar.Subject, i, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
	}

	stops := make(plotter.XYs, len(ps.Points))
	for i, pt := range ps.Points {
		stops[i] = plotter.XY{X: pt.Lon, Y: pt.Lat}
	}
	scatter, err := plotter.NewScatter(stops)
	if err != nil {
		return nil, fmt.Errorf("render %s points: %w", ar.Subject, err)
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	scatter.GlyphStyle.Color = color.RGBA{A: 255}
	p.Add(scatter)

	wt, err := p.WriterTo(r.Width, r.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", ar.Subject, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ar.Subject, err)
	}
	return buf.Bytes(), nil
}

// generateColors creates a palette of n distinct trip colours.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
