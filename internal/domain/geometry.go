package domain

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// Vertex is a contour vertex. Coordinates are planar long/lat pairs.
type Vertex struct {
	Longitude float64 `json:"long"`
	Latitude  float64 `json:"lat"`
}

// Polygon is a closed, simple ring of vertices: the last vertex connects back
// to the first. The zero value is not a usable polygon; build one with
// NewPolygon or ParseContour.
type Polygon struct {
	vertices []Vertex
	bounds   *geom.Bounds
}

// NewPolygon validates and copies vertices into a Polygon. Duplicate and
// collinear vertices are kept as given.
func NewPolygon(vertices []Vertex) (Polygon, error) {
	if len(vertices) < 3 {
		return Polygon{}, &GeometryError{Msg: fmt.Sprintf("polygon needs at least 3 vertices, got %d", len(vertices))}
	}

	vs := make([]Vertex, len(vertices))
	copy(vs, vertices)

	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for i, v := range vs {
		if !finite(v.Longitude) || !finite(v.Latitude) {
			return Polygon{}, &GeometryError{Msg: fmt.Sprintf("vertex %d (%g, %g) is not finite", i+1, v.Longitude, v.Latitude)}
		}
		b.Min.X = math.Min(b.Min.X, v.Longitude)
		b.Min.Y = math.Min(b.Min.Y, v.Latitude)
		b.Max.X = math.Max(b.Max.X, v.Longitude)
		b.Max.Y = math.Max(b.Max.Y, v.Latitude)
	}

	return Polygon{vertices: vs, bounds: b}, nil
}

// Len returns the number of vertices.
func (p Polygon) Len() int { return len(p.vertices) }

// Vertices returns a copy of the vertices in file order.
func (p Polygon) Vertices() []Vertex {
	vs := make([]Vertex, len(p.vertices))
	copy(vs, p.vertices)
	return vs
}

// Centroid returns the mean of the vertices. It is a labelling aid, not the
// area centroid.
func (p Polygon) Centroid() Vertex {
	var c Vertex
	if len(p.vertices) == 0 {
		return c
	}
	for _, v := range p.vertices {
		c.Longitude += v.Longitude
		c.Latitude += v.Latitude
	}
	n := float64(len(p.vertices))
	return Vertex{Longitude: c.Longitude / n, Latitude: c.Latitude / n}
}

// Contains reports whether (lon, lat) lies inside the polygon. Points on an
// edge or vertex count as inside, including points a rounding error away
// from the edge (relative tolerance edgeTolerance).
func (p Polygon) Contains(lon, lat float64) bool {
	if len(p.vertices) < 3 {
		return false
	}
	if !p.bounds.Overlaps(geom.Point{X: lon, Y: lat}.Bounds()) {
		return false
	}

	inside := false
	n := len(p.vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := p.vertices[j], p.vertices[i]
		if onSegment(a, b, lon, lat) {
			return true
		}
		// Half-open on latitude: an edge spans [min, max) so a shared vertex
		// is counted by exactly one of its edges; horizontal edges never count.
		if (a.Latitude > lat) != (b.Latitude > lat) {
			x := a.Longitude + (lat-a.Latitude)*(b.Longitude-a.Longitude)/(b.Latitude-a.Latitude)
			if lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Clip returns the points that lie inside polygon, in input order, with their
// original values.
func Clip(polygon Polygon, points []GridPoint) ([]GridPoint, error) {
	if polygon.Len() < 3 {
		return nil, &GeometryError{Msg: fmt.Sprintf("polygon needs at least 3 vertices, got %d", polygon.Len())}
	}

	kept := make([]GridPoint, 0, len(points))
	for i, pt := range points {
		if !finite(pt.Longitude) || !finite(pt.Latitude) {
			return nil, &GeometryError{Msg: fmt.Sprintf("point %d (%g, %g) is not finite", i+1, pt.Longitude, pt.Latitude)}
		}
		if polygon.Contains(pt.Longitude, pt.Latitude) {
			kept = append(kept, pt)
		}
	}
	return kept, nil
}

// edgeTolerance is the relative slack allowed when deciding that a point lies
// on an edge, so points whose decimal coordinates round off the exact line
// still count as boundary points.
const edgeTolerance = 1e-12

// onSegment reports whether (lon, lat) lies on segment a-b, within
// edgeTolerance of the products that make up the cross product.
func onSegment(a, b Vertex, lon, lat float64) bool {
	dx, dy := b.Longitude-a.Longitude, b.Latitude-a.Latitude
	px, py := lon-a.Longitude, lat-a.Latitude
	cross := dx*py - dy*px
	if math.Abs(cross) > edgeTolerance*(math.Abs(dx*py)+math.Abs(dy*px)) {
		return false
	}
	slack := edgeTolerance * math.Max(math.Abs(dx), math.Abs(dy))
	return lon >= math.Min(a.Longitude, b.Longitude)-slack && lon <= math.Max(a.Longitude, b.Longitude)+slack &&
		lat >= math.Min(a.Latitude, b.Latitude)-slack && lat <= math.Max(a.Latitude, b.Latitude)+slack
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
