package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used to scale spherical areas.
const EarthRadiusMeters = 6371000.0

// Position is a GeoJSON coordinate pair in [lon, lat] order.
type Position [2]float64

func (p Position) Lon() float64 { return p[0] }
func (p Position) Lat() float64 { return p[1] }

// Ring is a closed linear ring. The first ring of a polygon is its
// exterior, the remaining rings are holes.
type Ring []Position

// Polygon is an exterior ring followed by zero or more holes.
type Polygon []Ring

// Geometry is a GeoJSON Polygon or MultiPolygon, normalised to a list of
// polygons.
type Geometry struct {
	Type     string
	Polygons []Polygon
}

const (
	GeometryPolygon      = "Polygon"
	GeometryMultiPolygon = "MultiPolygon"
)

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}
	switch raw.Type {
	case GeometryPolygon:
		var p Polygon
		if err := json.Unmarshal(raw.Coordinates, &p); err != nil {
			return fmt.Errorf("decode polygon coordinates: %w", err)
		}
		*g = Geometry{Type: raw.Type, Polygons: []Polygon{p}}
	case GeometryMultiPolygon:
		var mp []Polygon
		if err := json.Unmarshal(raw.Coordinates, &mp); err != nil {
			return fmt.Errorf("decode multipolygon coordinates: %w", err)
		}
		*g = Geometry{Type: raw.Type, Polygons: mp}
	default:
		return invalid("geometry.type", ErrInvalidGeometry, "unsupported type %q", raw.Type)
	}
	return nil
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	out := struct {
		Type        string `json:"type"`
		Coordinates any    `json:"coordinates"`
	}{Type: g.Type}
	if g.Type == GeometryPolygon && len(g.Polygons) == 1 {
		out.Coordinates = g.Polygons[0]
	} else {
		out.Type = GeometryMultiPolygon
		out.Coordinates = g.Polygons
	}
	return json.Marshal(out)
}

// Validate checks ring shape: every ring has at least four positions, is
// closed, and holds finite coordinates.
func (g Geometry) Validate() error {
	if len(g.Polygons) == 0 {
		return invalid("geometry", ErrInvalidGeometry, "no polygons")
	}
	for pi, poly := range g.Polygons {
		if len(poly) == 0 {
			return invalid("geometry", ErrInvalidGeometry, "polygon %d has no rings", pi)
		}
		for ri, ring := range poly {
			if len(ring) < 4 {
				return invalid("geometry", ErrInvalidGeometry,
					"polygon %d ring %d has %d positions, need at least 4", pi, ri, len(ring))
			}
			if ring[0] != ring[len(ring)-1] {
				return invalid("geometry", ErrInvalidGeometry, "polygon %d ring %d is not closed", pi, ri)
			}
			for _, p := range ring {
				if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
					return invalid("geometry", ErrInvalidGeometry, "polygon %d ring %d has a non-finite coordinate", pi, ri)
				}
			}
		}
	}
	return nil
}

// Centroid returns the area-weighted planar centroid of the geometry in
// degrees. Holes subtract from their polygon. A geometry with no area is
// rejected.
func (g Geometry) Centroid() (lat, lon float64, err error) {
	var area, mx, my float64
	for _, poly := range g.Polygons {
		for ri, ring := range poly {
			a, cx, cy := ringMoments(ring)
			// Exterior rings count positive and holes negative,
			// whatever their winding.
			if (ri == 0) != (a > 0) {
				a, cx, cy = -a, -cx, -cy
			}
			area += a
			mx += cx
			my += cy
		}
	}
	if math.Abs(area) < 1e-12 {
		return 0, 0, invalid("geometry", ErrInvalidGeometry, "polygon has zero area")
	}
	return my / area, mx / area, nil
}

// ringMoments returns the signed shoelace area and first moments of a ring.
func ringMoments(ring Ring) (area, mx, my float64) {
	for i := 0; i+1 < len(ring); i++ {
		x0, y0 := ring[i][0], ring[i][1]
		x1, y1 := ring[i+1][0], ring[i+1][1]
		cross := x0*y1 - x1*y0
		area += cross
		mx += (x0 + x1) * cross
		my += (y0 + y1) * cross
	}
	return area / 2, mx / 6, my / 6
}

// AreaHectares approximates the spherical area of the geometry.
func (g Geometry) AreaHectares() float64 {
	var sr float64
	for _, poly := range g.Polygons {
		for ri, ring := range poly {
			loop := ringLoop(ring)
			if loop == nil {
				continue
			}
			if ri == 0 {
				sr += loop.Area()
			} else {
				sr -= loop.Area()
			}
		}
	}
	if sr < 0 {
		sr = 0
	}
	return sr * EarthRadiusMeters * EarthRadiusMeters / 10000
}

func ringLoop(ring Ring) *s2.Loop {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	if n < 3 {
		return nil
	}
	points := make([]s2.Point, n)
	for i := 0; i < n; i++ {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(ring[i].Lat(), ring[i].Lon()))
	}
	loop := s2.LoopFromPoints(points)
	// Normalize so the loop encloses the smaller region regardless of winding.
	loop.Normalize()
	return loop
}
