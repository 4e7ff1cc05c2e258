package domain

import (
	"strings"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Bounds is the geographic box every site centroid must fall inside.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// KenyaBounds is the default operating region.
var KenyaBounds = Bounds{MinLat: -5, MaxLat: 5, MinLon: 33, MaxLon: 42}

// rect spans MinLon eastward to MaxLon, so a box never wraps the
// antimeridian unless MinLon > MaxLon.
func (b Bounds) rect() s2.Rect {
	deg := func(v float64) float64 { return (s1.Angle(v) * s1.Degree).Radians() }
	return s2.Rect{
		Lat: r1.Interval{Lo: deg(b.MinLat), Hi: deg(b.MaxLat)},
		Lng: s1.IntervalFromEndpoints(deg(b.MinLon), deg(b.MaxLon)),
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return b.rect().ContainsLatLng(s2.LatLngFromDegrees(lat, lon))
}

// Check rejects a point outside the box. Points are never clamped.
func (b Bounds) Check(lat, lon float64) error {
	if !b.Contains(lat, lon) {
		return invalid("centroid", ErrOutOfBounds,
			"(%.4f, %.4f) outside lat [%g, %g] lon [%g, %g]",
			lat, lon, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	}
	return nil
}

// WaterTower is a named upland catchment that groups sites.
type WaterTower struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Site is a bounded polygon scored as one unit. Lat and Lon hold the
// centroid used as the point-sample location for climate and soil sources.
type Site struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	WaterTowerID string   `json:"water_tower_id,omitempty"`
	Geometry     Geometry `json:"geometry"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	AreaHa       float64  `json:"area_ha"`
	ElevationM   *float64 `json:"elevation_m,omitempty"`
}

// NewSite validates the boundary, derives its centroid and area, and checks
// the centroid against bounds.
func NewSite(id, name, towerID string, geom Geometry, elevation *float64, bounds Bounds) (Site, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Site{}, invalid("id", ErrMissingField, "site id is required")
	}
	if err := geom.Validate(); err != nil {
		return Site{}, err
	}
	lat, lon, err := geom.Centroid()
	if err != nil {
		return Site{}, err
	}
	if err := bounds.Check(lat, lon); err != nil {
		return Site{}, err
	}
	return Site{
		ID:           id,
		Name:         name,
		WaterTowerID: towerID,
		Geometry:     geom,
		Lat:          lat,
		Lon:          lon,
		AreaHa:       geom.AreaHectares(),
		ElevationM:   elevation,
	}, nil
}
