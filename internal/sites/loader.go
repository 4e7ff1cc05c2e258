// Package sites reads site boundaries from a GeoJSON FeatureCollection.
//
// Each feature is a Polygon or MultiPolygon with properties:
//
//	id                optional; derived from tower and name when absent
//	name              display name
//	water_tower_id    required; the tower the site belongs to
//	water_tower_name  optional; defaults to the tower id
//	elevation_m       optional; feeds the elevation rule
//
// A feature that fails validation is reported and skipped. It never aborts
// the rest of the collection.
package sites

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/towerguard/site-health/internal/domain"
)

// siteNamespace seeds derived site ids so reseeding the same file is idempotent.
var siteNamespace = uuid.MustParse("5b0f4c1e-8a53-4f0e-9d2a-7c6f3b1e2d40")

// FeatureError describes one rejected feature.
type FeatureError struct {
	Index int
	ID    string
	Err   error
}

func (e FeatureError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("feature %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("feature %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e FeatureError) Unwrap() error { return e.Err }

// Catalog is the result of loading a collection: the distinct towers in
// first-seen order, the valid sites, and the rejected features.
type Catalog struct {
	Towers   []domain.WaterTower
	Sites    []domain.Site
	Rejected []FeatureError
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties properties      `json:"properties"`
}

type properties struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	WaterTowerID   string   `json:"water_tower_id"`
	WaterTowerName string   `json:"water_tower_name"`
	ElevationM     *float64 `json:"elevation_m"`
}

// LoadFile parses the collection at path.
func LoadFile(path string, bounds domain.Bounds) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open sites file: %w", err)
	}
	defer f.Close()
	return Parse(f, bounds)
}

// Parse reads a FeatureCollection from r. The returned error covers only a
// document that cannot be read as a collection at all.
func Parse(r io.Reader, bounds domain.Bounds) (Catalog, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return Catalog{}, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return Catalog{}, fmt.Errorf("decode feature collection: unexpected type %q", fc.Type)
	}

	var cat Catalog
	towers := make(map[string]bool)
	for i, f := range fc.Features {
		site, err := toSite(f, bounds)
		if err != nil {
			cat.Rejected = append(cat.Rejected, FeatureError{Index: i, ID: f.Properties.ID, Err: err})
			continue
		}
		if !towers[site.WaterTowerID] {
			towers[site.WaterTowerID] = true
			name := strings.TrimSpace(f.Properties.WaterTowerName)
			if name == "" {
				name = site.WaterTowerID
			}
			cat.Towers = append(cat.Towers, domain.WaterTower{ID: site.WaterTowerID, Name: name})
		}
		cat.Sites = append(cat.Sites, site)
	}
	return cat, nil
}

func toSite(f feature, bounds domain.Bounds) (domain.Site, error) {
	p := f.Properties
	towerID := strings.TrimSpace(p.WaterTowerID)
	if towerID == "" {
		return domain.Site{}, &domain.ValidationError{Field: "water_tower_id", Err: domain.ErrMissingField}
	}
	if len(f.Geometry) == 0 || string(f.Geometry) == "null" {
		return domain.Site{}, &domain.ValidationError{Field: "geometry", Err: domain.ErrMissingField}
	}
	var geom domain.Geometry
	if err := json.Unmarshal(f.Geometry, &geom); err != nil {
		return domain.Site{}, err
	}

	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = DeriveID(towerID, p.Name)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = id
	}
	return domain.NewSite(id, name, towerID, geom, p.ElevationM, bounds)
}

// DeriveID returns a stable site id for a feature that carries none.
func DeriveID(towerID, name string) string {
	return uuid.NewSHA1(siteNamespace, []byte(towerID+"/"+strings.TrimSpace(name))).String()
}
