// Command genmock writes a sample site catalog for Kenya's water towers. Each
// tower gets a small grid of square restoration plots around its reference
// point. The output is parsed back through the site loader before it is
// written, so a generated catalog always seeds cleanly.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/sites/kenya_water_tower_sites.geojson \
//	  -per-tower 4
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/sites"
)

// tower is a reference point near the forest core of one water tower.
type tower struct {
	id         string
	name       string
	lat, lon   float64
	elevationM float64
}

var towers = []tower{
	{id: "mau_forest_complex", name: "Mau Forest Complex", lat: -0.55, lon: 35.75, elevationM: 2400},
	{id: "aberdare_range", name: "Aberdare Range", lat: -0.40, lon: 36.70, elevationM: 2600},
	{id: "mt_kenya", name: "Mount Kenya", lat: -0.15, lon: 37.30, elevationM: 2700},
	{id: "mt_elgon", name: "Mount Elgon", lat: 1.10, lon: 34.60, elevationM: 2500},
	{id: "cherangani_hills", name: "Cherangani Hills", lat: 1.20, lon: 35.45, elevationM: 2700},
	{id: "chyulu_hills", name: "Chyulu Hills", lat: -2.60, lon: 37.85, elevationM: 1800},
	{id: "matthews_range", name: "Matthews Range", lat: 1.20, lon: 37.30, elevationM: 1800},
	{id: "mt_kulal", name: "Mount Kulal", lat: 2.70, lon: 36.93, elevationM: 1900},
	{id: "mt_marsabit", name: "Mount Marsabit", lat: 2.32, lon: 37.98, elevationM: 1400},
	{id: "shimba_hills", name: "Shimba Hills", lat: -4.25, lon: 39.40, elevationM: 400},
}

const (
	plotSizeDeg = 0.02
	plotGapDeg  = 0.03
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   domain.Geometry `json:"geometry"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the site catalog GeoJSON")
	perTower := flag.Int("per-tower", 4, "plots generated per water tower")
	flag.Parse()

	if *out == "" || *perTower < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -per-tower >= 1")
	}

	data, err := buildCatalog(*perTower)
	if err != nil {
		return err
	}

	cat, err := sites.Parse(bytes.NewReader(data), domain.KenyaBounds)
	if err != nil {
		return fmt.Errorf("re-parse generated catalog: %w", err)
	}
	if len(cat.Rejected) > 0 {
		return fmt.Errorf("generated catalog has %d invalid features, first: %w", len(cat.Rejected), cat.Rejected[0])
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil { //nolint:gosec // fixture file, world-readable is fine
		return err
	}
	log.Printf("wrote %d towers, %d sites to %s", len(cat.Towers), len(cat.Sites), *out)
	return nil
}

// buildCatalog lays perTower plots out in rows of two, stepping south-east
// from each tower's reference point. Elevation drops 40 m per plot.
func buildCatalog(perTower int) ([]byte, error) {
	fc := featureCollection{Type: "FeatureCollection"}
	for _, t := range towers {
		for i := 0; i < perTower; i++ {
			row, col := i/2, i%2
			south := t.lat - float64(row)*plotGapDeg
			west := t.lon + float64(col)*plotGapDeg
			fc.Features = append(fc.Features, feature{
				Type: "Feature",
				Properties: map[string]any{
					"id":               fmt.Sprintf("%s-%02d", t.id, i+1),
					"name":             fmt.Sprintf("%s plot %d", t.name, i+1),
					"water_tower_id":   t.id,
					"water_tower_name": t.name,
					"elevation_m":      t.elevationM - float64(i)*40,
				},
				Geometry: square(south, west, plotSizeDeg),
			})
		}
	}
	return json.MarshalIndent(fc, "", "  ")
}

// square returns a closed counter-clockwise ring with its south-west corner
// at (south, west).
func square(south, west, size float64) domain.Geometry {
	north, east := south+size, west+size
	ring := domain.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}
	return domain.Geometry{Type: domain.GeometryPolygon, Polygons: []domain.Polygon{{ring}}}
}
