package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towerguard/site-health/internal/adapter/fixtures"
	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/sites"
)

const validSites = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"id": "mau-01", "name": "Mau East", "water_tower_id": "mau", "elevation_m": 2450},
      "geometry": {"type": "Polygon", "coordinates": [[[36.5,-0.5],[36.7,-0.5],[36.7,-0.3],[36.5,-0.3],[36.5,-0.5]]]}
    },
    {
      "type": "Feature",
      "properties": {"id": "abd-01", "name": "Aberdare North", "water_tower_id": "aberdare"},
      "geometry": {"type": "Polygon", "coordinates": [[[36.6,-0.3],[36.8,-0.3],[36.8,-0.1],[36.6,-0.1],[36.6,-0.3]]]}
    }
  ]
}`

func loadCatalog(t *testing.T, body string) sites.Catalog {
	t.Helper()
	cat, err := sites.Parse(strings.NewReader(body), domain.KenyaBounds)
	require.NoError(t, err)
	return cat
}

func TestRun_Passes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.geojson")
	require.NoError(t, os.WriteFile(path, []byte(validSites), 0o600))

	assert.Equal(t, 0, run(path, ""))
}

func TestRun_MissingCatalog(t *testing.T) {
	assert.Equal(t, 1, run(filepath.Join(t.TempDir(), "missing.geojson"), ""))
}

func TestValidateCatalog(t *testing.T) {
	assert.True(t, validateCatalog(loadCatalog(t, validSites)).passed())

	dup := strings.Replace(validSites, `"id": "abd-01"`, `"id": "mau-01"`, 1)
	p := validateCatalog(loadCatalog(t, dup))
	require.False(t, p.passed())
	assert.Contains(t, p.errors[0], "duplicate id")

	tooHigh := strings.Replace(validSites, `"elevation_m": 2450`, `"elevation_m": 9000`, 1)
	p = validateCatalog(loadCatalog(t, tooHigh))
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "implausible")

	p = validateCatalog(loadCatalog(t, `{"type":"FeatureCollection","features":[]}`))
	assert.Equal(t, []string{"catalog has no valid sites"}, p.errors)
}

func TestValidateFixtures_Bundled(t *testing.T) {
	p := validateFixtures(fixtures.Bundled())
	assert.True(t, p.passed(), "%v", p.errors)
}

func TestValidateFixtures_BadValues(t *testing.T) {
	fx := fixtures.FromFS(fstest.MapFS{
		fixtures.NASAPowerFile: {Data: []byte(`{"properties":{"T2M_MIN":30,"T2M_MAX":20,"PRECTOTCORR":-1}}`)},
		fixtures.SoilGridsFile: {Data: []byte(`{"sand":80,"silt":40,"clay":10,"ph":15}`)},
	})

	p := validateFixtures(fx)
	joined := strings.Join(p.errors, "\n")
	assert.Contains(t, joined, "rainfall: mean -1.000 mm/day")
	assert.Contains(t, joined, "min 30.0 C above max 20.0 C")
	assert.Contains(t, joined, "soc missing")
	assert.Contains(t, joined, "pH 15.00")
	assert.Contains(t, joined, "sum to 130.0%")
}

func TestValidateFixtures_Empty(t *testing.T) {
	p := validateFixtures(fixtures.FromFS(fstest.MapFS{}))
	assert.Len(t, p.errors, 3)
}

func TestValidateScoring(t *testing.T) {
	cat := loadCatalog(t, validSites)
	p := validateScoring(cat.Sites, fixtures.Bundled())
	assert.True(t, p.passed(), "%v", p.errors)
}
