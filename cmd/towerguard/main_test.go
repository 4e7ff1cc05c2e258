package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towerguard/site-health/internal/adapter/sqlite"
	"github.com/towerguard/site-health/internal/config"
	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/observability"
	"github.com/towerguard/site-health/internal/scoring"
)

const sitesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"id": "mau-01", "name": "Mau East", "water_tower_id": "mau", "water_tower_name": "Mau Forest Complex", "elevation_m": 2450},
      "geometry": {"type": "Polygon", "coordinates": [[[36.5,-0.5],[36.7,-0.5],[36.7,-0.3],[36.5,-0.3],[36.5,-0.5]]]}
    },
    {
      "type": "Feature",
      "properties": {"id": "lisbon", "name": "Out of range", "water_tower_id": "mau"},
      "geometry": {"type": "Polygon", "coordinates": [[[-9.2,38.7],[-9.1,38.7],[-9.1,38.8],[-9.2,38.8],[-9.2,38.7]]]}
    }
  ]
}`

func testApp(t *testing.T) *app {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "towerguard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &app{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: observability.NewMetricsForTesting(),
		bounds:  domain.KenyaBounds,
		store:   store,
	}
}

func writeSites(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.geojson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSeedThenShow(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)

	report, err := seed(ctx, a, writeSites(t, sitesGeoJSON))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Towers)
	assert.Equal(t, 1, report.Sites)
	require.Len(t, report.Rejected, 1)
	assert.Contains(t, report.Rejected[0], "lisbon")

	view, err := show(ctx, a.store, "mau-01")
	require.NoError(t, err)
	assert.Equal(t, "Mau East", view.Site.Name)
	assert.Nil(t, view.Prediction, "nothing scored yet")
	assert.Nil(t, view.Features)

	window, err := domain.ParseDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	rec := domain.NewFeatureRecord(view.Site, window)
	rec.RainfallMeanMMPerDay = domain.Float(4.0)
	rec.Partial = rec.ComputePartial()
	pred := scoring.NewRuleBased().Score(rec)
	require.NoError(t, a.store.SaveFeatures(ctx, rec))
	require.NoError(t, a.store.SavePrediction(ctx, pred))

	view, err = show(ctx, a.store, "mau-01")
	require.NoError(t, err)
	require.NotNil(t, view.Prediction)
	require.NotNil(t, view.Features)
	assert.Equal(t, pred.ID, view.Prediction.ID)
	assert.Equal(t, rec.ID, view.Features.ID)
}

func TestSeed_AllRejected(t *testing.T) {
	a := testApp(t)
	_, err := seed(context.Background(), a, writeSites(t, `{"type":"FeatureCollection","features":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid sites")
}

func TestShow_UnknownSite(t *testing.T) {
	a := testApp(t)
	_, err := show(context.Background(), a.store, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
}

func TestWindowFlags_Resolve(t *testing.T) {
	now := time.Date(2024, time.March, 10, 15, 0, 0, 0, time.UTC)

	var trailing windowFlags
	w, err := trailing.resolve(now, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, w.Days())
	assert.Equal(t, "2024-02-10..2024-03-10", w.String())

	explicit := windowFlags{start: "2024-01-01", end: "2024-01-31"}
	w, err = explicit.resolve(now, 30)
	require.NoError(t, err)
	assert.Equal(t, 31, w.Days())

	inverted := windowFlags{start: "2024-02-01", end: "2024-01-01"}
	_, err = inverted.resolve(now, 30)
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestCommands_RequireWindowFlags(t *testing.T) {
	for _, args := range [][]string{
		{"extract", "mau-01"},
		{"score", "mau-01"},
		{"backfill", "--start", "2024-01-01"},
	} {
		t.Run(args[0], func(t *testing.T) {
			root := newRootCmd()
			root.SetArgs(args)
			root.SetOut(io.Discard)
			root.SetErr(io.Discard)
			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "end")
		})
	}
}

func TestCommands_ArgCount(t *testing.T) {
	root := newRootCmd()
	var stderr bytes.Buffer
	root.SetArgs([]string{"show"})
	root.SetOut(io.Discard)
	root.SetErr(&stderr)
	require.Error(t, root.Execute())
	assert.Contains(t, stderr.String(), "accepts 1 arg(s), received 0")
}

func TestNewApp_Wiring(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "towerguard.db"))
	t.Setenv("CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("SCORING_STRATEGY", "model")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.close()

	require.NotNil(t, a.pipeline)
	require.NoError(t, a.store.Ping(context.Background()))
	assert.Error(t, a.pipeline.CheckReadiness(context.Background()), "not ready before the first backfill")
	assert.DirExists(t, filepath.Join(dir, "cache"))
}
