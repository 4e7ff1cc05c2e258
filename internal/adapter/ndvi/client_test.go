package ndvi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towerguard/site-health/internal/adapter/fetch"
	"github.com/towerguard/site-health/internal/cache"
	"github.com/towerguard/site-health/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSite() (domain.Geometry, domain.DateRange) {
	geom := domain.Geometry{Type: domain.GeometryPolygon, Polygons: []domain.Polygon{{
		{{36.5, -0.5}, {36.7, -0.5}, {36.7, -0.3}, {36.5, -0.3}, {36.5, -0.5}},
	}}}
	window, _ := domain.ParseDateRange("2024-01-01", "2024-01-31")
	return geom, window
}

func newTestClient(url string, c *cache.Cache) *Client {
	fc := fetch.New(Provider, fetch.Policy{MaxAttempts: 1, Multiplier: 2, Timeout: 5 * time.Second})
	return NewClient(url, "svc-token", fc, c, discardLogger())
}

func TestNDVI_Live(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

		var req sceneRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2024-01-01", req.Start)
		assert.Equal(t, "2024-01-31", req.End)
		assert.Equal(t, domain.GeometryPolygon, req.Geometry.Type)

		w.Write([]byte(`{"scenes":[{"id":"S2A_1","date":"2024-01-05","red":[0.1,0.1],"nir":[0.4,0.4],"qa":[0,0]}]}`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	geom, window := testSite()
	res := newTestClient(srv.URL, nil).NDVI(context.Background(), geom, window)

	require.True(t, res.Ok())
	assert.Equal(t, domain.OriginLive, res.Origin)
	assert.InDelta(t, 0.6, res.Value.Mean, 1e-9)
}

func TestNDVI_NoScenesIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"scenes":[]}`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	geom, window := testSite()
	res := newTestClient(srv.URL, nil).NDVI(context.Background(), geom, window)

	assert.False(t, res.Ok())
	assert.ErrorIs(t, res.Err, ErrNoImagery)
}

func TestNDVI_CachedPerWindow(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{"scenes":[{"id":"a","red":[0.1],"nir":[0.4],"qa":[0]}]}`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, cache.New("ndvi", cache.NewMemoryStore(), 24*time.Hour))
	geom, window := testSite()

	c.NDVI(context.Background(), geom, window)
	res := c.NDVI(context.Background(), geom, window)
	assert.Equal(t, domain.OriginCache, res.Origin)
	assert.Equal(t, 1, calls)

	other, _ := domain.ParseDateRange("2024-02-01", "2024-02-29")
	c.NDVI(context.Background(), geom, other)
	assert.Equal(t, 2, calls)
}

func TestNDVI_ProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	geom, window := testSite()
	res := newTestClient(srv.URL, nil).NDVI(context.Background(), geom, window)

	assert.False(t, res.Ok())
	assert.ErrorIs(t, res.Err, fetch.ErrUnavailable)
}

func TestDisabled(t *testing.T) {
	geom, window := testSite()
	res := Disabled{}.NDVI(context.Background(), geom, window)
	assert.False(t, res.Ok())
	assert.ErrorIs(t, res.Err, ErrDisabled)
}
