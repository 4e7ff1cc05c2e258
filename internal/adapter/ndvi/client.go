// Package ndvi computes vegetation-index statistics over a site boundary
// from a scene provider that returns red, near-infrared and QA60 pixel
// bands for a geometry and date window.
package ndvi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/towerguard/site-health/internal/adapter/fetch"
	"github.com/towerguard/site-health/internal/cache"
	"github.com/towerguard/site-health/internal/domain"
)

// Provider is the name recorded in source breakdowns.
const Provider = "sentinel2-ndvi"

var (
	// ErrNoImagery means no unmasked scene covered the window. It is
	// reported as unavailable, never as an NDVI of zero.
	ErrNoImagery = errors.New("no unmasked imagery for window")
	// ErrDisabled is returned by the Disabled source.
	ErrDisabled = errors.New("vegetation index provider disabled")
)

// Client implements domain.VegetationIndexSource against the scene provider.
// Imagery is never substituted with a fixture.
type Client struct {
	url    string
	token  string
	fetch  *fetch.Client
	cache  *cache.Cache
	logger *slog.Logger
}

// NewClient creates a scene-provider client authenticated with a long-lived
// service token. The cache may be nil.
func NewClient(url, token string, fc *fetch.Client, c *cache.Cache, logger *slog.Logger) *Client {
	return &Client{url: url, token: token, fetch: fc, cache: c, logger: logger}
}

// NDVI returns the cloud-masked NDVI mean and standard deviation over geom.
func (c *Client) NDVI(ctx context.Context, geom domain.Geometry, window domain.DateRange) domain.Result[domain.NDVIStats] {
	lat, lon, err := geom.Centroid()
	if err != nil {
		return domain.Unavailable[domain.NDVIStats](Provider, err)
	}
	key := cache.Key("ndvi", lat, lon, window.Start.Format("20060102"), window.End.Format("20060102"))
	var cached domain.NDVIStats
	if c.cache.Get(key, &cached) {
		return domain.Cached(Provider, cached)
	}

	body, err := json.Marshal(sceneRequest{
		Geometry: geom,
		Start:    window.Start.Format("2006-01-02"),
		End:      window.End.Format("2006-01-02"),
		Bands:    []string{"B4", "B8", "QA60"},
	})
	if err != nil {
		return domain.Unavailable[domain.NDVIStats](Provider, fmt.Errorf("encode scene request: %w", err))
	}

	var resp sceneResponse
	err = c.fetch.DoJSON(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    c.url,
		Header: http.Header{
			"Authorization": {"Bearer " + c.token},
			"Content-Type":  {"application/json"},
		},
		Body: body,
	}, &resp)
	if err != nil {
		c.logger.Warn("ndvi unavailable", "source", "ndvi", "lat", lat, "lon", lon, "window", window.String(), "error", err)
		return domain.Unavailable[domain.NDVIStats](Provider, err)
	}

	stats, err := Composite(resp.Scenes)
	if err != nil {
		c.logger.Warn("ndvi unavailable", "source", "ndvi", "lat", lat, "lon", lon, "window", window.String(), "error", err)
		return domain.Unavailable[domain.NDVIStats](Provider, err)
	}
	if err := c.cache.Set(key, stats); err != nil {
		c.logger.Warn("cache write failed", "source", "ndvi", "error", err)
	}
	return domain.Live(Provider, stats)
}

// Disabled is the vegetation-index source used when no provider is
// configured. Every lookup is unavailable.
type Disabled struct{}

func (Disabled) NDVI(context.Context, domain.Geometry, domain.DateRange) domain.Result[domain.NDVIStats] {
	return domain.Unavailable[domain.NDVIStats](Provider, ErrDisabled)
}

// Scene provider request and response types.

type sceneRequest struct {
	Geometry domain.Geometry `json:"geometry"`
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Bands    []string        `json:"bands"`
}

type sceneResponse struct {
	Scenes []Scene `json:"scenes"`
}

// Scene is one acquisition clipped to the requested geometry. Band slices
// are aligned per pixel; a nil reflectance is a no-data pixel.
type Scene struct {
	ID   string     `json:"id"`
	Date string     `json:"date"`
	Red  []*float64 `json:"red"`
	NIR  []*float64 `json:"nir"`
	QA   []int      `json:"qa"`
}
