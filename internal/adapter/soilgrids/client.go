// Package soilgrids reads topsoil properties from the ISRIC SoilGrids v2
// properties endpoint.
package soilgrids

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/towerguard/site-health/internal/adapter/fetch"
	"github.com/towerguard/site-health/internal/adapter/fixtures"
	"github.com/towerguard/site-health/internal/cache"
	"github.com/towerguard/site-health/internal/domain"
)

// Provider is the name recorded in source breakdowns.
const Provider = "soilgrids"

var (
	properties = []string{"phh2o", "soc", "sand", "silt", "clay", "bdod"}
	depths     = []string{"0-5cm", "5-15cm", "15-30cm"}
)

// Client implements domain.SoilSource.
type Client struct {
	baseURL  string
	fetch    *fetch.Client
	cache    *cache.Cache
	fixtures *fixtures.Set
	logger   *slog.Logger
}

// NewClient creates a SoilGrids client. The cache and fixtures may be nil.
func NewClient(baseURL string, fc *fetch.Client, c *cache.Cache, fx *fixtures.Set, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, fetch: fc, cache: c, fixtures: fx, logger: logger}
}

// Soil returns topsoil (0-30cm) properties averaged across depths, with
// sand, silt and clay converted to percent and pH to pH units.
func (c *Client) Soil(ctx context.Context, lat, lon float64) domain.Result[domain.SoilProperties] {
	key := cache.Key("soilgrids", lat, lon)
	var cached domain.SoilProperties
	if c.cache.Get(key, &cached) {
		return domain.Cached(Provider, cached)
	}

	soil, err := c.query(ctx, lat, lon)
	if err == nil {
		if missing := soil.Missing(); len(missing) > 0 {
			c.logger.Warn("soil properties incomplete", "source", "soil", "lat", lat, "lon", lon, "missing", missing)
		}
		if err := c.cache.Set(key, soil); err != nil {
			c.logger.Warn("cache write failed", "source", "soil", "error", err)
		}
		return domain.Live(Provider, soil)
	}

	if fx, fxErr := c.fixtures.Soil(); fxErr == nil {
		c.logger.Warn("soil fetch failed, using fixture", "source", "soil", "lat", lat, "lon", lon, "error", err)
		return domain.Fixture(Provider, fx, err)
	}
	c.logger.Warn("soil unavailable", "source", "soil", "lat", lat, "lon", lon, "error", err)
	return domain.Unavailable[domain.SoilProperties](Provider, err)
}

func (c *Client) query(ctx context.Context, lat, lon float64) (domain.SoilProperties, error) {
	q := url.Values{
		"lat":      {strconv.FormatFloat(lat, 'f', 4, 64)},
		"lon":      {strconv.FormatFloat(lon, 'f', 4, 64)},
		"property": properties,
		"depth":    depths,
		"value":    {"mean"},
	}

	var resp response
	if err := c.fetch.GetJSON(ctx, c.baseURL, q, &resp); err != nil {
		return domain.SoilProperties{}, err
	}
	if len(resp.Properties.Layers) == 0 {
		return domain.SoilProperties{}, fmt.Errorf("%w: %w: response has no layers", fetch.ErrUnavailable, fetch.ErrMalformed)
	}

	byName := make(map[string]*float64, len(resp.Properties.Layers))
	for _, l := range resp.Properties.Layers {
		byName[l.Name] = l.mean()
	}

	soil := domain.SoilProperties{
		SOC:         byName["soc"],
		Sand:        scale(byName["sand"], 10),
		Silt:        scale(byName["silt"], 10),
		Clay:        scale(byName["clay"], 10),
		PH:          scale(byName["phh2o"], 10),
		BulkDensity: byName["bdod"],
	}
	if len(soil.Missing()) == 5 {
		return domain.SoilProperties{}, fmt.Errorf("%w: %w: every layer is empty", fetch.ErrUnavailable, fetch.ErrMalformed)
	}
	return soil, nil
}

// scale converts provider integer units: tenths of percent to percent and
// pH×10 to pH.
func scale(v *float64, divisor float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v / divisor
	return &out
}

// SoilGrids API response types.

type response struct {
	Properties struct {
		Layers []layer `json:"layers"`
	} `json:"properties"`
}

type layer struct {
	Name   string  `json:"name"`
	Depths []depth `json:"depths"`
}

type depth struct {
	Label  string `json:"label"`
	Values struct {
		Mean *float64 `json:"mean"`
	} `json:"values"`
}

// mean averages the non-null depth means.
func (l layer) mean() *float64 {
	var sum float64
	var n int
	for _, d := range l.Depths {
		if d.Values.Mean != nil {
			sum += *d.Values.Mean
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := sum / float64(n)
	return &v
}
