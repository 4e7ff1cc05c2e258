// Package nasapower reads rainfall and temperature climatology from the
// NASA POWER point API.
package nasapower

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/towerguard/site-health/internal/adapter/fetch"
	"github.com/towerguard/site-health/internal/adapter/fixtures"
	"github.com/towerguard/site-health/internal/cache"
	"github.com/towerguard/site-health/internal/domain"
)

// Provider is the name recorded in source breakdowns.
const Provider = "nasa-power"

// fillValue is the POWER sentinel for missing data.
const fillValue = -999.0

// Config selects the climatology profile.
type Config struct {
	BaseURL   string
	APIKey    string
	Community string
	StartYear int
	EndYear   int
}

// Client implements domain.RainfallSource and domain.TemperatureSource.
type Client struct {
	cfg         Config
	fetch       *fetch.Client
	rainfall    *cache.Cache
	temperature *cache.Cache
	fixtures    *fixtures.Set
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCaches sets the rainfall and temperature caches. Either may be nil.
func WithCaches(rainfall, temperature *cache.Cache) Option {
	return func(c *Client) {
		c.rainfall = rainfall
		c.temperature = temperature
	}
}

// WithFixtures sets the snapshots used after a failed fetch.
func WithFixtures(fx *fixtures.Set) Option { return func(c *Client) { c.fixtures = fx } }

// NewClient creates a NASA POWER client.
func NewClient(cfg Config, fc *fetch.Client, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{cfg: cfg, fetch: fc, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Rainfall returns mean daily precipitation (PRECTOTCORR, mm/day).
func (c *Client) Rainfall(ctx context.Context, lat, lon float64) domain.Result[domain.RainfallClimatology] {
	key := cache.Key("nasa_power_precip", lat, lon)
	var cached domain.RainfallClimatology
	if c.rainfall.Get(key, &cached) {
		return domain.Cached(Provider, cached)
	}

	values, err := c.climatology(ctx, lat, lon, "PRECTOTCORR")
	if err == nil {
		mm := values["PRECTOTCORR"]
		if mm < 0 {
			err = fmt.Errorf("%w: %w: negative PRECTOTCORR %.3f", fetch.ErrUnavailable, fetch.ErrMalformed, mm)
		} else {
			v := domain.RainfallClimatology{MeanMMPerDay: mm}
			if err := c.rainfall.Set(key, v); err != nil {
				c.logger.Warn("cache write failed", "source", "rainfall", "error", err)
			}
			return domain.Live(Provider, v)
		}
	}

	if fx, fxErr := c.fixtures.Rainfall(); fxErr == nil {
		c.logger.Warn("rainfall fetch failed, using fixture", "source", "rainfall", "lat", lat, "lon", lon, "error", err)
		return domain.Fixture(Provider, fx, err)
	}
	c.logger.Warn("rainfall unavailable", "source", "rainfall", "lat", lat, "lon", lon, "error", err)
	return domain.Unavailable[domain.RainfallClimatology](Provider, err)
}

// Temperature returns mean, minimum and maximum 2m air temperature in °C.
func (c *Client) Temperature(ctx context.Context, lat, lon float64) domain.Result[domain.TemperatureClimatology] {
	key := cache.Key("nasa_power_temp", lat, lon)
	var cached domain.TemperatureClimatology
	if c.temperature.Get(key, &cached) {
		return domain.Cached(Provider, cached)
	}

	values, err := c.climatology(ctx, lat, lon, "T2M", "T2M_MIN", "T2M_MAX")
	if err == nil {
		v := domain.TemperatureClimatology{MinC: values["T2M_MIN"], MaxC: values["T2M_MAX"]}
		if mean, ok := values["T2M"]; ok {
			v.MeanC = &mean
		}
		if err := c.temperature.Set(key, v); err != nil {
			c.logger.Warn("cache write failed", "source", "temperature", "error", err)
		}
		return domain.Live(Provider, v)
	}

	if fx, fxErr := c.fixtures.Temperature(); fxErr == nil {
		c.logger.Warn("temperature fetch failed, using fixture", "source", "temperature", "lat", lat, "lon", lon, "error", err)
		return domain.Fixture(Provider, fx, err)
	}
	c.logger.Warn("temperature unavailable", "source", "temperature", "lat", lat, "lon", lon, "error", err)
	return domain.Unavailable[domain.TemperatureClimatology](Provider, err)
}

// climatology fetches the annual value of each parameter. T2M is optional;
// every other requested parameter must be present.
func (c *Client) climatology(ctx context.Context, lat, lon float64, params ...string) (map[string]float64, error) {
	q := url.Values{
		"parameters": {strings.Join(params, ",")},
		"latitude":   {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(lon, 'f', 4, 64)},
		"community":  {c.cfg.Community},
		"format":     {"JSON"},
		"start":      {strconv.Itoa(c.cfg.StartYear)},
		"end":        {strconv.Itoa(c.cfg.EndYear)},
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}

	var resp response
	if err := c.fetch.GetJSON(ctx, c.cfg.BaseURL, q, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(params))
	for _, p := range params {
		v, ok := annual(resp.Properties.Parameter[p])
		if !ok {
			if p == "T2M" {
				continue
			}
			return nil, fmt.Errorf("%w: %w: %s missing from response", fetch.ErrUnavailable, fetch.ErrMalformed, p)
		}
		out[p] = v
	}
	return out, nil
}

// annual prefers the ANN entry and otherwise averages the monthly values
// in key order. Fill values are skipped.
func annual(series map[string]float64) (float64, bool) {
	if v, ok := series["ANN"]; ok && valid(v) {
		return v, true
	}
	var sum float64
	var n int
	for _, k := range slices.Sorted(maps.Keys(series)) {
		v := series[k]
		if k == "ANN" || !valid(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func valid(v float64) bool {
	return v != fillValue && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NASA POWER climatology response types.

type response struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}
