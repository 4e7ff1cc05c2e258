package domain

import "context"

// Origin records where a source value came from.
type Origin string

const (
	OriginLive        Origin = "live"
	OriginCache       Origin = "cache"
	OriginFixture     Origin = "fixture"
	OriginUnavailable Origin = "unavailable"
)

// Result is the outcome of one source lookup. A zero Value never stands in
// for a missing one: callers check Ok before reading Value.
type Result[T any] struct {
	Value    T
	Origin   Origin
	Provider string
	Err      error
}

// Live wraps a value fetched from the provider.
func Live[T any](provider string, v T) Result[T] {
	return Result[T]{Value: v, Origin: OriginLive, Provider: provider}
}

// Cached wraps a value read back from the cache.
func Cached[T any](provider string, v T) Result[T] {
	return Result[T]{Value: v, Origin: OriginCache, Provider: provider}
}

// Fixture wraps a bundled snapshot used after the live fetch failed with cause.
func Fixture[T any](provider string, v T, cause error) Result[T] {
	return Result[T]{Value: v, Origin: OriginFixture, Provider: provider, Err: cause}
}

// Unavailable reports that no usable value exists.
func Unavailable[T any](provider string, cause error) Result[T] {
	return Result[T]{Origin: OriginUnavailable, Provider: provider, Err: cause}
}

// Ok reports whether Value holds usable data.
func (r Result[T]) Ok() bool {
	return r.Origin == OriginLive || r.Origin == OriginCache || r.Origin == OriginFixture
}

// Status summarises the result for a source breakdown.
func (r Result[T]) Status() SourceStatus {
	s := SourceStatus{Provider: r.Provider, Available: r.Ok(), Origin: r.Origin}
	if r.Origin == "" {
		s.Origin = OriginUnavailable
	}
	if r.Err != nil {
		s.Note = r.Err.Error()
	}
	return s
}

// NDVIStats summarises the cloud-masked vegetation index over a window.
type NDVIStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Scenes int     `json:"scenes"`
	Pixels int     `json:"pixels"`
}

// RainfallClimatology is the long-term mean daily precipitation.
type RainfallClimatology struct {
	MeanMMPerDay float64 `json:"mean_mm_per_day"`
}

// TemperatureClimatology holds long-term air temperature at 2m in °C.
type TemperatureClimatology struct {
	MeanC *float64 `json:"mean_c,omitempty"`
	MinC  float64  `json:"min_c"`
	MaxC  float64  `json:"max_c"`
}

// SoilProperties are topsoil averages in normalised units: percent for
// sand, silt and clay, pH units for pH. SOC and bulk density keep the
// provider's units.
type SoilProperties struct {
	SOC         *float64 `json:"soc,omitempty"`
	Sand        *float64 `json:"sand,omitempty"`
	Clay        *float64 `json:"clay,omitempty"`
	Silt        *float64 `json:"silt,omitempty"`
	PH          *float64 `json:"ph,omitempty"`
	BulkDensity *float64 `json:"bulk_density,omitempty"`
}

// Missing lists the core soil properties with no value.
func (s SoilProperties) Missing() []string {
	var out []string
	for _, f := range []struct {
		name string
		v    *float64
	}{{"soc", s.SOC}, {"sand", s.Sand}, {"clay", s.Clay}, {"silt", s.Silt}, {"ph", s.PH}} {
		if f.v == nil {
			out = append(out, f.name)
		}
	}
	return out
}

// VegetationIndexSource computes NDVI statistics over a site boundary.
type VegetationIndexSource interface {
	NDVI(ctx context.Context, geom Geometry, window DateRange) Result[NDVIStats]
}

// RainfallSource returns rainfall climatology at a point.
type RainfallSource interface {
	Rainfall(ctx context.Context, lat, lon float64) Result[RainfallClimatology]
}

// TemperatureSource returns temperature climatology at a point.
type TemperatureSource interface {
	Temperature(ctx context.Context, lat, lon float64) Result[TemperatureClimatology]
}

// SoilSource returns topsoil properties at a point.
type SoilSource interface {
	Soil(ctx context.Context, lat, lon float64) Result[SoilProperties]
}
