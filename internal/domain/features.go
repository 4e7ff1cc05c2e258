package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pillar names used in source breakdowns and missing-field lists.
const (
	PillarNDVI        = "ndvi"
	PillarRainfall    = "rainfall"
	PillarTemperature = "temperature"
	PillarSoil        = "soil"
)

// SourceStatus records which provider supplied a pillar and whether it
// produced a usable value.
type SourceStatus struct {
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
	Origin    Origin `json:"origin"`
	Note      string `json:"note,omitempty"`
}

// SourceBreakdown has one entry per pillar.
type SourceBreakdown struct {
	NDVI        SourceStatus `json:"ndvi"`
	Rainfall    SourceStatus `json:"rainfall"`
	Temperature SourceStatus `json:"temperature"`
	Soil        SourceStatus `json:"soil"`
}

// ToMap keys each status by pillar name.
func (b SourceBreakdown) ToMap() map[string]SourceStatus {
	return map[string]SourceStatus{
		PillarNDVI:        b.NDVI,
		PillarRainfall:    b.Rainfall,
		PillarTemperature: b.Temperature,
		PillarSoil:        b.Soil,
	}
}

// Degraded lists, in pillar order, the pillars whose value is missing or
// came from a fixture.
func (b SourceBreakdown) Degraded() []string {
	var out []string
	for _, p := range []struct {
		name string
		s    SourceStatus
	}{
		{PillarNDVI, b.NDVI},
		{PillarRainfall, b.Rainfall},
		{PillarTemperature, b.Temperature},
		{PillarSoil, b.Soil},
	} {
		if !p.s.Available || p.s.Origin == OriginFixture {
			out = append(out, p.name)
		}
	}
	return out
}

// FeatureRecord is one extraction for a site over a window. It is never
// mutated after the aggregator returns it; a new extraction creates a new
// record.
type FeatureRecord struct {
	ID          string    `json:"id" db:"id"`
	SiteID      string    `json:"site_id" db:"site_id"`
	WindowStart time.Time `json:"window_start" db:"window_start"`
	WindowEnd   time.Time `json:"window_end" db:"window_end"`
	Days        int       `json:"days" db:"days"`
	Lat         float64   `json:"lat" db:"lat"`
	Lon         float64   `json:"lon" db:"lon"`

	NDVIMean             *float64 `json:"ndvi_mean" db:"ndvi_mean"`
	NDVIStd              *float64 `json:"ndvi_std" db:"ndvi_std"`
	RainfallTotalMM      *float64 `json:"rainfall_total_mm" db:"rainfall_total_mm"`
	RainfallMeanMMPerDay *float64 `json:"rainfall_mean_mm_per_day" db:"rainfall_mean_mm_per_day"`
	TminC                *float64 `json:"tmin_c" db:"tmin_c"`
	TmaxC                *float64 `json:"tmax_c" db:"tmax_c"`
	SOC                  *float64 `json:"soc" db:"soc"`
	Sand                 *float64 `json:"sand" db:"sand"`
	Clay                 *float64 `json:"clay" db:"clay"`
	Silt                 *float64 `json:"silt" db:"silt"`
	PH                   *float64 `json:"ph" db:"ph"`
	BulkDensity          *float64 `json:"bulk_density,omitempty" db:"bulk_density"`
	ElevationM           *float64 `json:"elevation_m,omitempty" db:"elevation_m"`

	Sources   SourceBreakdown `json:"source_breakdown" db:"-"`
	Partial   bool            `json:"partial" db:"partial"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// NewFeatureRecord starts an empty record for site over window.
func NewFeatureRecord(site Site, window DateRange) FeatureRecord {
	return FeatureRecord{
		ID:          uuid.NewString(),
		SiteID:      site.ID,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Days:        window.Days(),
		Lat:         site.Lat,
		Lon:         site.Lon,
		ElevationM:  site.ElevationM,
		CreatedAt:   clock.Now().UTC(),
	}
}

// MissingFields lists every pillar field that has no value. Elevation is
// optional site metadata and is not listed.
func (f FeatureRecord) MissingFields() []string {
	var out []string
	for _, v := range []struct {
		name string
		v    *float64
	}{
		{"ndvi_mean", f.NDVIMean},
		{"ndvi_std", f.NDVIStd},
		{"rainfall_mean_mm_per_day", f.RainfallMeanMMPerDay},
		{"rainfall_total_mm", f.RainfallTotalMM},
		{"tmin_c", f.TminC},
		{"tmax_c", f.TmaxC},
		{"soc", f.SOC},
		{"sand", f.Sand},
		{"clay", f.Clay},
		{"silt", f.Silt},
		{"ph", f.PH},
	} {
		if v.v == nil {
			out = append(out, v.name)
		}
	}
	return out
}

// ComputePartial reports whether any pillar is missing a value or was
// served from a fixture after its live source failed.
func (f FeatureRecord) ComputePartial() bool {
	return len(f.MissingFields()) > 0 || len(f.Sources.Degraded()) > 0
}

// TempMeanC averages the minimum and maximum climatology when both exist.
func (f FeatureRecord) TempMeanC() *float64 {
	if f.TminC == nil || f.TmaxC == nil {
		return nil
	}
	v := (*f.TminC + *f.TmaxC) / 2
	return &v
}

// RainfallAnnualMM scales the daily climatological mean to a year.
func (f FeatureRecord) RainfallAnnualMM() *float64 {
	if f.RainfallMeanMMPerDay == nil {
		return nil
	}
	v := *f.RainfallMeanMMPerDay * 365
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
