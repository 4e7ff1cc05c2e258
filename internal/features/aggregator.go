// Package features merges the per-pillar source lookups for a site into a
// single FeatureRecord.
package features

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/observability"
)

// Sources bundles the four pillar clients. Every field is required; use a
// disabled implementation rather than nil for a provider that is off.
type Sources struct {
	NDVI        domain.VegetationIndexSource
	Rainfall    domain.RainfallSource
	Temperature domain.TemperatureSource
	Soil        domain.SoilSource
}

// Aggregator runs one extraction per call. It holds no per-request state and
// is safe for concurrent use.
type Aggregator struct {
	sources Sources
	bounds  domain.Bounds
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator over the given sources. Site centroids
// outside bounds are rejected.
func NewAggregator(sources Sources, bounds domain.Bounds, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{sources: sources, bounds: bounds, logger: logger, metrics: metrics}
}

// Extract builds a FeatureRecord for site over window. Only validation
// failures are returned as errors: an empty window, an invalid geometry or
// a centroid outside the configured bounds. Source failures never abort the
// extraction; they leave their fields nil and mark the record partial.
func (a *Aggregator) Extract(ctx context.Context, site domain.Site, window domain.DateRange) (domain.FeatureRecord, error) {
	if err := window.Validate(); err != nil {
		return domain.FeatureRecord{}, err
	}
	if err := site.Geometry.Validate(); err != nil {
		return domain.FeatureRecord{}, err
	}
	lat, lon, err := site.Geometry.Centroid()
	if err != nil {
		return domain.FeatureRecord{}, err
	}
	if err := a.bounds.Check(lat, lon); err != nil {
		return domain.FeatureRecord{}, err
	}
	site.Lat, site.Lon = lat, lon

	var (
		ndvi domain.Result[domain.NDVIStats]
		rain domain.Result[domain.RainfallClimatology]
		temp domain.Result[domain.TemperatureClimatology]
		soil domain.Result[domain.SoilProperties]
	)

	// Each lookup writes only its own result and never returns an error, so
	// one slow or failing provider cannot cancel its siblings.
	var g errgroup.Group
	g.Go(func() error {
		ndvi = a.sources.NDVI.NDVI(ctx, site.Geometry, window)
		return nil
	})
	g.Go(func() error {
		rain = a.sources.Rainfall.Rainfall(ctx, lat, lon)
		return nil
	})
	g.Go(func() error {
		temp = a.sources.Temperature.Temperature(ctx, lat, lon)
		return nil
	})
	g.Go(func() error {
		soil = a.sources.Soil.Soil(ctx, lat, lon)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("extract site %s: %w", site.ID, err)
	}

	rec := domain.NewFeatureRecord(site, window)
	rec.Sources = domain.SourceBreakdown{
		NDVI:        ndvi.Status(),
		Rainfall:    rain.Status(),
		Temperature: temp.Status(),
		Soil:        soil.Status(),
	}

	if ndvi.Ok() {
		rec.NDVIMean = domain.Float(ndvi.Value.Mean)
		rec.NDVIStd = domain.Float(ndvi.Value.Std)
	}
	if rain.Ok() {
		rec.RainfallMeanMMPerDay = domain.Float(rain.Value.MeanMMPerDay)
		rec.RainfallTotalMM = domain.Float(rain.Value.MeanMMPerDay * float64(rec.Days))
	}
	if temp.Ok() {
		rec.TminC = domain.Float(temp.Value.MinC)
		rec.TmaxC = domain.Float(temp.Value.MaxC)
	}
	if soil.Ok() {
		rec.SOC = soil.Value.SOC
		rec.Sand = soil.Value.Sand
		rec.Clay = soil.Value.Clay
		rec.Silt = soil.Value.Silt
		rec.PH = soil.Value.PH
		rec.BulkDensity = soil.Value.BulkDensity
	}
	rec.Partial = rec.ComputePartial()

	a.record(rec)
	if rec.Partial {
		a.logger.Warn("partial feature record",
			"site_id", site.ID,
			"window", window.String(),
			"missing", rec.MissingFields(),
			"degraded", rec.Sources.Degraded(),
		)
	} else {
		a.logger.Info("feature record extracted", "site_id", site.ID, "window", window.String())
	}
	return rec, nil
}

func (a *Aggregator) record(rec domain.FeatureRecord) {
	if a.metrics == nil {
		return
	}
	for source, s := range rec.Sources.ToMap() {
		a.metrics.SourceResults.WithLabelValues(source, string(s.Origin)).Inc()
	}
	a.metrics.Extractions.Inc()
	if rec.Partial {
		a.metrics.PartialRecords.Inc()
	}
}
