package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/observability"
)

// MultiSink writes every record to each of its sinks in order. A failing
// sink does not stop the others; their errors are joined.
type MultiSink struct {
	sinks   []RecordSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMultiSink fans records out to sinks.
func NewMultiSink(logger *slog.Logger, metrics *observability.Metrics, sinks ...RecordSink) *MultiSink {
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &MultiSink{sinks: sinks, logger: logger, metrics: metrics}
}

// Name identifies the sink in logs.
func (m *MultiSink) Name() string { return "multi" }

// SaveFeatures writes rec to every sink.
func (m *MultiSink) SaveFeatures(ctx context.Context, rec domain.FeatureRecord) error {
	return m.each(func(s RecordSink) error { return s.SaveFeatures(ctx, rec) }, "features", rec.ID)
}

// SavePrediction writes p to every sink.
func (m *MultiSink) SavePrediction(ctx context.Context, p domain.Prediction) error {
	return m.each(func(s RecordSink) error { return s.SavePrediction(ctx, p) }, "prediction", p.ID)
}

func (m *MultiSink) each(write func(RecordSink) error, kind, id string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := write(s); err != nil {
			m.metrics.SinkWriteFailures.WithLabelValues(s.Name()).Inc()
			m.logger.Error("sink write failed", "sink", s.Name(), "record", kind, "id", id, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
