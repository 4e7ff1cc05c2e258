package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/observability"
)

// SiteStore resolves sites and the water towers that group them.
type SiteStore interface {
	GetSite(ctx context.Context, id string) (domain.Site, error)
	ListTowers(ctx context.Context) ([]domain.WaterTower, error)
	ListSitesByTower(ctx context.Context, towerID string) ([]domain.Site, error)
}

// Extractor builds a feature record for a site over a window.
type Extractor interface {
	Extract(ctx context.Context, site domain.Site, window domain.DateRange) (domain.FeatureRecord, error)
}

// Scorer turns a feature record into a prediction. Scoring never fails.
type Scorer interface {
	Score(rec domain.FeatureRecord) domain.Prediction
	Version() string
}

// RecordSink persists or publishes records. It holds no business logic.
type RecordSink interface {
	Name() string
	SaveFeatures(ctx context.Context, rec domain.FeatureRecord) error
	SavePrediction(ctx context.Context, p domain.Prediction) error
}

// Enrichment is the output of one site: its feature record and the
// prediction scored from it.
type Enrichment struct {
	Features   domain.FeatureRecord `json:"features"`
	Prediction domain.Prediction    `json:"prediction"`
}

// TowerSummary aggregates one water tower's enrichment run.
type TowerSummary struct {
	TowerID   string  `json:"tower_id"`
	TowerName string  `json:"tower_name"`
	Sites     int     `json:"sites"`
	Scored    int     `json:"scored"`
	Partial   int     `json:"partial"`
	Rejected  int     `json:"rejected"`
	Failed    int     `json:"failed"`
	MeanScore float64 `json:"mean_score"`
}

// Pipeline orchestrates extraction, scoring and persistence.
type Pipeline struct {
	store      SiteStore
	extractor  Extractor
	scorer     Scorer
	sink       RecordSink
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	interval   time.Duration
	windowDays int
	ready      atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the time source for scheduling and backoff.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithSchedule sets how often Run backfills and the length of the trailing
// window it extracts.
func WithSchedule(interval time.Duration, windowDays int) Option {
	return func(p *Pipeline) {
		p.interval = interval
		p.windowDays = windowDays
	}
}

// New creates a Pipeline with the given stages and observability. A nil
// metrics set is replaced with an unregistered one.
func New(store SiteStore, e Extractor, s Scorer, sink RecordSink, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		extractor:  e,
		scorer:     s,
		sink:       sink,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
		interval:   24 * time.Hour,
		windowDays: 30,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observability.NewMetricsForTesting()
	}
	return p
}

// CheckReadiness returns nil once a backfill has completed, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no enrichment run has completed yet")
	}
	return nil
}

// ExtractSite builds and stores a feature record for one site without
// scoring it.
func (p *Pipeline) ExtractSite(ctx context.Context, siteID string, window domain.DateRange) (domain.FeatureRecord, error) {
	site, err := p.store.GetSite(ctx, siteID)
	if err != nil {
		return domain.FeatureRecord{}, err
	}
	rec, err := p.extractor.Extract(ctx, site, window)
	if err != nil {
		return domain.FeatureRecord{}, err
	}
	if err := p.sink.SaveFeatures(ctx, rec); err != nil {
		return rec, fmt.Errorf("save features for %s: %w", siteID, err)
	}
	return rec, nil
}

// EnrichSite extracts, scores and stores one site.
func (p *Pipeline) EnrichSite(ctx context.Context, siteID string, window domain.DateRange) (Enrichment, error) {
	site, err := p.store.GetSite(ctx, siteID)
	if err != nil {
		return Enrichment{}, err
	}
	return p.enrich(ctx, site, window)
}

func (p *Pipeline) enrich(ctx context.Context, site domain.Site, window domain.DateRange) (Enrichment, error) {
	rec, err := p.extractor.Extract(ctx, site, window)
	if err != nil {
		return Enrichment{}, err
	}
	if err := p.sink.SaveFeatures(ctx, rec); err != nil {
		return Enrichment{Features: rec}, fmt.Errorf("save features for %s: %w", site.ID, err)
	}

	pred := p.scorer.Score(rec)
	p.metrics.Predictions.WithLabelValues(pred.Category, string(pred.Path)).Inc()
	if err := p.sink.SavePrediction(ctx, pred); err != nil {
		return Enrichment{Features: rec, Prediction: pred}, fmt.Errorf("save prediction for %s: %w", site.ID, err)
	}

	p.logger.Info("site scored",
		"site_id", site.ID,
		"score", pred.Score,
		"category", pred.Category,
		"path", pred.Path,
		"partial", pred.Partial,
	)
	return Enrichment{Features: rec, Prediction: pred}, nil
}

// EnrichTower enriches every site of a tower, one at a time. A site that
// fails validation or persistence is counted and skipped; only a store
// failure listing the sites or a cancelled context stops the run.
func (p *Pipeline) EnrichTower(ctx context.Context, tower domain.WaterTower, window domain.DateRange) (TowerSummary, error) {
	sites, err := p.store.ListSitesByTower(ctx, tower.ID)
	if err != nil {
		return TowerSummary{}, fmt.Errorf("list sites of %s: %w", tower.ID, err)
	}

	sum := TowerSummary{TowerID: tower.ID, TowerName: tower.Name, Sites: len(sites)}
	var total float64
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := p.enrich(ctx, site, window)
		switch {
		case err == nil:
			sum.Scored++
			total += res.Prediction.Score
			if res.Prediction.Partial {
				sum.Partial++
			}
			p.metrics.SitesEnriched.WithLabelValues("scored").Inc()
		case domain.IsValidation(err):
			sum.Rejected++
			p.metrics.SitesEnriched.WithLabelValues("rejected").Inc()
			p.logger.Warn("site rejected", "tower_id", tower.ID, "site_id", site.ID, "error", err)
		default:
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			p.metrics.SitesEnriched.WithLabelValues("failed").Inc()
			p.logger.Error("site enrichment failed", "tower_id", tower.ID, "site_id", site.ID, "error", err)
		}
	}
	if sum.Scored > 0 {
		sum.MeanScore = total / float64(sum.Scored)
	}

	p.logger.Info("tower enriched",
		"tower_id", tower.ID,
		"sites", sum.Sites,
		"scored", sum.Scored,
		"partial", sum.Partial,
		"rejected", sum.Rejected,
		"failed", sum.Failed,
		"mean_score", sum.MeanScore,
	)
	return sum, nil
}

// Backfill enriches every water tower in turn. Sites are never processed
// concurrently so third-party rate limits are respected.
func (p *Pipeline) Backfill(ctx context.Context, window domain.DateRange) ([]TowerSummary, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	start := p.clock.Now()

	towers, err := p.store.ListTowers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list towers: %w", err)
	}
	summaries := make([]TowerSummary, 0, len(towers))
	for _, tower := range towers {
		sum, err := p.EnrichTower(ctx, tower, window)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, sum)
	}

	p.metrics.EnrichRunDuration.Observe(p.clock.Since(start).Seconds())
	p.logger.Info("backfill complete", "window", window.String(), "towers", len(summaries))
	return summaries, nil
}

// Run backfills the trailing window every interval until the context is
// cancelled. A failed run is retried with exponential backoff.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval, "window_days", p.windowDays)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		window, err := domain.TrailingWindow(p.clock.Now(), p.windowDays)
		if err != nil {
			return err
		}

		if _, err := p.Backfill(ctx, window); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("backfill failed", "error", err, "retry_in", backoff)
			if !sleepWithContext(ctx, p.clock, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}

		backoff = 200 * time.Millisecond
		p.ready.Store(true)
		if !sleepWithContext(ctx, p.clock, p.interval) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// sleepWithContext is retry.SleepWithContext on an injectable clock.
func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
