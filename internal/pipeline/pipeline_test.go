package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/observability"
	"github.com/towerguard/site-health/internal/pipeline"
	"github.com/towerguard/site-health/internal/scoring"
)

// --- mocks ---

type mockStore struct {
	towers    []domain.WaterTower
	sites     map[string][]domain.Site
	listErr   error
	listCalls atomic.Int32
}

func (m *mockStore) GetSite(_ context.Context, id string) (domain.Site, error) {
	for _, sites := range m.sites {
		for _, s := range sites {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return domain.Site{}, domain.SiteNotFound(id)
}

func (m *mockStore) ListTowers(context.Context) ([]domain.WaterTower, error) {
	m.listCalls.Add(1)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.towers, nil
}

func (m *mockStore) ListSitesByTower(_ context.Context, towerID string) ([]domain.Site, error) {
	return m.sites[towerID], nil
}

type mockExtractor struct {
	errs     map[string]error
	inflight atomic.Int32
	overlap  atomic.Bool
	mu       sync.Mutex
	order    []string
}

func (m *mockExtractor) Extract(_ context.Context, site domain.Site, window domain.DateRange) (domain.FeatureRecord, error) {
	if m.inflight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inflight.Add(-1)
	time.Sleep(time.Millisecond)

	m.mu.Lock()
	m.order = append(m.order, site.ID)
	m.mu.Unlock()

	if err := m.errs[site.ID]; err != nil {
		return domain.FeatureRecord{}, err
	}
	rec := domain.NewFeatureRecord(site, window)
	rec.NDVIMean = domain.Float(0.6)
	rec.NDVIStd = domain.Float(0.1)
	rec.RainfallMeanMMPerDay = domain.Float(2)
	rec.RainfallTotalMM = domain.Float(2 * float64(rec.Days))
	rec.TminC = domain.Float(12)
	rec.TmaxC = domain.Float(24)
	rec.Partial = site.ID == "mau-02"
	return rec, nil
}

type memSink struct {
	name        string
	features    []domain.FeatureRecord
	predictions []domain.Prediction
	err         error
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) SaveFeatures(_ context.Context, rec domain.FeatureRecord) error {
	if m.err != nil {
		return m.err
	}
	m.features = append(m.features, rec)
	return nil
}

func (m *memSink) SavePrediction(_ context.Context, p domain.Prediction) error {
	if m.err != nil {
		return m.err
	}
	m.predictions = append(m.predictions, p)
	return nil
}

func site(id, tower string, elevation float64) domain.Site {
	return domain.Site{
		ID:           id,
		WaterTowerID: tower,
		ElevationM:   domain.Float(elevation),
		Geometry: domain.Geometry{Type: domain.GeometryPolygon, Polygons: []domain.Polygon{{
			{{36.5, -0.5}, {36.7, -0.5}, {36.7, -0.3}, {36.5, -0.3}, {36.5, -0.5}},
		}}},
		Lat: -0.4,
		Lon: 36.6,
	}
}

func newStore() *mockStore {
	return &mockStore{
		towers: []domain.WaterTower{{ID: "aberdare", Name: "Aberdare Range"}, {ID: "mau", Name: "Mau Forest Complex"}},
		sites: map[string][]domain.Site{
			"aberdare": {site("abd-01", "aberdare", 2800)},
			"mau":      {site("mau-01", "mau", 2400), site("mau-02", "mau", 900), site("mau-03", "mau", 2100)},
		},
	}
}

func window(t *testing.T) domain.DateRange {
	t.Helper()
	w, err := domain.ParseDateRange("2024-01-01", "2024-01-10")
	require.NoError(t, err)
	return w
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestEnrichSite(t *testing.T) {
	sink := &memSink{name: "mem"}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), sink, discard(), metrics)

	res, err := p.EnrichSite(context.Background(), "mau-01", window(t))
	require.NoError(t, err)

	assert.Equal(t, "mau-01", res.Features.SiteID)
	assert.Equal(t, res.Features.ID, res.Prediction.FeaturesID)
	assert.InDelta(t, 1.0, res.Prediction.Score, 1e-12)
	assert.Equal(t, "Excellent", res.Prediction.Category)
	require.Len(t, sink.features, 1)
	require.Len(t, sink.predictions, 1)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues("Excellent", "rule engine")), 1e-9)
}

func TestEnrichSite_UnknownSite(t *testing.T) {
	sink := &memSink{name: "mem"}
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), sink, discard(), observability.NewMetricsForTesting())

	_, err := p.EnrichSite(context.Background(), "nope", window(t))
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
	assert.Empty(t, sink.features)
}

func TestExtractSite_DoesNotScore(t *testing.T) {
	sink := &memSink{name: "mem"}
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), sink, discard(), observability.NewMetricsForTesting())

	rec, err := p.ExtractSite(context.Background(), "abd-01", window(t))
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Days)
	assert.Len(t, sink.features, 1)
	assert.Empty(t, sink.predictions)
}

func TestEnrichTower_CountsOutcomes(t *testing.T) {
	ext := &mockExtractor{errs: map[string]error{
		"mau-03": &domain.ValidationError{Field: "centroid", Err: domain.ErrOutOfBounds},
	}}
	sink := &memSink{name: "mem"}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(newStore(), ext, scoring.NewRuleBased(), sink, discard(), metrics)

	sum, err := p.EnrichTower(context.Background(), domain.WaterTower{ID: "mau", Name: "Mau Forest Complex"}, window(t))
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Sites)
	assert.Equal(t, 2, sum.Scored)
	assert.Equal(t, 1, sum.Partial)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 0, sum.Failed)
	// mau-01 meets every rule, mau-02 misses elevation.
	assert.InDelta(t, 0.95, sum.MeanScore, 1e-9)
	assert.Equal(t, []string{"mau-01", "mau-02", "mau-03"}, ext.order)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.SitesEnriched.WithLabelValues("rejected")), 1e-9)
}

func TestEnrichTower_SinkFailureCountsAsFailed(t *testing.T) {
	sink := &memSink{name: "mem", err: errors.New("disk full")}
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), sink, discard(), observability.NewMetricsForTesting())

	sum, err := p.EnrichTower(context.Background(), domain.WaterTower{ID: "aberdare"}, window(t))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Scored)
}

func TestBackfill_SequentialAcrossTowers(t *testing.T) {
	ext := &mockExtractor{}
	sink := &memSink{name: "mem"}
	p := pipeline.New(newStore(), ext, scoring.NewRuleBased(), sink, discard(), observability.NewMetricsForTesting())

	sums, err := p.Backfill(context.Background(), window(t))
	require.NoError(t, err)

	require.Len(t, sums, 2)
	assert.Equal(t, "aberdare", sums[0].TowerID)
	assert.Equal(t, 3, sums[1].Scored)
	assert.Equal(t, []string{"abd-01", "mau-01", "mau-02", "mau-03"}, ext.order)
	assert.False(t, ext.overlap.Load(), "sites must not be enriched concurrently")
	assert.Len(t, sink.predictions, 4)
}

func TestBackfill_InvalidWindow(t *testing.T) {
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), &memSink{}, discard(), observability.NewMetricsForTesting())

	_, err := p.Backfill(context.Background(), domain.DateRange{})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestBackfill_CancelledContext(t *testing.T) {
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), &memSink{}, discard(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Backfill(ctx, window(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Run_BecomesReadyThenWaitsForInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	sink := &memSink{name: "mem"}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), sink, discard(), metrics,
		pipeline.WithClock(clock), pipeline.WithSchedule(time.Hour, 10))

	require.Error(t, p.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.PipelineRunning), 1e-9)
	require.Len(t, sink.features, 4)
	assert.Equal(t, "2024-01-01..2024-01-10", domain.DateRange{Start: sink.features[0].WindowStart, End: sink.features[0].WindowEnd}.String())

	clock.Advance(time.Hour)
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-waitCtx.Done():
		t.Fatal("pipeline did not stop")
	}
	assert.Len(t, sink.features, 8)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 1e-9)
}

func TestPipeline_Run_BacksOffOnStoreFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newStore()
	store.listErr = errors.New("database is locked")
	p := pipeline.New(store, &mockExtractor{}, scoring.NewRuleBased(), &memSink{}, discard(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.Error(t, p.CheckReadiness(context.Background()))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-waitCtx.Done():
		t.Fatal("pipeline did not stop")
	}
}

func TestPipeline_Run_BackoffDoubles(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newStore()
	store.listErr = errors.New("database is locked")
	p := pipeline.New(store, &mockExtractor{}, scoring.NewRuleBased(), &memSink{}, discard(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	require.Equal(t, int32(1), store.listCalls.Load())
	clock.Advance(200 * time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	require.Equal(t, int32(2), store.listCalls.Load())

	// The second wait is 400ms, so 200ms more does not retry yet.
	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, int32(2), store.listCalls.Load())

	clock.Advance(200 * time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, int32(3), store.listCalls.Load())
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), &memSink{}, discard(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
}

func TestMultiSink(t *testing.T) {
	good := &memSink{name: "sqlite"}
	bad := &memSink{name: "kafka", err: errors.New("broker down")}
	metrics := observability.NewMetricsForTesting()
	m := pipeline.NewMultiSink(discard(), metrics, bad, good)

	err := m.SaveFeatures(context.Background(), domain.FeatureRecord{ID: "f"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: broker down")
	assert.Len(t, good.features, 1, "a failing sink does not block the others")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.SinkWriteFailures.WithLabelValues("kafka")), 1e-9)

	bad.err = nil
	require.NoError(t, m.SavePrediction(context.Background(), domain.Prediction{ID: "p"}))
	assert.Len(t, bad.predictions, 1)
	assert.Len(t, good.predictions, 1)
}

func TestPipeline_NilMetrics(t *testing.T) {
	sink := &memSink{name: "mem"}
	p := pipeline.New(newStore(), &mockExtractor{}, scoring.NewRuleBased(), pipeline.NewMultiSink(discard(), nil, sink), discard(), nil)

	summaries, err := p.Backfill(context.Background(), window(t))
	require.NoError(t, err)
	require.NotEmpty(t, summaries)
	assert.NotEmpty(t, sink.predictions)
}
