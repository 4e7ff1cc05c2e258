// Package model wraps an optional linear site-risk model trained offline.
// When its weights cannot be loaded it falls back, for the life of the
// process, to the rule engine's normalised points.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/observability"
	"github.com/towerguard/site-health/internal/scoring"
)

// DefaultVersion is reported when no weights file names its own version.
const DefaultVersion = "site-risk-stub-v1"

// Feature keys in the order the linear model sums them.
const (
	KeyNDVIMean     = "ndvi_mean"
	KeyNDVIStd      = "ndvi_std"
	KeyRainfallMean = "rainfall_mean"
	KeyTempMean     = "temp_mean"
	KeySoilIndex    = "soil_index"
)

// FeatureKeys is the fixed evaluation order.
var FeatureKeys = []string{KeyNDVIMean, KeyNDVIStd, KeyRainfallMean, KeyTempMean, KeySoilIndex}

// ErrNoWeights means the weights file named no known feature.
var ErrNoWeights = errors.New("no usable weights")

// State is the load state of a Model. Transitions only move forward:
// Unloaded, LoadAttempted, then Loaded or Fallback.
type State int32

const (
	StateUnloaded State = iota
	StateLoadAttempted
	StateLoaded
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoadAttempted:
		return "load attempted"
	case StateLoaded:
		return "loaded"
	case StateFallback:
		return "fallback"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Weights is the on-disk model: {"version": "...", "bias": b, "weights": {key: w}}.
type Weights struct {
	Version string             `json:"version"`
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

// Model scores feature records with the loaded weights or the fallback
// heuristic. The path taken is recorded on every prediction.
type Model struct {
	path     string
	logger   *slog.Logger
	metrics  *observability.Metrics
	fallback *scoring.Engine

	once    sync.Once
	state   atomic.Int32
	weights Weights
}

// New creates a Model that will read weights from path on first use. An
// empty path selects the fallback heuristic.
func New(path string, logger *slog.Logger, metrics *observability.Metrics) *Model {
	return &Model{
		path:     path,
		logger:   logger,
		metrics:  metrics,
		fallback: scoring.Default(),
		weights:  Weights{Version: DefaultVersion},
	}
}

// Load attempts to read the weights exactly once. Later calls return the
// settled state without touching the file again.
func (m *Model) Load() State {
	m.once.Do(m.load)
	return m.State()
}

// State reports the current load state.
func (m *Model) State() State {
	return State(m.state.Load())
}

func (m *Model) load() {
	m.state.Store(int32(StateLoadAttempted))

	w, err := m.read()
	if err != nil {
		if m.path == "" {
			m.logger.Info("no model path configured, using fallback heuristic")
		} else {
			m.logger.Warn("model load failed, using fallback heuristic", "path", m.path, "error", err)
		}
		m.state.Store(int32(StateFallback))
		m.setLoaded(false)
		return
	}

	m.weights = w
	m.state.Store(int32(StateLoaded))
	m.setLoaded(true)
	m.logger.Info("model weights loaded", "path", m.path, "version", w.Version, "features", len(w.Weights))
}

func (m *Model) read() (Weights, error) {
	if m.path == "" {
		return Weights{}, errors.New("model path not set")
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Weights{}, fmt.Errorf("read weights: %w", err)
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("decode weights: %w", err)
	}
	if math.IsNaN(w.Bias) || math.IsInf(w.Bias, 0) {
		return Weights{}, errors.New("bias is not finite")
	}

	known := make(map[string]float64, len(FeatureKeys))
	for _, k := range FeatureKeys {
		if v, ok := w.Weights[k]; ok {
			known[k] = v
		}
	}
	for k := range w.Weights {
		if _, ok := known[k]; !ok {
			m.logger.Warn("ignoring unknown model feature", "feature", k, "path", m.path)
		}
	}
	if len(known) == 0 {
		return Weights{}, ErrNoWeights
	}
	w.Weights = known
	if strings.TrimSpace(w.Version) == "" {
		w.Version = DefaultVersion
	}
	return w, nil
}

func (m *Model) setLoaded(ok bool) {
	if m.metrics == nil {
		return
	}
	if ok {
		m.metrics.ModelLoaded.Set(1)
	} else {
		m.metrics.ModelLoaded.Set(0)
	}
}

// Version reports the version stamped on predictions.
func (m *Model) Version() string {
	m.Load()
	return m.weights.Version
}

// Score predicts a health score for rec. It loads the weights on first use
// and never fails.
func (m *Model) Score(rec domain.FeatureRecord) domain.Prediction {
	if m.Load() == StateLoaded {
		return m.linear(rec)
	}
	return m.heuristic(rec)
}

// Payload returns the model features for rec. Missing features are absent
// from the map and count as zero when scored.
func Payload(rec domain.FeatureRecord) map[string]float64 {
	out := make(map[string]float64, len(FeatureKeys))
	put := func(k string, v *float64) {
		if v != nil {
			out[k] = *v
		}
	}
	put(KeyNDVIMean, rec.NDVIMean)
	put(KeyNDVIStd, rec.NDVIStd)
	put(KeyRainfallMean, rec.RainfallAnnualMM())
	put(KeyTempMean, rec.TempMeanC())
	put(KeySoilIndex, rec.SOC)
	return out
}

func (m *Model) linear(rec domain.FeatureRecord) domain.Prediction {
	payload := Payload(rec)

	var b strings.Builder
	z := m.weights.Bias
	fmt.Fprintf(&b, "bias = %.4f\n", m.weights.Bias)
	var missing []string
	for _, k := range FeatureKeys {
		w, ok := m.weights.Weights[k]
		if !ok {
			continue
		}
		v, present := payload[k]
		if !present {
			missing = append(missing, k)
		}
		z += w * v
		fmt.Fprintf(&b, "%s = %.4f x %.4f\n", k, v, w)
	}
	if math.IsNaN(z) {
		m.logger.Warn("model logit is not a number, using fallback heuristic",
			"site_id", rec.SiteID, "version", m.weights.Version)
		return m.heuristic(rec)
	}
	score := clamp01(sigmoid(z))
	fmt.Fprintf(&b, "logit = %.4f, sigmoid = %.4f", z, score)

	cat := scoring.Categorize(score)
	exp := domain.Explanation{
		Path:        domain.PathLoadedModel,
		Summary:     "Loaded model weights used",
		Category:    cat.Name,
		Description: cat.Description,
		Inputs:      payload,
		Missing:     missing,
		Reasoning:   b.String(),
	}
	return domain.NewPrediction(rec, score, cat.Name, m.weights.Version, exp)
}

func (m *Model) heuristic(rec domain.FeatureRecord) domain.Prediction {
	in := scoring.InputFromFeatures(rec)
	ev := m.fallback.Evaluate(in)
	exp := ev.Explain(rec.SiteID, domain.PathFallbackHeuristic, in)
	exp.Summary = "Fallback heuristic from rule points: " + exp.Summary
	return domain.NewPrediction(rec, ev.Score, ev.Category.Name, m.weights.Version, exp)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
