package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScoringPath names the scorer that produced a prediction. Scores from
// different paths are not numerically comparable.
type ScoringPath string

const (
	PathRuleEngine        ScoringPath = "rule engine"
	PathLoadedModel       ScoringPath = "loaded model"
	PathFallbackHeuristic ScoringPath = "fallback heuristic"
)

// RuleOutcome is one rule's contribution to a score.
type RuleOutcome struct {
	Feature   string   `json:"feature"`
	Predicate string   `json:"predicate"`
	Value     *float64 `json:"value"`
	Available bool     `json:"available"`
	Met       bool     `json:"met"`
	Points    float64  `json:"points"`
	MaxPoints float64  `json:"max_points"`
	Text      string   `json:"text"`
}

// Explanation is the audit payload attached to every prediction.
type Explanation struct {
	Path        ScoringPath        `json:"path"`
	Summary     string             `json:"summary"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Rules       []RuleOutcome      `json:"rules,omitempty"`
	RawPoints   float64            `json:"raw_points"`
	MaxPoints   float64            `json:"max_points"`
	Inputs      map[string]float64 `json:"inputs,omitempty"`
	Missing     []string           `json:"missing,omitempty"`
	Reasoning   string             `json:"reasoning,omitempty"`
}

// Prediction is the scored outcome of exactly one FeatureRecord.
type Prediction struct {
	ID           string      `json:"id" db:"id"`
	SiteID       string      `json:"site_id" db:"site_id"`
	FeaturesID   string      `json:"features_id" db:"features_id"`
	Score        float64     `json:"score" db:"score"`
	Category     string      `json:"category" db:"category"`
	ModelVersion string      `json:"model_version" db:"model_version"`
	Path         ScoringPath `json:"path" db:"path"`
	Partial      bool        `json:"partial" db:"partial"`
	Explanation  Explanation `json:"explanation" db:"-"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// NewPrediction ties a score to the record it was computed from. Partial
// is copied from the record.
func NewPrediction(rec FeatureRecord, score float64, category, version string, exp Explanation) Prediction {
	return Prediction{
		ID:           uuid.NewString(),
		SiteID:       rec.SiteID,
		FeaturesID:   rec.ID,
		Score:        score,
		Category:     category,
		ModelVersion: version,
		Path:         exp.Path,
		Partial:      rec.Partial,
		Explanation:  exp,
		CreatedAt:    clock.Now().UTC(),
	}
}
