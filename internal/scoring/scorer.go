package scoring

import "github.com/towerguard/site-health/internal/domain"

// RuleVersion is the model version recorded on rule-engine predictions.
const RuleVersion = "rule-based-v2-towerguard"

// RuleBased scores feature records with the rule engine.
type RuleBased struct {
	engine *Engine
}

// NewRuleBased creates a RuleBased scorer over the default rules.
func NewRuleBased() *RuleBased {
	return &RuleBased{engine: Default()}
}

// Score evaluates rec. It always succeeds; missing features lower the
// score and are listed in the explanation.
func (s *RuleBased) Score(rec domain.FeatureRecord) domain.Prediction {
	in := InputFromFeatures(rec)
	ev := s.engine.Evaluate(in)
	return domain.NewPrediction(rec, ev.Score, ev.Category.Name, RuleVersion, ev.Explain(rec.SiteID, domain.PathRuleEngine, in))
}

// Version reports the version stamped on predictions.
func (s *RuleBased) Version() string { return RuleVersion }
