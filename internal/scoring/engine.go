package scoring

import (
	"fmt"
	"strings"

	"github.com/towerguard/site-health/internal/domain"
)

// Input holds the rule-engine features derived from a FeatureRecord. A nil
// field is a missing feature.
type Input struct {
	NDVIMean   *float64
	NDVIStd    *float64
	RainfallMM *float64
	TempMeanC  *float64
	ElevationM *float64
}

// InputFromFeatures derives rule inputs: rainfall is the daily climatology
// annualised to mm per year, temperature the midpoint of min and max.
func InputFromFeatures(rec domain.FeatureRecord) Input {
	return Input{
		NDVIMean:   rec.NDVIMean,
		NDVIStd:    rec.NDVIStd,
		RainfallMM: rec.RainfallAnnualMM(),
		TempMeanC:  rec.TempMeanC(),
		ElevationM: rec.ElevationM,
	}
}

func (in Input) value(feature string) *float64 {
	switch feature {
	case FeatureNDVIMean:
		return in.NDVIMean
	case FeatureNDVIStd:
		return in.NDVIStd
	case FeatureRainfallMM:
		return in.RainfallMM
	case FeatureTempMeanC:
		return in.TempMeanC
	case FeatureElevationM:
		return in.ElevationM
	}
	return nil
}

// Values returns the present inputs keyed by feature name.
func (in Input) Values() map[string]float64 {
	out := make(map[string]float64, 5)
	for _, f := range []string{FeatureNDVIMean, FeatureNDVIStd, FeatureRainfallMM, FeatureTempMeanC, FeatureElevationM} {
		if v := in.value(f); v != nil {
			out[f] = *v
		}
	}
	return out
}

// Evaluation is the full result of running the rules over one input.
type Evaluation struct {
	Score     float64
	Category  Category
	Rules     []domain.RuleOutcome
	RawPoints float64
	MaxPoints float64
	Missing   []string
}

// Engine evaluates an ordered rule set. It performs no I/O and never fails.
type Engine struct {
	rules []Rule
	max   float64
}

// NewEngine creates an Engine over rules. Points of all rules form the
// normalisation denominator.
func NewEngine(rules []Rule) *Engine {
	var total float64
	for _, r := range rules {
		total += r.Points
	}
	return &Engine{rules: rules, max: total}
}

// Default returns an Engine over DefaultRules.
func Default() *Engine {
	return NewEngine(DefaultRules())
}

// Evaluate scores in. Each rule is independent; a missing feature earns no
// points and is reported as unavailable.
func (e *Engine) Evaluate(in Input) Evaluation {
	ev := Evaluation{MaxPoints: e.max, Rules: make([]domain.RuleOutcome, 0, len(e.rules))}
	for _, r := range e.rules {
		out := domain.RuleOutcome{
			Feature:   r.Feature,
			Predicate: r.Describe(),
			MaxPoints: r.Points,
		}
		v := in.value(r.Feature)
		if v == nil {
			out.Text = r.Label + " unavailable, treated as unmet"
			ev.Missing = append(ev.Missing, r.Feature)
		} else {
			val := *v
			out.Value = &val
			out.Available = true
			out.Met = r.Test(val)
			if out.Met {
				out.Points = r.Points
			}
			verdict := "not met"
			if out.Met {
				verdict = "met"
			}
			out.Text = fmt.Sprintf("%s = "+r.Format+"%s (%s) %s", r.Label, val, r.Unit, r.Predicate, verdict)
		}
		ev.RawPoints += out.Points
		ev.Rules = append(ev.Rules, out)
	}
	if e.max > 0 {
		ev.Score = clamp(ev.RawPoints / e.max)
	}
	ev.Category = Categorize(ev.Score)
	return ev
}

// Explain builds the audit payload for an evaluation. The reasoning text
// depends only on its inputs, so the same record always explains the same
// way.
func (ev Evaluation) Explain(siteID string, path domain.ScoringPath, in Input) domain.Explanation {
	return domain.Explanation{
		Path:        path,
		Summary:     fmt.Sprintf("Overall health score %.1f%% (%s)", ev.Score*100, ev.Category.Name),
		Category:    ev.Category.Name,
		Description: ev.Category.Description,
		Rules:       ev.Rules,
		RawPoints:   ev.RawPoints,
		MaxPoints:   ev.MaxPoints,
		Inputs:      in.Values(),
		Missing:     ev.Missing,
		Reasoning:   ev.narrative(siteID),
	}
}

func (ev Evaluation) narrative(siteID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Health assessment for %s\n", siteID)
	fmt.Fprintf(&b, "Overall health score: %.1f%% (%s)\n", ev.Score*100, ev.Category.Name)
	fmt.Fprintf(&b, "The site shows %s environmental health. %s.\n", strings.ToLower(ev.Category.Name), ev.Category.Description)
	b.WriteString("Scoring breakdown:\n")
	for _, r := range ev.Rules {
		mark := "[ ]"
		if r.Met {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "  %s %s: %.0f points (%s)\n", mark, r.Predicate, r.Points, r.Text)
	}
	fmt.Fprintf(&b, "Total: %.0f / %.0f points", ev.RawPoints, ev.MaxPoints)
	return b.String()
}
