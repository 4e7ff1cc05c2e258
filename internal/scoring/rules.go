// Package scoring turns a FeatureRecord into a deterministic health score
// with a rule-by-rule explanation.
package scoring

import "math"

// Rule awards Points when Test holds for its feature. A missing feature is
// always unmet.
type Rule struct {
	Feature   string
	Label     string
	Predicate string
	Points    float64
	Format    string
	Unit      string
	Test      func(v float64) bool
}

// Describe renders the rule as it appears in explanations, e.g.
// "NDVI mean > 0.5".
func (r Rule) Describe() string {
	return r.Label + " " + r.Predicate
}

// Feature names used by the default rules.
const (
	FeatureNDVIMean   = "ndvi_mean"
	FeatureNDVIStd    = "ndvi_std"
	FeatureRainfallMM = "rainfall_mm"
	FeatureTempMeanC  = "temp_mean_c"
	FeatureElevationM = "elevation_m"
)

// DefaultRules is the fixed rule set, evaluated in order. Points total 100.
func DefaultRules() []Rule {
	return []Rule{
		{
			Feature:   FeatureNDVIMean,
			Label:     "NDVI mean",
			Predicate: "> 0.5",
			Points:    40,
			Format:    "%.3f",
			Test:      func(v float64) bool { return v > 0.5 },
		},
		{
			Feature:   FeatureNDVIStd,
			Label:     "NDVI std",
			Predicate: "< 0.2",
			Points:    10,
			Format:    "%.3f",
			Test:      func(v float64) bool { return v < 0.2 },
		},
		{
			Feature:   FeatureRainfallMM,
			Label:     "Rainfall",
			Predicate: "> 120 mm",
			Points:    20,
			Format:    "%.1f",
			Unit:      " mm",
			Test:      func(v float64) bool { return v > 120 },
		},
		{
			Feature:   FeatureTempMeanC,
			Label:     "Temperature",
			Predicate: "in [15, 25] C",
			Points:    20,
			Format:    "%.1f",
			Unit:      " C",
			Test:      func(v float64) bool { return v >= 15 && v <= 25 },
		},
		{
			Feature:   FeatureElevationM,
			Label:     "Elevation",
			Predicate: "in [1500, 3000] m",
			Points:    10,
			Format:    "%.0f",
			Unit:      " m",
			Test:      func(v float64) bool { return v >= 1500 && v <= 3000 },
		},
	}
}

// Category is one band of the normalised score range. Both ends are
// inclusive; the first matching band in ascending order wins.
type Category struct {
	Name        string
	Description string
	Min         float64
	Max         float64
}

// Categories partitions [0, 1] into five bands, lowest first.
var Categories = []Category{
	{Name: "Critical", Description: "Severe environmental degradation; immediate intervention needed", Min: 0.0, Max: 0.2},
	{Name: "Poor", Description: "Significant environmental stress; corrective action required", Min: 0.2, Max: 0.4},
	{Name: "Fair", Description: "Moderate environmental conditions; monitoring recommended", Min: 0.4, Max: 0.6},
	{Name: "Good", Description: "Healthy environmental conditions; favorable for ecosystem", Min: 0.6, Max: 0.8},
	{Name: "Excellent", Description: "Optimal environmental conditions; model water tower status", Min: 0.8, Max: 1.0},
}

// Categorize maps a score to its band. Scores outside [0, 1] are clamped
// first, so every input has exactly one category.
func Categorize(score float64) Category {
	score = clamp(score)
	for _, c := range Categories {
		if score >= c.Min && score <= c.Max {
			return c
		}
	}
	return Categories[len(Categories)-1]
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
