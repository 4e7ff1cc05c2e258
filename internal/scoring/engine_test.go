package scoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towerguard/site-health/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestDefaultRules_TotalHundredPoints(t *testing.T) {
	e := Default()
	assert.InDelta(t, 100.0, e.max, 1e-9)
}

func TestEvaluate_AllRulesMet(t *testing.T) {
	ev := Default().Evaluate(Input{
		NDVIMean:   f(0.6),
		NDVIStd:    f(0.1),
		RainfallMM: f(150),
		TempMeanC:  f(20),
		ElevationM: f(2000),
	})

	assert.InDelta(t, 1.0, ev.Score, 1e-12)
	assert.Equal(t, "Excellent", ev.Category.Name)
	assert.InDelta(t, 100.0, ev.RawPoints, 1e-9)
	assert.Empty(t, ev.Missing)
	require.Len(t, ev.Rules, 5)
	for _, r := range ev.Rules {
		assert.True(t, r.Met, r.Predicate)
		assert.True(t, r.Available)
		assert.InDelta(t, r.MaxPoints, r.Points, 1e-9)
	}
}

func TestEvaluate_AllFeaturesMissing(t *testing.T) {
	ev := Default().Evaluate(Input{})

	assert.InDelta(t, 0.0, ev.Score, 1e-12)
	assert.Equal(t, "Critical", ev.Category.Name)
	assert.Equal(t, []string{FeatureNDVIMean, FeatureNDVIStd, FeatureRainfallMM, FeatureTempMeanC, FeatureElevationM}, ev.Missing)
	for _, r := range ev.Rules {
		assert.False(t, r.Met)
		assert.False(t, r.Available)
		assert.Nil(t, r.Value)
		assert.Contains(t, r.Text, "unavailable, treated as unmet")
	}
}

func TestEvaluate_RuleOrderAndText(t *testing.T) {
	ev := Default().Evaluate(Input{
		NDVIMean:   f(0.42),
		NDVIStd:    f(0.25),
		RainfallMM: f(1168),
		TempMeanC:  f(28),
	})

	require.Len(t, ev.Rules, 5)
	assert.Equal(t, "NDVI mean > 0.5", ev.Rules[0].Predicate)
	assert.Equal(t, "NDVI mean = 0.420 (> 0.5) not met", ev.Rules[0].Text)
	assert.Equal(t, "NDVI std = 0.250 (< 0.2) not met", ev.Rules[1].Text)
	assert.Equal(t, "Rainfall = 1168.0 mm (> 120 mm) met", ev.Rules[2].Text)
	assert.Equal(t, "Temperature = 28.0 C (in [15, 25] C) not met", ev.Rules[3].Text)
	assert.Equal(t, "Elevation unavailable, treated as unmet", ev.Rules[4].Text)

	assert.InDelta(t, 20.0, ev.RawPoints, 1e-9)
	assert.InDelta(t, 0.2, ev.Score, 1e-12)
	assert.Equal(t, "Critical", ev.Category.Name, "0.2 resolves to the lower band")
}

func TestEvaluate_InclusiveRanges(t *testing.T) {
	e := Default()
	for _, temp := range []float64{15, 25} {
		ev := e.Evaluate(Input{TempMeanC: f(temp)})
		assert.True(t, ev.Rules[3].Met, "temperature %v", temp)
	}
	for _, elev := range []float64{1500, 3000} {
		ev := e.Evaluate(Input{ElevationM: f(elev)})
		assert.True(t, ev.Rules[4].Met, "elevation %v", elev)
	}

	// Strict predicates do not hold at their threshold.
	ev := e.Evaluate(Input{NDVIMean: f(0.5), NDVIStd: f(0.2), RainfallMM: f(120)})
	assert.False(t, ev.Rules[0].Met)
	assert.False(t, ev.Rules[1].Met)
	assert.False(t, ev.Rules[2].Met)
}

func TestEvaluate_ScoreAlwaysInUnitRange(t *testing.T) {
	values := []*float64{nil, f(-1e9), f(0), f(0.5), f(20), f(2000), f(1e9)}
	e := Default()
	for _, a := range values {
		for _, b := range values {
			for _, c := range values {
				ev := e.Evaluate(Input{NDVIMean: a, NDVIStd: b, RainfallMM: c, TempMeanC: a, ElevationM: b})
				assert.GreaterOrEqual(t, ev.Score, 0.0)
				assert.LessOrEqual(t, ev.Score, 1.0)
			}
		}
	}
}

func TestCategorize_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.0, "Critical"},
		{0.1, "Critical"},
		{0.2, "Critical"},
		{0.2000001, "Poor"},
		{0.4, "Poor"},
		{0.5, "Fair"},
		{0.6, "Fair"},
		{0.7, "Good"},
		{0.8, "Good"},
		{0.9, "Excellent"},
		{1.0, "Excellent"},
		{-0.3, "Critical"},
		{1.7, "Excellent"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.score).Name, "score %v", tt.score)
	}
}

func TestCategorize_BandsAreContiguous(t *testing.T) {
	require.Len(t, Categories, 5)
	assert.InDelta(t, 0.0, Categories[0].Min, 1e-12)
	assert.InDelta(t, 1.0, Categories[len(Categories)-1].Max, 1e-12)
	for i := 1; i < len(Categories); i++ {
		assert.InDelta(t, Categories[i-1].Max, Categories[i].Min, 1e-12)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	in := Input{NDVIMean: f(0.55), RainfallMM: f(900), TempMeanC: f(18.25)}
	e := Default()

	first, err := json.Marshal(e.Evaluate(in).Explain("mau-01", domain.PathRuleEngine, in))
	require.NoError(t, err)
	second, err := json.Marshal(e.Evaluate(in).Explain("mau-01", domain.PathRuleEngine, in))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestExplain(t *testing.T) {
	in := Input{NDVIMean: f(0.6), NDVIStd: f(0.1), RainfallMM: f(150), TempMeanC: f(20)}
	exp := Default().Evaluate(in).Explain("mau-01", domain.PathRuleEngine, in)

	assert.Equal(t, domain.PathRuleEngine, exp.Path)
	assert.Equal(t, "Excellent", exp.Category)
	assert.Equal(t, "Overall health score 90.0% (Excellent)", exp.Summary)
	assert.InDelta(t, 90.0, exp.RawPoints, 1e-9)
	assert.InDelta(t, 100.0, exp.MaxPoints, 1e-9)
	assert.Equal(t, []string{FeatureElevationM}, exp.Missing)
	assert.Equal(t, map[string]float64{
		FeatureNDVIMean: 0.6, FeatureNDVIStd: 0.1, FeatureRainfallMM: 150, FeatureTempMeanC: 20,
	}, exp.Inputs)
	assert.Contains(t, exp.Reasoning, "Health assessment for mau-01")
	assert.Contains(t, exp.Reasoning, "[x] NDVI mean > 0.5: 40 points")
	assert.Contains(t, exp.Reasoning, "[ ] Elevation in [1500, 3000] m: 0 points (Elevation unavailable, treated as unmet)")
	assert.Contains(t, exp.Reasoning, "Total: 90 / 100 points")
}
