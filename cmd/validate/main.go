// Command validate checks the inputs the service depends on before they are
// seeded or deployed: the site catalog GeoJSON and the provider fixture
// snapshots used when a live fetch fails. It verifies every site boundary,
// every fixture value range, and that each valid site scores end to end
// from fixture data alone.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -sites data/sites/kenya_water_tower_sites.geojson \
//	  -fixtures-dir internal/adapter/fixtures/data
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/towerguard/site-health/internal/adapter/fixtures"
	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/scoring"
	"github.com/towerguard/site-health/internal/sites"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	sitesPath := flag.String("sites", "", "path to the site catalog GeoJSON FeatureCollection")
	fixturesDir := flag.String("fixtures-dir", "", "directory of provider fixture snapshots (default: bundled)")
	flag.Parse()

	if *sitesPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*sitesPath, *fixturesDir); code != 0 {
		os.Exit(code)
	}
}

func run(sitesPath, fixturesDir string) int {
	// Fixed clock so record timestamps are reproducible between runs.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== TowerGuard Input Validation ===")
	fmt.Println()

	cat, err := sites.LoadFile(sitesPath, domain.KenyaBounds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load sites: %v\n", err)
		return 1
	}
	fx := fixtures.New(fixturesDir)

	phases := []*phase{
		validateCatalog(cat),
		validateFixtures(fx),
		validateScoring(cat.Sites, fx),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Catalog: %d towers, %d sites, %d rejected features\n",
		len(cat.Towers), len(cat.Sites), len(cat.Rejected))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Site Catalog ──
// Every feature must become a valid site and ids must be unique.

func validateCatalog(cat sites.Catalog) *phase {
	p := &phase{name: "Phase 1: Site Catalog (GeoJSON)"}

	for _, r := range cat.Rejected {
		p.errorf("%v", r)
	}
	if len(cat.Sites) == 0 {
		p.errorf("catalog has no valid sites")
	}

	seen := make(map[string]bool, len(cat.Sites))
	for _, s := range cat.Sites {
		if seen[s.ID] {
			p.errorf("site %s: duplicate id", s.ID)
		}
		seen[s.ID] = true
		if s.AreaHa <= 0 {
			p.errorf("site %s: boundary encloses no area", s.ID)
		}
		if s.ElevationM != nil && (*s.ElevationM < -500 || *s.ElevationM > 6000) {
			p.errorf("site %s: elevation %.0f m is implausible", s.ID, *s.ElevationM)
		}
	}
	return p
}

// ── Phase 2: Fixture Snapshots ──
// Every snapshot must load and hold physically plausible values.

func validateFixtures(fx *fixtures.Set) *phase {
	p := &phase{name: "Phase 2: Fixture Snapshots"}

	if rain, err := fx.Rainfall(); err != nil {
		p.errorf("rainfall: %v", err)
	} else if !inRange(rain.MeanMMPerDay, 0, 50) {
		p.errorf("rainfall: mean %.3f mm/day outside [0, 50]", rain.MeanMMPerDay)
	}

	if temp, err := fx.Temperature(); err != nil {
		p.errorf("temperature: %v", err)
	} else {
		if temp.MinC > temp.MaxC {
			p.errorf("temperature: min %.1f C above max %.1f C", temp.MinC, temp.MaxC)
		}
		if !inRange(temp.MinC, -30, 50) || !inRange(temp.MaxC, -30, 50) {
			p.errorf("temperature: range [%.1f, %.1f] C is implausible", temp.MinC, temp.MaxC)
		}
	}

	soil, err := fx.Soil()
	if err != nil {
		p.errorf("soil: %v", err)
		return p
	}
	for _, name := range soil.Missing() {
		p.errorf("soil: %s missing from snapshot", name)
	}
	checkPercent(p, "sand", soil.Sand)
	checkPercent(p, "silt", soil.Silt)
	checkPercent(p, "clay", soil.Clay)
	if soil.PH != nil && !inRange(*soil.PH, 0, 14) {
		p.errorf("soil: pH %.2f outside [0, 14]", *soil.PH)
	}
	if soil.Sand != nil && soil.Silt != nil && soil.Clay != nil {
		if total := *soil.Sand + *soil.Silt + *soil.Clay; math.Abs(total-100) > 5 {
			p.errorf("soil: texture fractions sum to %.1f%%, expected about 100%%", total)
		}
	}
	return p
}

func checkPercent(p *phase, name string, v *float64) {
	if v != nil && !inRange(*v, 0, 100) {
		p.errorf("soil: %s %.1f%% outside [0, 100]", name, *v)
	}
}

// ── Phase 3: Fixture Scoring ──
// Each site must score from fixture data with a bounded score and a known
// category.

func validateScoring(all []domain.Site, fx *fixtures.Set) *phase {
	p := &phase{name: "Phase 3: Fixture Scoring (rule engine)"}

	window, err := domain.ParseDateRange("2023-01-01", "2023-12-31")
	if err != nil {
		p.errorf("window: %v", err)
		return p
	}
	categories := make(map[string]bool, len(scoring.Categories))
	for _, c := range scoring.Categories {
		categories[c.Name] = true
	}

	scorer := scoring.NewRuleBased()
	for _, s := range all {
		rec := fixtureRecord(s, window, fx)
		pred := scorer.Score(rec)
		if !inRange(pred.Score, 0, 1) {
			p.errorf("site %s: score %.4f outside [0, 1]", s.ID, pred.Score)
		}
		if !categories[pred.Category] {
			p.errorf("site %s: unknown category %q", s.ID, pred.Category)
		}
		if pred.FeaturesID != rec.ID || pred.SiteID != s.ID {
			p.errorf("site %s: prediction not linked to its feature record", s.ID)
		}
		if !pred.Partial {
			p.errorf("site %s: fixture-only record must be partial", s.ID)
		}
	}
	return p
}

// fixtureRecord fills a record from snapshots the way the aggregator does
// after every live fetch has failed.
func fixtureRecord(s domain.Site, window domain.DateRange, fx *fixtures.Set) domain.FeatureRecord {
	rec := domain.NewFeatureRecord(s, window)
	if rain, err := fx.Rainfall(); err == nil {
		rec.RainfallMeanMMPerDay = domain.Float(rain.MeanMMPerDay)
		rec.RainfallTotalMM = domain.Float(rain.MeanMMPerDay * float64(window.Days()))
		rec.Sources.Rainfall = domain.SourceStatus{Provider: "fixture", Available: true, Origin: domain.OriginFixture}
	}
	if temp, err := fx.Temperature(); err == nil {
		rec.TminC = domain.Float(temp.MinC)
		rec.TmaxC = domain.Float(temp.MaxC)
		rec.Sources.Temperature = domain.SourceStatus{Provider: "fixture", Available: true, Origin: domain.OriginFixture}
	}
	if soil, err := fx.Soil(); err == nil {
		rec.SOC, rec.Sand, rec.Clay, rec.Silt, rec.PH, rec.BulkDensity =
			soil.SOC, soil.Sand, soil.Clay, soil.Silt, soil.PH, soil.BulkDensity
		rec.Sources.Soil = domain.SourceStatus{Provider: "fixture", Available: true, Origin: domain.OriginFixture}
	}
	rec.Partial = rec.ComputePartial()
	return rec
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
