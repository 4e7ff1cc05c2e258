package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/towerguard/site-health/internal/domain"
)

// ErrNotFound is returned when a feature record or prediction does not exist.
var ErrNotFound = errors.New("record not found")

type featureRow struct {
	ID                   string   `db:"id"`
	SiteID               string   `db:"site_id"`
	WindowStart          string   `db:"window_start"`
	WindowEnd            string   `db:"window_end"`
	Days                 int      `db:"days"`
	Lat                  float64  `db:"lat"`
	Lon                  float64  `db:"lon"`
	NDVIMean             *float64 `db:"ndvi_mean"`
	NDVIStd              *float64 `db:"ndvi_std"`
	RainfallTotalMM      *float64 `db:"rainfall_total_mm"`
	RainfallMeanMMPerDay *float64 `db:"rainfall_mean_mm_per_day"`
	TminC                *float64 `db:"tmin_c"`
	TmaxC                *float64 `db:"tmax_c"`
	SOC                  *float64 `db:"soc"`
	Sand                 *float64 `db:"sand"`
	Clay                 *float64 `db:"clay"`
	Silt                 *float64 `db:"silt"`
	PH                   *float64 `db:"ph"`
	BulkDensity          *float64 `db:"bulk_density"`
	ElevationM           *float64 `db:"elevation_m"`
	SourceBreakdown      string   `db:"source_breakdown"`
	Partial              bool     `db:"partial"`
	CreatedAt            string   `db:"created_at"`
}

func newFeatureRow(rec domain.FeatureRecord) (featureRow, error) {
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return featureRow{}, fmt.Errorf("encode source breakdown: %w", err)
	}
	return featureRow{
		ID:                   rec.ID,
		SiteID:               rec.SiteID,
		WindowStart:          rec.WindowStart.UTC().Format(timeLayout),
		WindowEnd:            rec.WindowEnd.UTC().Format(timeLayout),
		Days:                 rec.Days,
		Lat:                  rec.Lat,
		Lon:                  rec.Lon,
		NDVIMean:             rec.NDVIMean,
		NDVIStd:              rec.NDVIStd,
		RainfallTotalMM:      rec.RainfallTotalMM,
		RainfallMeanMMPerDay: rec.RainfallMeanMMPerDay,
		TminC:                rec.TminC,
		TmaxC:                rec.TmaxC,
		SOC:                  rec.SOC,
		Sand:                 rec.Sand,
		Clay:                 rec.Clay,
		Silt:                 rec.Silt,
		PH:                   rec.PH,
		BulkDensity:          rec.BulkDensity,
		ElevationM:           rec.ElevationM,
		SourceBreakdown:      string(sources),
		Partial:              rec.Partial,
		CreatedAt:            rec.CreatedAt.UTC().Format(timeLayout),
	}, nil
}

func (r featureRow) toDomain() (domain.FeatureRecord, error) {
	rec := domain.FeatureRecord{
		ID:                   r.ID,
		SiteID:               r.SiteID,
		Days:                 r.Days,
		Lat:                  r.Lat,
		Lon:                  r.Lon,
		NDVIMean:             r.NDVIMean,
		NDVIStd:              r.NDVIStd,
		RainfallTotalMM:      r.RainfallTotalMM,
		RainfallMeanMMPerDay: r.RainfallMeanMMPerDay,
		TminC:                r.TminC,
		TmaxC:                r.TmaxC,
		SOC:                  r.SOC,
		Sand:                 r.Sand,
		Clay:                 r.Clay,
		Silt:                 r.Silt,
		PH:                   r.PH,
		BulkDensity:          r.BulkDensity,
		ElevationM:           r.ElevationM,
		Partial:              r.Partial,
	}
	var err error
	if rec.WindowStart, err = time.Parse(timeLayout, r.WindowStart); err != nil {
		return rec, fmt.Errorf("parse window_start: %w", err)
	}
	if rec.WindowEnd, err = time.Parse(timeLayout, r.WindowEnd); err != nil {
		return rec, fmt.Errorf("parse window_end: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, r.CreatedAt); err != nil {
		return rec, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(r.SourceBreakdown), &rec.Sources); err != nil {
		return rec, fmt.Errorf("decode source breakdown: %w", err)
	}
	return rec, nil
}

// SaveFeatures inserts a feature record. Saving the same id twice fails.
func (s *Store) SaveFeatures(ctx context.Context, rec domain.FeatureRecord) error {
	row, err := newFeatureRow(rec)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO site_features (
			id, site_id, window_start, window_end, days, lat, lon,
			ndvi_mean, ndvi_std, rainfall_total_mm, rainfall_mean_mm_per_day,
			tmin_c, tmax_c, soc, sand, clay, silt, ph, bulk_density, elevation_m,
			source_breakdown, partial, created_at
		) VALUES (
			:id, :site_id, :window_start, :window_end, :days, :lat, :lon,
			:ndvi_mean, :ndvi_std, :rainfall_total_mm, :rainfall_mean_mm_per_day,
			:tmin_c, :tmax_c, :soc, :sand, :clay, :silt, :ph, :bulk_density, :elevation_m,
			:source_breakdown, :partial, :created_at
		)`, row)
	if err != nil {
		return fmt.Errorf("insert features %s: %w", rec.ID, err)
	}
	return nil
}

// GetFeatures returns the feature record with id.
func (s *Store) GetFeatures(ctx context.Context, id string) (domain.FeatureRecord, error) {
	var row featureRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM site_features WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeatureRecord{}, fmt.Errorf("features %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("get features %s: %w", id, err)
	}
	return row.toDomain()
}

type predictionRow struct {
	ID           string  `db:"id"`
	SiteID       string  `db:"site_id"`
	FeaturesID   string  `db:"features_id"`
	Score        float64 `db:"score"`
	Category     string  `db:"category"`
	ModelVersion string  `db:"model_version"`
	Path         string  `db:"path"`
	Partial      bool    `db:"partial"`
	Explanation  string  `db:"explanation"`
	CreatedAt    string  `db:"created_at"`
}

func (r predictionRow) toDomain() (domain.Prediction, error) {
	p := domain.Prediction{
		ID:           r.ID,
		SiteID:       r.SiteID,
		FeaturesID:   r.FeaturesID,
		Score:        r.Score,
		Category:     r.Category,
		ModelVersion: r.ModelVersion,
		Path:         domain.ScoringPath(r.Path),
		Partial:      r.Partial,
	}
	var err error
	if p.CreatedAt, err = time.Parse(timeLayout, r.CreatedAt); err != nil {
		return p, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Explanation), &p.Explanation); err != nil {
		return p, fmt.Errorf("decode explanation: %w", err)
	}
	return p, nil
}

// SavePrediction inserts a prediction. Its feature record must already be
// stored.
func (s *Store) SavePrediction(ctx context.Context, p domain.Prediction) error {
	exp, err := json.Marshal(p.Explanation)
	if err != nil {
		return fmt.Errorf("encode explanation: %w", err)
	}
	row := predictionRow{
		ID:           p.ID,
		SiteID:       p.SiteID,
		FeaturesID:   p.FeaturesID,
		Score:        p.Score,
		Category:     p.Category,
		ModelVersion: p.ModelVersion,
		Path:         string(p.Path),
		Partial:      p.Partial,
		Explanation:  string(exp),
		CreatedAt:    p.CreatedAt.UTC().Format(timeLayout),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO site_predictions (
			id, site_id, features_id, score, category, model_version, path, partial, explanation, created_at
		) VALUES (
			:id, :site_id, :features_id, :score, :category, :model_version, :path, :partial, :explanation, :created_at
		)`, row)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", p.ID, err)
	}
	return nil
}

// LatestPrediction returns the most recent prediction for a site.
func (s *Store) LatestPrediction(ctx context.Context, siteID string) (domain.Prediction, error) {
	var row predictionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM site_predictions WHERE site_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Prediction{}, fmt.Errorf("prediction for site %s: %w", siteID, ErrNotFound)
	}
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("latest prediction for %s: %w", siteID, err)
	}
	return row.toDomain()
}
