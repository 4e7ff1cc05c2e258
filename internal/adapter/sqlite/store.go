// Package sqlite persists water towers, sites, feature records and
// predictions in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/towerguard/site-health/internal/domain"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the site store and the record sinks over SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name identifies the store in logs and sink metrics.
func (s *Store) Name() string { return "sqlite" }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertTower inserts or renames a water tower.
func (s *Store) UpsertTower(ctx context.Context, t domain.WaterTower) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO water_towers (id, name) VALUES (:id, :name)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`, t)
	if err != nil {
		return fmt.Errorf("upsert tower %s: %w", t.ID, err)
	}
	return nil
}

// ListTowers returns every water tower ordered by id.
func (s *Store) ListTowers(ctx context.Context) ([]domain.WaterTower, error) {
	var towers []domain.WaterTower
	if err := s.db.SelectContext(ctx, &towers, `SELECT id, name FROM water_towers ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list towers: %w", err)
	}
	return towers, nil
}

type siteRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	WaterTowerID sql.NullString `db:"water_tower_id"`
	Geometry     string         `db:"geometry"`
	Lat          float64        `db:"lat"`
	Lon          float64        `db:"lon"`
	AreaHa       float64        `db:"area_ha"`
	ElevationM   *float64       `db:"elevation_m"`
}

func (r siteRow) toDomain() (domain.Site, error) {
	var geom domain.Geometry
	if err := json.Unmarshal([]byte(r.Geometry), &geom); err != nil {
		return domain.Site{}, fmt.Errorf("decode geometry of site %s: %w", r.ID, err)
	}
	return domain.Site{
		ID:           r.ID,
		Name:         r.Name,
		WaterTowerID: r.WaterTowerID.String,
		Geometry:     geom,
		Lat:          r.Lat,
		Lon:          r.Lon,
		AreaHa:       r.AreaHa,
		ElevationM:   r.ElevationM,
	}, nil
}

// UpsertSite inserts or replaces a site's boundary and metadata.
func (s *Store) UpsertSite(ctx context.Context, site domain.Site) error {
	geom, err := json.Marshal(site.Geometry)
	if err != nil {
		return fmt.Errorf("encode geometry of site %s: %w", site.ID, err)
	}
	row := siteRow{
		ID:           site.ID,
		Name:         site.Name,
		WaterTowerID: sql.NullString{String: site.WaterTowerID, Valid: site.WaterTowerID != ""},
		Geometry:     string(geom),
		Lat:          site.Lat,
		Lon:          site.Lon,
		AreaHa:       site.AreaHa,
		ElevationM:   site.ElevationM,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO sites (id, name, water_tower_id, geometry, lat, lon, area_ha, elevation_m)
		VALUES (:id, :name, :water_tower_id, :geometry, :lat, :lon, :area_ha, :elevation_m)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			water_tower_id = excluded.water_tower_id,
			geometry = excluded.geometry,
			lat = excluded.lat,
			lon = excluded.lon,
			area_ha = excluded.area_ha,
			elevation_m = excluded.elevation_m`, row)
	if err != nil {
		return fmt.Errorf("upsert site %s: %w", site.ID, err)
	}
	return nil
}

// GetSite returns the site with id. An unknown id is a validation error
// wrapping domain.ErrSiteNotFound.
func (s *Store) GetSite(ctx context.Context, id string) (domain.Site, error) {
	var row siteRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM sites WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Site{}, domain.SiteNotFound(id)
	}
	if err != nil {
		return domain.Site{}, fmt.Errorf("get site %s: %w", id, err)
	}
	return row.toDomain()
}

// ListSitesByTower returns the sites of a water tower ordered by id.
func (s *Store) ListSitesByTower(ctx context.Context, towerID string) ([]domain.Site, error) {
	var rows []siteRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sites WHERE water_tower_id = ? ORDER BY id`, towerID); err != nil {
		return nil, fmt.Errorf("list sites of tower %s: %w", towerID, err)
	}
	sites := make([]domain.Site, 0, len(rows))
	for _, r := range rows {
		site, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}
