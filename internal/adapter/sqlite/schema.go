package sqlite

// schema is applied on every Open. Feature and prediction rows are insert
// only; a new extraction adds a row and never rewrites an old one.
const schema = `
CREATE TABLE IF NOT EXISTS water_towers (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	water_tower_id TEXT REFERENCES water_towers(id),
	geometry       TEXT NOT NULL,
	lat            REAL NOT NULL,
	lon            REAL NOT NULL,
	area_ha        REAL NOT NULL,
	elevation_m    REAL
);

CREATE INDEX IF NOT EXISTS sites_tower_idx ON sites (water_tower_id);

CREATE TABLE IF NOT EXISTS site_features (
	id                       TEXT PRIMARY KEY,
	site_id                  TEXT NOT NULL REFERENCES sites(id),
	window_start             TEXT NOT NULL,
	window_end               TEXT NOT NULL,
	days                     INTEGER NOT NULL,
	lat                      REAL NOT NULL,
	lon                      REAL NOT NULL,
	ndvi_mean                REAL,
	ndvi_std                 REAL,
	rainfall_total_mm        REAL,
	rainfall_mean_mm_per_day REAL,
	tmin_c                   REAL,
	tmax_c                   REAL,
	soc                      REAL,
	sand                     REAL,
	clay                     REAL,
	silt                     REAL,
	ph                       REAL,
	bulk_density             REAL,
	elevation_m              REAL,
	source_breakdown         TEXT NOT NULL,
	partial                  INTEGER NOT NULL,
	created_at               TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS site_features_site_idx ON site_features (site_id, created_at);

CREATE TABLE IF NOT EXISTS site_predictions (
	id            TEXT PRIMARY KEY,
	site_id       TEXT NOT NULL REFERENCES sites(id),
	features_id   TEXT NOT NULL REFERENCES site_features(id),
	score         REAL NOT NULL,
	category      TEXT NOT NULL,
	model_version TEXT NOT NULL,
	path          TEXT NOT NULL,
	partial       INTEGER NOT NULL,
	explanation   TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS site_predictions_site_idx ON site_predictions (site_id, created_at);
`
