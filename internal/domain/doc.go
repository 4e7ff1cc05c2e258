// Package domain models water-tower sites and the records produced when
// their environmental features are extracted and scored.
//
// # Sites
//
// A site is a GeoJSON Polygon or MultiPolygon in WGS84 [lon, lat] order.
// Its centroid is the area-weighted planar centroid of the rings, with holes
// subtracted, and is the point sampled by every non-imagery source:
//
//	rings:     exterior first, then holes; each closed, at least 4 positions
//	centroid:  must fall inside the configured Bounds (Kenya by default:
//	           lat -5..5, lon 33..42); never clamped
//	area:      spherical area of the loops, reported in hectares
//
// # Feature Records
//
// One record per (site, window) extraction. Every measured field is a
// pointer; nil means the source could not supply it. Units:
//
//	ndvi_mean, ndvi_std         unitless, cloud/cirrus-masked composite
//	rainfall_mean_mm_per_day    climatological daily mean
//	rainfall_total_mm           mean × inclusive day count of the window
//	tmin_c, tmax_c              climatological 2m air temperature
//	sand, silt, clay            percent (provider reports tenths of percent)
//	ph                          pH units (provider reports pH × 10)
//	soc, bulk_density           provider units, unconverted
//
// A record is partial when any of the four pillars (NDVI, rainfall,
// temperature, soil) is missing a value or was served from a bundled
// fixture. Elevation is optional site metadata and never makes a record
// partial.
//
// # Predictions
//
// A prediction references exactly one feature record and copies its partial
// flag. The Path field records which scorer produced it, see [ScoringPath].
//
// # IDs and timestamps
//
// Record IDs are random UUIDs: every extraction is a new record. CreatedAt
// comes from the package clock, see [SetClock].
package domain
