// Command towerguard scores the ecological health of restoration sites in
// Kenya's water towers. It runs as a scheduled service or as one-off
// operator commands against the same store.
//
// Usage:
//
//	towerguard seed data/sites.geojson
//	towerguard score mau-01 --start 2024-01-01 --end 2024-03-31
//	towerguard backfill
//	towerguard serve
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
