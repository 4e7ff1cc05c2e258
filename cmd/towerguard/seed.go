package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/towerguard/site-health/internal/sites"
)

type seedReport struct {
	Towers   int      `json:"towers"`
	Sites    int      `json:"sites"`
	Rejected []string `json:"rejected,omitempty"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <sites.geojson>",
		Short: "Load water towers and site boundaries from a GeoJSON FeatureCollection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				report, err := seed(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func seed(ctx context.Context, a *app, path string) (seedReport, error) {
	cat, err := sites.LoadFile(path, a.bounds)
	if err != nil {
		return seedReport{}, err
	}

	var report seedReport
	for _, r := range cat.Rejected {
		a.logger.Warn("site rejected", "index", r.Index, "site_id", r.ID, "error", r.Err)
		report.Rejected = append(report.Rejected, r.Error())
	}
	if len(cat.Sites) == 0 {
		return report, fmt.Errorf("no valid sites in %s (%d rejected)", path, len(cat.Rejected))
	}

	for _, t := range cat.Towers {
		if err := a.store.UpsertTower(ctx, t); err != nil {
			return report, err
		}
		report.Towers++
	}
	for _, s := range cat.Sites {
		if err := a.store.UpsertSite(ctx, s); err != nil {
			return report, err
		}
		report.Sites++
	}

	a.logger.Info("sites seeded", "path", path, "towers", report.Towers, "sites", report.Sites, "rejected", len(report.Rejected))
	return report, nil
}
