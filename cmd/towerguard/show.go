package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/towerguard/site-health/internal/adapter/sqlite"
	"github.com/towerguard/site-health/internal/domain"
)

type siteView struct {
	Site       domain.Site           `json:"site"`
	Features   *domain.FeatureRecord `json:"features,omitempty"`
	Prediction *domain.Prediction    `json:"prediction,omitempty"`
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <site-id>",
		Short: "Print a site with its latest prediction and the features it was scored from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				view, err := show(cmd.Context(), a.store, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func show(ctx context.Context, store *sqlite.Store, siteID string) (siteView, error) {
	site, err := store.GetSite(ctx, siteID)
	if err != nil {
		return siteView{}, err
	}
	view := siteView{Site: site}

	pred, err := store.LatestPrediction(ctx, siteID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return siteView{}, err
	}
	view.Prediction = &pred

	rec, err := store.GetFeatures(ctx, pred.FeaturesID)
	if err != nil {
		return siteView{}, fmt.Errorf("features of prediction %s: %w", pred.ID, err)
	}
	view.Features = &rec
	return view, nil
}
