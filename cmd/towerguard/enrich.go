package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:   "extract <site-id>",
		Short: "Extract and store the feature record of one site without scoring it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				w, err := window.resolve(time.Now(), a.cfg.EnrichWindowDays)
				if err != nil {
					return err
				}
				rec, err := a.pipeline.ExtractSite(cmd.Context(), args[0], w)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	window.register(cmd, true)
	return cmd
}

func newScoreCmd() *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:   "score <site-id>",
		Short: "Extract, score and store one site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				w, err := window.resolve(time.Now(), a.cfg.EnrichWindowDays)
				if err != nil {
					return err
				}
				res, err := a.pipeline.EnrichSite(cmd.Context(), args[0], w)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	window.register(cmd, true)
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Score every site of every water tower once",
		Long:  "Scores every site of every water tower once. Without --start and --end the trailing ENRICH_WINDOW_DAYS window is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				w, err := window.resolve(time.Now(), a.cfg.EnrichWindowDays)
				if err != nil {
					return err
				}
				summaries, err := a.pipeline.Backfill(cmd.Context(), w)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summaries)
			})
		},
	}
	window.register(cmd, false)
	return cmd
}
