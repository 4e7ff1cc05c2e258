package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/towerguard/site-health/internal/config"
	"github.com/towerguard/site-health/internal/domain"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "towerguard",
		Short:        "Site health scoring for Kenya's water towers",
		Long:         "Extracts vegetation, rainfall, temperature and soil features for restoration sites and scores their ecological health.",
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newSeedCmd(),
		newExtractCmd(),
		newScoreCmd(),
		newBackfillCmd(),
		newShowCmd(),
	)
	return root
}

// withApp loads configuration, wires the app and runs fn against it.
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// windowFlags holds the --start and --end flags shared by commands that
// take a date window.
type windowFlags struct {
	start string
	end   string
}

func (w *windowFlags) register(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&w.start, "start", "", "first day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&w.end, "end", "", "last day of the window (YYYY-MM-DD)")
	cmd.MarkFlagsRequiredTogether("start", "end")
	if required {
		_ = cmd.MarkFlagRequired("start")
		_ = cmd.MarkFlagRequired("end")
	}
}

// resolve parses the window, or returns the trailing window of days ending
// today when neither flag was given.
func (w *windowFlags) resolve(now time.Time, days int) (domain.DateRange, error) {
	if w.start == "" && w.end == "" {
		return domain.TrailingWindow(now, days)
	}
	return domain.ParseDateRange(w.start, w.end)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
