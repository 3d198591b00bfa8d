// Package cli implements the sprayctl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/couchcryptid/spray-advisory/internal/app"
	"github.com/couchcryptid/spray-advisory/internal/config"
	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	metricsOnce sync.Once
	metrics     *observability.Metrics
)

// openApp builds the core from the environment. Background workers are not
// started; commands call operations directly.
func openApp(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := "error"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = cfg.LogLevel
	}
	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), level, "text")
	metricsOnce.Do(func() { metrics = observability.NewMetrics() })

	a, err := app.New(cmd.Context(), cfg, logger, metrics, app.Overrides{})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("close", "error", err)
		}
	}
	return a, closeFn, nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stateColor(s domain.SprayState) *color.Color {
	switch s {
	case domain.SprayDoNotSpray:
		return color.New(color.FgRed, color.Bold)
	case domain.SprayCaution:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgGreen, color.Bold)
	}
}

func printAdvisory(w io.Writer, adv domain.SprayAdvisory, rec domain.Recommendation) {
	fmt.Fprintln(w, stateColor(adv.State).Sprint(rec.Headline))
	fmt.Fprintf(w, "  %s\n", rec.Reason)
	fmt.Fprintf(w, "  %s\n", rec.Window)
	fmt.Fprintf(w, "  max rain %.0f%%, max wind %.1f km/h\n", adv.MaxRainProbability, adv.MaxWindSpeed)
}

func printRecord(w io.Writer, rec domain.ScanRecord) {
	label := color.New(color.FgCyan).Sprint(rec.Label)
	switch {
	case rec.IsQueued:
		label = color.New(color.FgYellow).Sprint(rec.Label)
	case rec.Label == domain.LabelFailed:
		label = color.New(color.FgRed).Sprint(rec.Label)
	}
	fmt.Fprintf(w, "%s  %s (%.0f%%)\n", rec.ID, label, rec.ConfidencePercent)
	fmt.Fprintf(w, "  image: %s\n", rec.ImagePath)
	for i, step := range rec.AdvisorySteps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}
