package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/spf13/cobra"
)

// ClassifyCmd returns the classify command.
func ClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a forecast file into a spray advisory",
		Long: `Read a JSON array of hourly samples and print the spray advisory.

Usage:
  sprayctl classify --file hours.json
  sprayctl forecast mock --scenario rain | sprayctl classify --file -`,
		RunE: runClassify,
	}
	cmd.Flags().String("file", "", "forecast JSON file, or - for stdin")
	cmd.Flags().String("tz", "Asia/Kolkata", "timezone for the spray window text")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	tz, _ := cmd.Flags().GetString("tz")

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid --tz: %w", err)
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	samples, err := readSamples(r)
	if err != nil {
		return err
	}

	adv := domain.ClassifySprayWindow(samples)
	rec := domain.Recommend(adv, loc)
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), map[string]any{"advisory": adv, "recommendation": rec})
	}
	printAdvisory(cmd.OutOrStdout(), adv, rec)
	return nil
}

// readSamples decodes and orders a forecast fixture.
func readSamples(r io.Reader) ([]domain.HourlySample, error) {
	var samples []domain.HourlySample
	if err := json.NewDecoder(r).Decode(&samples); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	for i, s := range samples {
		if s.Time.IsZero() {
			return nil, fmt.Errorf("sample %d: time is required", i)
		}
		if s.RainProbabilityPercent < 0 || s.RainProbabilityPercent > 100 {
			return nil, fmt.Errorf("sample %d: rain probability %v out of range", i, s.RainProbabilityPercent)
		}
		if s.WindSpeedKph < 0 {
			return nil, fmt.Errorf("sample %d: negative wind speed", i)
		}
	}
	slices.SortStableFunc(samples, func(a, b domain.HourlySample) int { return a.Time.Compare(b.Time) })
	return samples, nil
}
