package cli

import (
	"fmt"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/spf13/cobra"
)

// Scenarios understood by MockForecast.
var scenarios = []string{"good", "caution", "rain", "wind", "clearing"}

// ForecastCmd returns the forecast command group.
func ForecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast fixtures",
	}
	cmd.AddCommand(forecastMockCmd())
	return cmd
}

func forecastMockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Print a synthetic hourly forecast as JSON",
		Long: `Print a synthetic hourly forecast for one of the scenarios
good, caution, rain, wind or clearing. The output is accepted by
'sprayctl classify --file'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scenario, _ := cmd.Flags().GetString("scenario")
			hours, _ := cmd.Flags().GetInt("hours")
			startText, _ := cmd.Flags().GetString("start")

			start := time.Now().UTC().Truncate(time.Hour)
			if startText != "" {
				t, err := time.Parse(time.RFC3339, startText)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				start = t.UTC()
			}

			samples, err := MockForecast(scenario, start, hours)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), samples)
		},
	}
	cmd.Flags().String("scenario", "good", "good, caution, rain, wind or clearing")
	cmd.Flags().Int("hours", 24, "number of hourly samples")
	cmd.Flags().String("start", "", "first sample time (RFC3339, default: current hour)")
	return cmd
}

// MockForecast builds a deterministic hourly series starting at start.
func MockForecast(scenario string, start time.Time, hours int) ([]domain.HourlySample, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours must be positive, got %d", hours)
	}

	var shape func(i int) (rain, wind float64)
	switch scenario {
	case "good":
		shape = func(i int) (float64, float64) { return 5, 6 + float64(i%3) }
	case "caution":
		shape = func(i int) (float64, float64) { return 25, 8 }
	case "rain":
		shape = func(i int) (float64, float64) {
			if i < 4 {
				return 70, 6
			}
			return 10, 6
		}
	case "wind":
		shape = func(i int) (float64, float64) {
			if i < 6 {
				return 5, 22
			}
			return 5, 8
		}
	case "clearing":
		shape = func(i int) (float64, float64) {
			if i < 3 {
				return 60 - 10*float64(i), 9
			}
			return 5, 7
		}
	default:
		return nil, fmt.Errorf("unknown scenario %q (want one of %v)", scenario, scenarios)
	}

	out := make([]domain.HourlySample, hours)
	for i := range out {
		rain, wind := shape(i)
		out[i] = domain.HourlySample{
			Time:                   start.Add(time.Duration(i) * time.Hour),
			RainProbabilityPercent: rain,
			WindSpeedKph:           wind,
			TemperatureC:           22 + float64(i%12),
		}
	}
	return out, nil
}
