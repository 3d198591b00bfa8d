package cli_test

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/cli"
	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// useTempStore points the CLI at a fresh SQLite file.
func useTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "advisory.db"))
	t.Setenv("CONNECTIVITY_PROBE_URL", "off")
}

var start = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func TestMockForecast_Scenarios(t *testing.T) {
	tests := []struct {
		scenario string
		state    domain.SprayState
		reason   domain.ReasonCode
		window   int // hour index of the first good sample, -1 for none
	}{
		{"good", domain.SprayGood, domain.ReasonGood, 0},
		{"caution", domain.SprayCaution, domain.ReasonCaution, -1},
		{"rain", domain.SprayDoNotSpray, domain.ReasonRain, 4},
		{"wind", domain.SprayDoNotSpray, domain.ReasonWind, 6},
		{"clearing", domain.SprayDoNotSpray, domain.ReasonRain, 3},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			samples, err := cli.MockForecast(tt.scenario, start, domain.NearTermHours)
			require.NoError(t, err)
			require.Len(t, samples, domain.NearTermHours)
			assert.Equal(t, start.Add(11*time.Hour), samples[11].Time)

			adv := domain.ClassifySprayWindow(samples)
			assert.Equal(t, tt.state, adv.State)
			assert.Equal(t, tt.reason, adv.Reason)
			if tt.window < 0 {
				assert.Nil(t, adv.NextGoodWindowStart)
				return
			}
			require.NotNil(t, adv.NextGoodWindowStart)
			assert.Equal(t, start.Add(time.Duration(tt.window)*time.Hour), *adv.NextGoodWindowStart)
		})
	}
}

func TestMockForecast_RejectsBadInput(t *testing.T) {
	_, err := cli.MockForecast("hail", start, 12)
	require.Error(t, err)
	_, err = cli.MockForecast("good", start, 0)
	require.Error(t, err)
}

func TestForecastMockPipesIntoClassify(t *testing.T) {
	fixture, err := run(t, nil, "forecast", "mock", "--scenario", "wind", "--hours", "12", "--start", "2025-06-10T00:00:00Z")
	require.NoError(t, err)

	out, err := run(t, strings.NewReader(fixture), "classify", "--file", "-", "--json")
	require.NoError(t, err)

	var got struct {
		Advisory       domain.SprayAdvisory  `json:"advisory"`
		Recommendation domain.Recommendation `json:"recommendation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, domain.SprayDoNotSpray, got.Advisory.State)
	assert.Equal(t, domain.ReasonWind, got.Advisory.Reason)
	assert.Equal(t, "Don't spray", got.Recommendation.Headline)
	assert.Contains(t, got.Recommendation.Window, "11:30", "window rendered in IST")
}

func TestClassify_TextOutput(t *testing.T) {
	fixture, err := run(t, nil, "forecast", "mock", "--scenario", "good", "--hours", "6", "--start", "2025-06-10T00:00:00Z")
	require.NoError(t, err)

	out, err := run(t, strings.NewReader(fixture), "classify", "--file", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Good to spray")
	assert.Contains(t, out, "max rain 5%")
}

func TestClassify_RejectsInvalidSamples(t *testing.T) {
	_, err := run(t, strings.NewReader(`[{"time":"2025-06-10T00:00:00Z","rainProbabilityPercent":140}]`), "classify", "--file", "-")
	require.ErrorContains(t, err, "out of range")

	_, err = run(t, strings.NewReader(`not json`), "classify", "--file", "-")
	require.ErrorContains(t, err, "decode forecast")
}

func TestFieldCommands(t *testing.T) {
	useTempStore(t)

	_, err := run(t, nil, "field", "set", "--name", "North plot", "--lat", "19.1", "--lng", "74.7", "--place", "Ahmednagar")
	require.NoError(t, err)

	_, err = run(t, nil, "field", "set", "--area", "2.5")
	require.NoError(t, err)

	out, err := run(t, nil, "field", "show", "--json")
	require.NoError(t, err)
	var f domain.Field
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	assert.Equal(t, "North plot", f.Name)
	assert.InDelta(t, 19.1, f.Latitude, 1e-9)
	require.NotNil(t, f.AreaUnit)
	assert.InDelta(t, 2.5, *f.AreaUnit, 1e-9)

	out, err = run(t, nil, "field", "delete")
	require.NoError(t, err)
	assert.Contains(t, out, "field deleted")

	_, err = run(t, nil, "field", "show")
	require.ErrorIs(t, err, domain.ErrNoField)
}

func TestFieldSet_InvalidFirstWrite(t *testing.T) {
	useTempStore(t)

	_, err := run(t, nil, "field", "set", "--name", "No coords")
	require.ErrorIs(t, err, domain.ErrInvalidField)
}

func TestEmptyStoreListings(t *testing.T) {
	useTempStore(t)

	out, err := run(t, nil, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "queue is empty")

	out, err = run(t, nil, "scan", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "no scan recorded")

	out, err = run(t, nil, "scan", "failures")
	require.NoError(t, err)
	assert.Contains(t, out, "no failed submissions")
}
