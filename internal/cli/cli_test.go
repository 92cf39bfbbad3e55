package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/meanrev/feed"
	"github.com/rustyeddy/meanrev/market"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeBars(t *testing.T, dir string, n int) string {
	t.Helper()
	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	ticks := make([]market.Tick, n)
	for i := range ticks {
		c := 5000 + float64(i%12) - 6
		ticks[i] = market.Tick{
			Time: start.Add(time.Duration(i) * 5 * time.Minute),
			Open: c, High: c + 1, Low: c - 1, Close: c + 0.25, Volume: 100,
		}
	}
	path := filepath.Join(dir, "bars.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, feed.WriteCSV(f, ticks))
	require.NoError(t, f.Close())
	return path
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "meanrev.yaml")
	doc := fmt.Sprintf("journal:\n  type: sqlite\n  db_path: %s\nbacktest:\n  name: cli-test\n", filepath.Join(dir, "journal.db"))
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "meanrev dev")
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = execute(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "mean_reversion")

	out, err = execute(t, "-c", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "decision_interval: 5m0s")
}

func TestConfigValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("journal:\n  type: mongo\n"), 0o644))
	_, err := execute(t, "config", "validate", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal.type")
}

func TestBacktestRecordsRun(t *testing.T) {
	dir := t.TempDir()
	data := writeBars(t, dir, 300)
	cfg := writeConfig(t, dir)
	org := filepath.Join(dir, "run.org")

	out, err := execute(t, "-c", cfg, "backtest", "--data", data, "--org", org)
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Parameters:    cli-test")
	assert.FileExists(t, org)

	out, err = execute(t, "-c", cfg, "journal", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "cli-test")
	assert.Contains(t, out, "mean_reversion")
}

func TestBacktestNeedsData(t *testing.T) {
	_, err := execute(t, "backtest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--data")
}

func TestParseBound(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		err  bool
	}{
		{"", time.Time{}, false},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), false},
		{"2024-03-05T09:30:00-06:00", time.Date(2024, 3, 5, 15, 30, 0, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseBound("from", tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}
}
