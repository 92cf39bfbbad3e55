//go:build blackbox

package blackbox

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestBacktest_RecordsRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "meanrev.db")
	barsPath := filepath.Join(dir, "bars.csv")
	cfgPath := filepath.Join(dir, "meanrev.yaml")

	writeBarsCSV(t, barsPath, 400, func(i int) float64 {
		return 5000 + 12*math.Sin(float64(i)/9)
	})
	writeConfig(t, cfgPath, dbPath, "backtest:\n  name: blackbox\n")

	out := run(t, "-c", cfgPath, "backtest", "--data", barsPath)
	for _, want := range []string{"Backtest Result", "Parameters:    blackbox"} {
		if !contains(out, want) {
			t.Fatalf("backtest output missing %q:\n%s", want, out)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var runs int
	if err := db.QueryRow(`SELECT COUNT(*) FROM backtest_runs WHERE name = 'blackbox'`).Scan(&runs); err != nil {
		t.Fatal(err)
	}
	if runs != 1 {
		t.Fatalf("expected 1 backtest run, got %d", runs)
	}

	var trades, runTrades int
	if err := db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&trades); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT trades FROM backtest_runs WHERE name = 'blackbox'`).Scan(&runTrades); err != nil {
		t.Fatal(err)
	}
	if trades < runTrades {
		t.Fatalf("journal has %d trades, run summary counts %d positions", trades, runTrades)
	}

	out = run(t, "-c", cfgPath, "journal", "runs")
	if !contains(out, "blackbox") {
		t.Fatalf("journal runs missing the run:\n%s", out)
	}
}

func TestBacktest_MissingData(t *testing.T) {
	out := runFail(t, "backtest")
	if !contains(out, "--data") {
		t.Fatalf("expected --data hint, got:\n%s", out)
	}
}
