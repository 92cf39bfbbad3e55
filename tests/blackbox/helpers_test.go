//go:build blackbox

package blackbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func f64(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

// writeBarsCSV writes n five minute bars starting at a Tuesday morning
// in Chicago, with closes from closeFn.
func writeBarsCSV(t *testing.T, path string, n int, closeFn func(i int) float64) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	start := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	fmt.Fprintln(f, "time,open,high,low,close,volume")
	prev := closeFn(0)
	for i := 0; i < n; i++ {
		c := closeFn(i)
		hi, lo := max(prev, c)+0.75, min(prev, c)-0.75
		fmt.Fprintf(f, "%s,%s,%s,%s,%s,100\n",
			start.Add(time.Duration(i)*5*time.Minute).Format(time.RFC3339),
			f64(prev), f64(hi), f64(lo), f64(c))
		prev = c
	}
}

// writeConfig writes a config that journals to dbPath.
func writeConfig(t *testing.T, path, dbPath, extra string) {
	t.Helper()

	doc := fmt.Sprintf("journal:\n  type: sqlite\n  db_path: %s\nlog:\n  level: error\n%s", dbPath, extra)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}
