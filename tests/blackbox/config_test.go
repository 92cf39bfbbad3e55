//go:build blackbox

package blackbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitValidateShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meanrev.yaml")

	out := run(t, "config", "init", "-o", path)
	if !contains(out, "Created default configuration") {
		t.Fatalf("unexpected init output:\n%s", out)
	}

	out = run(t, "config", "validate", "-f", path)
	if !contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}

	out = run(t, "-c", path, "config", "show")
	for _, want := range []string{"decision_interval: 5m0s", "name: mean_reversion"} {
		if !contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestConfigValidateRejectsUnknownJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("journal:\n  type: mongo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runFail(t, "config", "validate", "-f", path)
	if !contains(out, "journal.type") {
		t.Fatalf("expected journal.type in output, got:\n%s", out)
	}
}
