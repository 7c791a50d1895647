package config

import (
	"os"
	"regexp"
	"testing"
)

func TestREADMEConfigDefaultsStayInSync(t *testing.T) {
	data, err := os.ReadFile("../../README.md")
	if err != nil {
		t.Fatalf("read README: %v", err)
	}
	readme := string(data)

	assertDocDefault(t, readme, "detector.sigma_threshold", "2.0")
	assertDocDefault(t, readme, "detector.min_absolute_move", "0.03")
	assertDocDefault(t, readme, "detector.cooldown_ms", "30000")
	assertDocDefault(t, readme, "ladder.levels", "3")
	assertDocDefault(t, readme, "ladder.max_cycles_per_market", "2")
}

func assertDocDefault(t *testing.T, readme, field, want string) {
	t.Helper()
	pattern := "\\| `" + regexp.QuoteMeta(field) + "` \\| [^\\n]*? \\| `([^`]+)` \\|"
	re := regexp.MustCompile(pattern)
	m := re.FindStringSubmatch(readme)
	if len(m) != 2 {
		t.Fatalf("field %q not found in README config table", field)
	}
	if m[1] != want {
		t.Fatalf("README default mismatch for %s: want %s got %s", field, want, m[1])
	}
}
