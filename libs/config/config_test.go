package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIntAndDuration(t *testing.T) {
	t.Setenv("APPT_TEST_INT", "7")
	t.Setenv("APPT_TEST_DUR", "90m")
	t.Setenv("APPT_TEST_BAD", "x")

	n, err := Int("APPT_TEST_INT", 1)
	if err != nil || n != 7 {
		t.Fatalf("expected 7, got %d (%v)", n, err)
	}
	if n, _ := Int("APPT_TEST_MISSING", 3); n != 3 {
		t.Fatalf("expected fallback 3, got %d", n)
	}
	if _, err := Int("APPT_TEST_BAD", 1); err == nil {
		t.Fatal("expected error for non-integer value")
	}

	d, err := Duration("APPT_TEST_DUR", time.Second)
	if err != nil || d != 90*time.Minute {
		t.Fatalf("expected 90m, got %s (%v)", d, err)
	}
	if _, err := Duration("APPT_TEST_BAD", time.Second); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("APPT_TEST_BOOL", "off")
	if Bool("APPT_TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	if !Bool("APPT_TEST_BOOL_MISSING", true) {
		t.Fatal("expected fallback true")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("APPT_TEST_DOTENV=fromfile\nAPPT_TEST_KEEP=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("APPT_TEST_KEEP", "fromenv")
	t.Cleanup(func() { _ = os.Unsetenv("APPT_TEST_DOTENV") })

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))

	if got := os.Getenv("APPT_TEST_DOTENV"); got != "fromfile" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("APPT_TEST_KEEP"); got != "fromenv" {
		t.Fatalf("expected process env to win, got %q", got)
	}
}
