package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	unset(t, "GORADAR_FOO", "GORADAR_BAR")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nGORADAR_FOO=alpha\nexport GORADAR_BAR=\"beta gamma\"\nmalformed\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}

	if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("GORADAR_FOO"); got != "alpha" {
		t.Fatalf("GORADAR_FOO=%q, want alpha", got)
	}
	if got := os.Getenv("GORADAR_BAR"); got != "beta gamma" {
		t.Fatalf("GORADAR_BAR=%q, want beta gamma", got)
	}
}

// Later files override earlier ones; the process environment wins over both.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	unset(t, "GORADAR_K")
	t.Setenv("GORADAR_PRESET", "process")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("GORADAR_K=first\nGORADAR_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("GORADAR_K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}

	if err := LoadEnvFiles(a, b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("GORADAR_K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
	if got := os.Getenv("GORADAR_PRESET"); got != "process" {
		t.Fatalf("process env overwritten: got %q", got)
	}
}

// unset clears keys for the test and restores them afterwards.
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unsetenv %s: %v", k, err)
		}
	}
}
