package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaults tests that Load without a config file or environment
// overrides returns the documented defaults.
func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	settings, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if settings.OrganizeLibrary {
		t.Error("expected ORGANIZE_LIBRARY to default to false")
	}
	if settings.OrganizeTemplate != "{author}/{title}" {
		t.Errorf("unexpected default template: %q", settings.OrganizeTemplate)
	}
	if settings.WorkerPollInterval != time.Second {
		t.Errorf("unexpected default poll interval: %v", settings.WorkerPollInterval)
	}
}

// TestLoadEnvironmentOverride tests that KOBOLD_-prefixed environment
// variables override defaults.
func TestLoadEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv("KOBOLD_ORGANIZE_LIBRARY", "true")
	t.Setenv("KOBOLD_ORGANIZE_TEMPLATE", "{author}/{series}/{title}")

	settings, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !settings.OrganizeLibrary {
		t.Error("expected ORGANIZE_LIBRARY to be overridden to true")
	}
	if settings.OrganizeTemplate != "{author}/{series}/{title}" {
		t.Errorf("unexpected template: %q", settings.OrganizeTemplate)
	}
}

// TestLoadMissingConfigFileIsNotAnError tests that a non-existent config
// path falls back silently to defaults plus environment.
func TestLoadMissingConfigFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	_, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected missing config file to be tolerated, got: %v", err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}
