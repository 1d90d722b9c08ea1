package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaults verifies the zero-config baseline is usable.
func TestDefaults(t *testing.T) {
	c := Default()
	if c.Port != "3000" || c.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.Offline.QueueCapacity != 100 {
		t.Errorf("expected offline capacity 100, got %d", c.Offline.QueueCapacity)
	}
	if c.Session.MaxGMStations != 5 {
		t.Errorf("expected gm cap 5, got %d", c.Session.MaxGMStations)
	}
	if c.Video.PollInterval != time.Second {
		t.Errorf("expected 1s poll interval, got %s", c.Video.PollInterval)
	}
}

// TestLoadYAMLOverDefaults verifies file values override defaults while
// untouched fields keep theirs.
func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "4100"
player:
  baseUrl: http://localhost:8200
video:
  gracePolls: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Port != "4100" {
		t.Errorf("expected port 4100, got %s", c.Port)
	}
	if c.Player.BaseURL != "http://localhost:8200" {
		t.Errorf("player base url not loaded: %s", c.Player.BaseURL)
	}
	if c.Video.GracePolls != 5 {
		t.Errorf("expected 5 grace polls, got %d", c.Video.GracePolls)
	}
	if c.Session.MaxGMStations != 5 {
		t.Errorf("untouched default changed: %d", c.Session.MaxGMStations)
	}
}

// TestEnvOverridesFile verifies the precedence order env > file >
// default.
func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`port: "4100"`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ORCHESTRATOR_PORT", "5000")
	t.Setenv("MAX_GM_STATIONS", "2")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Port != "5000" {
		t.Errorf("env did not win over file: %s", c.Port)
	}
	if c.Session.MaxGMStations != 2 {
		t.Errorf("env int override lost: %d", c.Session.MaxGMStations)
	}
}

// TestLoadMissingFile verifies a bad path errors instead of silently
// running on defaults.
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
