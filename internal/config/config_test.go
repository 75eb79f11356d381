package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("MIM_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gmail.WindowHours != 24 || cfg.Gmail.MaxResults != 50 {
		t.Fatalf("gmail defaults = %+v", cfg.Gmail)
	}
	if cfg.Agents.StaleDays != 30 || cfg.Agents.MinPlayersHighValue != 300 || cfg.Agents.MaxEnrichments != 20 {
		t.Fatalf("agent defaults = %+v", cfg.Agents)
	}
	if cfg.Watch.DebounceSeconds != 5 {
		t.Fatalf("watch defaults = %+v", cfg.Watch)
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MIM_CONFIG_DIR", dir)

	yaml := `
self_emails:
  - me@mim.team
anthropic:
  model: claude-sonnet-4-5-20250929
gmail:
  account: ops@mim.team
  window_hours: 48
classification:
  silo_preference: [soccer_orgs, investors, contacts]
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.SelfEmails) != 1 || cfg.SelfEmails[0] != "me@mim.team" {
		t.Fatalf("self emails = %v", cfg.SelfEmails)
	}
	if cfg.Gmail.Account != "ops@mim.team" || cfg.Gmail.WindowHours != 48 {
		t.Fatalf("gmail = %+v", cfg.Gmail)
	}
	// Unset values still get defaults.
	if cfg.Gmail.MaxResults != 50 {
		t.Fatalf("max results = %d", cfg.Gmail.MaxResults)
	}
	if len(cfg.Classification.SiloPreference) != 3 || cfg.Classification.SiloPreference[0] != "soccer_orgs" {
		t.Fatalf("silo preference = %v", cfg.Classification.SiloPreference)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("MIM_CONFIG_DIR", t.TempDir())

	cfg := &Config{Gmail: GmailConfig{Account: "ops@mim.team"}}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Gmail.Account != "ops@mim.team" {
		t.Fatalf("account = %q", loaded.Gmail.Account)
	}
}
