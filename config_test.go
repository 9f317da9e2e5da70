package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyJSONOverlay(t *testing.T) {
	cfg := defaultConfig()
	var overlay map[string]json.RawMessage
	raw := `{"addr": ":9090", "voting": "90s", "night_action": 60, "all_dead_policy": "werewolves", "submit_burst": 3}`
	if err := json.Unmarshal([]byte(raw), &overlay); err != nil {
		t.Fatal(err)
	}
	applyJSONOverlay(&cfg, overlay)

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.Voting != 90*time.Second {
		t.Errorf("Voting = %s, want 90s", cfg.Voting)
	}
	if cfg.NightAction != 60*time.Second {
		t.Errorf("NightAction = %s, want 60s from a plain number", cfg.NightAction)
	}
	if cfg.AllDeadPolicy != "werewolves" {
		t.Errorf("AllDeadPolicy = %q", cfg.AllDeadPolicy)
	}
	if cfg.SubmitBurst != 3 {
		t.Errorf("SubmitBurst = %d, want 3", cfg.SubmitBurst)
	}
	// Keys absent from the file keep their earlier value
	if cfg.MorningDiscussion != defaultConfig().MorningDiscussion {
		t.Errorf("MorningDiscussion changed to %s", cfg.MorningDiscussion)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("ADDR=:7000\nVOTING=10s\n"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte(`{"voting": "20s"}`), 0644); err != nil {
		t.Fatal(err)
	}
	// t.Setenv restores them afterwards; godotenv only fills unset variables
	for _, key := range []string{"ADDR", "VOTING"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("SUBMIT_RATE", "2.5")

	cfg := loadConfig(configPath, dotenv)

	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want the .env value", cfg.Addr)
	}
	if cfg.Voting != 20*time.Second {
		t.Errorf("Voting = %s, want the config file to win over .env", cfg.Voting)
	}
	if cfg.SubmitRate != 2.5 {
		t.Errorf("SubmitRate = %v, want 2.5 from the environment", cfg.SubmitRate)
	}
}

func TestFlagsOnlyOverrideWhatWasPassed(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fv := registerFlags(fs)
	if err := fs.Parse([]string{"-addr", ":5555", "-witch-action", "5s"}); err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig()
	cfg.DB = "file:kept.db"
	fv.applyTo(&cfg)

	if cfg.Addr != ":5555" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.WitchAction != 5*time.Second {
		t.Errorf("WitchAction = %s", cfg.WitchAction)
	}
	if cfg.DB != "file:kept.db" {
		t.Errorf("DB = %q, an unset flag must not override", cfg.DB)
	}
}

func TestValidate(t *testing.T) {
	if err := defaultConfig().validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []func(*AppConfig){
		func(c *AppConfig) { c.AllDeadPolicy = "everyone" },
		func(c *AppConfig) { c.SubmitRate = 0 },
		func(c *AppConfig) { c.SubmitBurst = -1 },
		func(c *AppConfig) { c.Voting = 0 },
	}
	for i, mutate := range bad {
		cfg := defaultConfig()
		mutate(&cfg)
		if err := cfg.validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
