package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("LoadConfig() without a file did not match defaults; diff:\n%s", diff)
	}
	if cfg.MaxConnections != 12 {
		t.Errorf("MaxConnections want = 12, got = %d", cfg.MaxConnections)
	}
	if cfg.Handshake.Timeout != time.Second {
		t.Errorf("Handshake.Timeout want = 1s, got = %v", cfg.Handshake.Timeout)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	contents := `
port: 5555
lan_mode: true
handshake:
  timeout: 250ms
game:
  frame_width: 1024
  invader_rows: 3
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0644); err != nil {
		t.Fatalf("error writing config file: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.Port != 5555 || !cfg.LANMode {
		t.Errorf("top level options not loaded: port = %d, lan_mode = %v", cfg.Port, cfg.LANMode)
	}
	if cfg.Handshake.Timeout != 250*time.Millisecond {
		t.Errorf("Handshake.Timeout want = 250ms, got = %v", cfg.Handshake.Timeout)
	}
	if cfg.Game.FrameWidth != 1024 || cfg.Game.InvaderRows != 3 {
		t.Errorf("game options not loaded: %+v", cfg.Game)
	}
	// Untouched nested keys keep their defaults.
	if cfg.Game.FrameHeight != 600 {
		t.Errorf("Game.FrameHeight want = 600, got = %d", cfg.Game.FrameHeight)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("INVADERS_MATCHMAKER_MAX_TEAM_SIZE", "6")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}
	if cfg.Matchmaker.MaxTeamSize != 6 {
		t.Errorf("Matchmaker.MaxTeamSize want = 6, got = %d", cfg.Matchmaker.MaxTeamSize)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "no connections", mutate: func(c *Config) { c.MaxConnections = 0 }, wantErr: true},
		{name: "no team size", mutate: func(c *Config) { c.Matchmaker.MaxTeamSize = 0 }, wantErr: true},
		{name: "no handshake timeout", mutate: func(c *Config) { c.Handshake.Timeout = 0 }, wantErr: true},
		{name: "frame inside guards", mutate: func(c *Config) { c.Game.FrameWidth = 40 }, wantErr: true},
		{name: "empty invader", mutate: func(c *Config) { c.Game.InvaderWidth = 0 }, wantErr: true},
		{name: "flat shield", mutate: func(c *Config) { c.Game.ShieldHeight = 0 }, wantErr: true},
		{name: "negative bullet height", mutate: func(c *Config) { c.Game.BulletHeight = -4 }, wantErr: true},
		{name: "still player", mutate: func(c *Config) { c.Game.PlayerSpeed = 0 }, wantErr: true},
		{name: "backwards bullets", mutate: func(c *Config) { c.Game.BulletSpeed = -8 }, wantErr: true},
		{name: "no descent", mutate: func(c *Config) { c.Game.InvaderStepY = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() wantErr = %v, error = %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_ListenAddress(t *testing.T) {
	cfg := &Config{Hostname: "127.0.0.1", Port: 12345}

	if got := cfg.ListenAddress(); got != "127.0.0.1:12345" {
		t.Errorf("ListenAddress() want = 127.0.0.1:12345, got = %s", got)
	}
}

func TestIDGenerator_Next(t *testing.T) {
	var g IDGenerator
	seen := make(map[int64]bool)
	last := int64(0)
	for i := 0; i < 100; i++ {
		id := g.Next()
		if seen[id] || id <= last {
			t.Fatalf("Next() returned %d after %d", id, last)
		}
		seen[id] = true
		last = id
	}
}
