package cli

import (
	"path/filepath"
	"testing"
)

func TestLoadConfigJoinURLFollowsPortOverride(t *testing.T) {
	opts := &globalOptions{
		configPath: filepath.Join(t.TempDir(), "absent.yaml"),
		port:       "8080",
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected port override, got %q", cfg.Server.Port)
	}
	if got := cfg.JoinURL(); got != "http://localhost:8080/join" {
		t.Fatalf("expected join url on overridden port, got %q", got)
	}
}
