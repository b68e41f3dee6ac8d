package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeExperienceConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "experience.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultExperienceConfig(t *testing.T) {
	cfg := DefaultExperienceConfig()
	if cfg.BindAddress != "127.0.0.1:8787" {
		t.Fatalf("unexpected default bind address: %q", cfg.BindAddress)
	}
	if cfg.EventQueueMaxSize != 10000 {
		t.Fatalf("unexpected default queue size: %d", cfg.EventQueueMaxSize)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Fatalf("unexpected default heartbeat: %v", cfg.HeartbeatInterval)
	}
}

func TestLoadExperienceConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadExperienceConfig("")
	if err != nil {
		t.Fatalf("LoadExperienceConfig() error = %v", err)
	}
	if cfg != DefaultExperienceConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadExperienceConfigOverridesAndDerivesPaths(t *testing.T) {
	path := writeExperienceConfig(t, `
runtime_home: /tmp/nexus-runtime
bind_address: 0.0.0.0:9000
api_key: secret-key
event_queue_max_size: 500
`)

	cfg, err := LoadExperienceConfig(path)
	if err != nil {
		t.Fatalf("LoadExperienceConfig() error = %v", err)
	}
	if cfg.RuntimeHome != "/tmp/nexus-runtime" {
		t.Fatalf("unexpected runtime home: %q", cfg.RuntimeHome)
	}
	if cfg.BindAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected bind address: %q", cfg.BindAddress)
	}
	if cfg.APIKey != "secret-key" {
		t.Fatalf("unexpected api key: %q", cfg.APIKey)
	}
	if cfg.EventQueueMaxSize != 500 {
		t.Fatalf("unexpected queue size: %d", cfg.EventQueueMaxSize)
	}
	if cfg.VoiceSessionsRoot != "/tmp/nexus-runtime/voice-sessions" {
		t.Fatalf("expected derived voice sessions root, got %q", cfg.VoiceSessionsRoot)
	}
	if cfg.DiscoveryIndexPath != "/tmp/nexus-runtime/discovery-index.db" {
		t.Fatalf("expected derived discovery index path, got %q", cfg.DiscoveryIndexPath)
	}
	// Defaults not present in the file survive.
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Fatalf("expected default heartbeat to survive, got %v", cfg.HeartbeatInterval)
	}
}

func TestLoadExperienceConfigExplicitPathsNotOverridden(t *testing.T) {
	path := writeExperienceConfig(t, `
runtime_home: /tmp/nexus-runtime
voice_sessions_root: /tmp/custom-voice
discovery_index_path: /tmp/custom-index.db
`)

	cfg, err := LoadExperienceConfig(path)
	if err != nil {
		t.Fatalf("LoadExperienceConfig() error = %v", err)
	}
	if cfg.VoiceSessionsRoot != "/tmp/custom-voice" {
		t.Fatalf("expected explicit voice sessions root preserved, got %q", cfg.VoiceSessionsRoot)
	}
	if cfg.DiscoveryIndexPath != "/tmp/custom-index.db" {
		t.Fatalf("expected explicit discovery index path preserved, got %q", cfg.DiscoveryIndexPath)
	}
}

func TestLoadExperienceConfigUnderSharedSection(t *testing.T) {
	path := writeExperienceConfig(t, `
experience:
  bind_address: 0.0.0.0:7000
llm:
  default_provider: anthropic
`)

	cfg, err := LoadExperienceConfig(path)
	if err != nil {
		t.Fatalf("LoadExperienceConfig() error = %v", err)
	}
	if cfg.BindAddress != "0.0.0.0:7000" {
		t.Fatalf("expected experience section to be read, got %q", cfg.BindAddress)
	}
}
