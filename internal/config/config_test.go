package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 15m
game:
  question_timeout: 12s
  solo_count: 8
outbox:
  backend: file
  path: /tmp/outbox.json
payments:
  redirect_url: https://pay.example.com/checkout
jobs:
  sweep_interval: 30s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected server/redis section: %+v", cfg)
	}
	if cfg.Game.SoloCount != 8 || cfg.Outbox.Backend != "file" || cfg.Outbox.Path != "/tmp/outbox.json" {
		t.Fatalf("unexpected game/outbox section: %+v", cfg)
	}
	if got := TTLDuration(cfg.Game.QuestionTimeout, 10*time.Second); got != 12*time.Second {
		t.Fatalf("expected 12s question timeout, got %s", got)
	}
	if got := TTLDuration(cfg.Game.AnswerDwell, 1200*time.Millisecond); got != 1200*time.Millisecond {
		t.Fatalf("expected fallback dwell, got %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestTTLDurationFallsBackOnGarbage(t *testing.T) {
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if IntOr(0, 20) != 20 || IntOr(5, 20) != 5 {
		t.Fatalf("IntOr did not pick the expected value")
	}
}
