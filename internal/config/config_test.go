package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goatkit/goatdesk/internal/tickets"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url: %s", cfg.BaseURL)
	}
	if cfg.Chat.PollTimeout != 30*time.Second || cfg.Chat.HardAbort != 35*time.Second {
		t.Fatalf("unexpected chat timeouts: %+v", cfg.Chat)
	}
	if cfg.Tickets.Interval != 10*time.Second {
		t.Fatalf("unexpected ticket interval: %v", cfg.Tickets.Interval)
	}
	if cfg.TicketMode() != tickets.ModeInterval {
		t.Fatal("default mode should be interval")
	}
	if cfg.Tickets.Backoff.Multiplier != 1.5 {
		t.Fatalf("unexpected backoff multiplier: %v", cfg.Tickets.Backoff.Multiplier)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GOATDESK_BASE_URL", "https://desk.example.com")
	t.Setenv("GOATDESK_SENDER", "Eva")
	t.Setenv("GOATDESK_TICKETS_MODE", "longpoll")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://desk.example.com" || cfg.Sender != "Eva" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.TicketMode() != tickets.ModeLongPoll {
		t.Fatal("mode env not applied")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goatdesk.yaml")
	content := `base_url: https://desk.example.com
sender: Eva
chat:
  poll_timeout: 10s
  hard_abort: 12s
tickets:
  mode: longpoll
  backoff_base: 1s
  backoff_multiplier: 2.0
  backoff_cap: 8s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.PollTimeout != 10*time.Second || cfg.Chat.HardAbort != 12*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Chat)
	}
	if cfg.Tickets.Backoff.Cap != 8*time.Second {
		t.Fatalf("backoff cap not applied: %v", cfg.Tickets.Backoff.Cap)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad url", func(c *Config) { c.BaseURL = "not a url" }},
		{"abort below poll", func(c *Config) { c.Chat.HardAbort = c.Chat.PollTimeout }},
		{"bad mode", func(c *Config) { c.Tickets.Mode = "websocket" }},
		{"zero attempts", func(c *Config) { c.Chat.InitAttempts = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
