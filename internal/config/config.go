// Package config loads client configuration from environment variables
// and an optional config file. Every tuning knob has a default; a bare
// environment yields a working client against localhost.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/goatkit/goatdesk/internal/tickets"
)

// Config is the full client configuration.
type Config struct {
	// BaseURL of the support desk API.
	BaseURL string
	// Sender is the display name used for outgoing chat messages.
	Sender string
	// SessionCookie is sent on every request when set; the tickets
	// endpoint requires it.
	SessionCookie string

	Chat    ChatConfig
	Tickets TicketConfig
}

// ChatConfig tunes the chat synchronizer.
type ChatConfig struct {
	PollTimeout  time.Duration
	HardAbort    time.Duration
	SendTimeout  time.Duration
	InitAttempts int
	InitBackoff  time.Duration
	RetryBase    time.Duration
	RetryMax     time.Duration
}

// TicketConfig tunes the ticket synchronizer.
type TicketConfig struct {
	Mode        string // "interval" or "longpoll"
	Interval    time.Duration
	PollTimeout time.Duration
	HardAbort   time.Duration
	Backoff     tickets.Backoff
}

// Load reads configuration. A non-empty path names an explicit config
// file; otherwise only defaults and GOATDESK_* environment variables
// apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("goatdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		BaseURL:       v.GetString("base_url"),
		Sender:        v.GetString("sender"),
		SessionCookie: v.GetString("session_cookie"),
		Chat: ChatConfig{
			PollTimeout:  v.GetDuration("chat.poll_timeout"),
			HardAbort:    v.GetDuration("chat.hard_abort"),
			SendTimeout:  v.GetDuration("chat.send_timeout"),
			InitAttempts: v.GetInt("chat.init_attempts"),
			InitBackoff:  v.GetDuration("chat.init_backoff"),
			RetryBase:    v.GetDuration("chat.retry_base"),
			RetryMax:     v.GetDuration("chat.retry_max"),
		},
		Tickets: TicketConfig{
			Mode:        v.GetString("tickets.mode"),
			Interval:    v.GetDuration("tickets.interval"),
			PollTimeout: v.GetDuration("tickets.poll_timeout"),
			HardAbort:   v.GetDuration("tickets.hard_abort"),
			Backoff: tickets.Backoff{
				Base:       v.GetDuration("tickets.backoff_base"),
				Multiplier: v.GetFloat64("tickets.backoff_multiplier"),
				Cap:        v.GetDuration("tickets.backoff_cap"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("sender", "")
	v.SetDefault("session_cookie", "")

	v.SetDefault("chat.poll_timeout", 30*time.Second)
	v.SetDefault("chat.hard_abort", 35*time.Second)
	v.SetDefault("chat.send_timeout", 15*time.Second)
	v.SetDefault("chat.init_attempts", 3)
	v.SetDefault("chat.init_backoff", time.Second)
	v.SetDefault("chat.retry_base", time.Second)
	v.SetDefault("chat.retry_max", 5*time.Second)

	v.SetDefault("tickets.mode", "interval")
	v.SetDefault("tickets.interval", 10*time.Second)
	v.SetDefault("tickets.poll_timeout", 30*time.Second)
	v.SetDefault("tickets.hard_abort", 35*time.Second)
	v.SetDefault("tickets.backoff_base", 2*time.Second)
	v.SetDefault("tickets.backoff_multiplier", 1.5)
	v.SetDefault("tickets.backoff_cap", 20*time.Second)
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: base_url %q is not a valid URL", c.BaseURL)
	}
	if c.Chat.HardAbort <= c.Chat.PollTimeout {
		return errors.New("config: chat.hard_abort must exceed chat.poll_timeout")
	}
	if c.Tickets.HardAbort <= c.Tickets.PollTimeout {
		return errors.New("config: tickets.hard_abort must exceed tickets.poll_timeout")
	}
	switch c.Tickets.Mode {
	case "interval", "longpoll":
	default:
		return fmt.Errorf("config: tickets.mode %q must be interval or longpoll", c.Tickets.Mode)
	}
	if c.Chat.InitAttempts < 1 {
		return errors.New("config: chat.init_attempts must be at least 1")
	}
	return nil
}

// TicketMode converts the configured mode string.
func (c *Config) TicketMode() tickets.Mode {
	if c.Tickets.Mode == "longpoll" {
		return tickets.ModeLongPoll
	}
	return tickets.ModeInterval
}
