package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"reminder time", func(c *Config) { c.Schedule.ReminderTime = "25:00" }},
		{"weekday", func(c *Config) { c.Schedule.NormalWeekdays = []string{"Funday"} }},
		{"special week", func(c *Config) { c.Schedule.SpecialWeek = 9 }},
		{"fast interval", func(c *Config) { c.Dev.FastIntervalMinutes = 0 }},
		{"workers", func(c *Config) { c.Workers = -1 }},
		{"heartbeat", func(c *Config) { c.HeartbeatSeconds = -1 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateRunNeedsChannel(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateRun(); err == nil {
		t.Fatal("expected error without channels")
	}
	cfg.Channels.Telegram.Token = "t"
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("ValidateRun: %v", err)
	}
}

func TestEnabledChannels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels.Telegram.Token = "t"
	cfg.Channels.Slack.BotToken = "xoxb" // no app token: disabled
	got := cfg.EnabledChannels()
	if len(got) != 1 || got["telegram"] == nil {
		t.Fatalf("EnabledChannels = %v", got)
	}
	if string(got["telegram"]) != `{"token":"t","allowedUsers":null}` {
		t.Errorf("telegram config = %s", got["telegram"])
	}
}

func TestHistoryDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = "/var/lib/lunchbot"
	if got := cfg.HistoryDSN(); got != filepath.Join("/var/lib/lunchbot", "history.db") {
		t.Errorf("default HistoryDSN = %s", got)
	}
	cfg.History.DSN = "none"
	if got := cfg.HistoryDSN(); got != "" {
		t.Errorf("disabled HistoryDSN = %s", got)
	}
	cfg.History.DSN = "postgres://localhost/lunch"
	if got := cfg.HistoryDSN(); got != "postgres://localhost/lunch" {
		t.Errorf("HistoryDSN = %s", got)
	}
}

func TestComponentConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contact = "300"
	r := cfg.ResolverConfig()
	if r.CheckTimeout != 10*time.Second || r.ScrapeTimeout != 15*time.Second || len(r.Labels) != 2 {
		t.Errorf("ResolverConfig = %+v", r)
	}
	s := cfg.SubmitterConfig()
	if s.Contact != "300" || s.Settle != time.Second || s.SubmitSettle != 3*time.Second {
		t.Errorf("SubmitterConfig = %+v", s)
	}
	if b := cfg.BrowserConfig(); !b.Headless {
		t.Errorf("BrowserConfig = %+v", b)
	}
}
