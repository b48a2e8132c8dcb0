package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads for the test's duration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BOT_TOKEN", "TARGET_CHAT_ID", "TIMEZONE", "WHATSAPP_NUMBER", "DEV_MODE", "DEV_REMINDER_MINUTES",
		"LUNCHBOT_TELEGRAM_TOKEN", "LUNCHBOT_TARGET_CHAT_ID", "LUNCHBOT_CONTACT", "LUNCHBOT_TIMEZONE",
		"LUNCHBOT_FAST_MODE", "LUNCHBOT_FAST_INTERVAL_MINUTES", "LUNCHBOT_HISTORY_DSN", "LUNCHBOT_STATE_DIR",
		"LUNCHBOT_WORKERS", "LUNCHBOT_HEADLESS", "LUNCHBOT_HEARTBEAT_SECONDS",
	} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoadFromReaderJSON(t *testing.T) {
	clearEnv(t)
	jsonData := `{
		"contact": "3001234567",
		"schedule": {"timezone": "UTC", "reminderTime": "08:30", "normalWeekdays": ["lunes", "jueves"]},
		"channels": {"telegram": {"token": "tg-token", "allowedUsers": ["1"]}},
		"targetChatId": "42"
	}`

	cfg, err := LoadFromReader(strings.NewReader(jsonData), FormatJSON)
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if cfg.Contact != "3001234567" || cfg.TargetChatID != "42" {
		t.Errorf("unexpected top-level fields: %+v", cfg)
	}
	if cfg.Schedule.ReminderTime != "08:30" || cfg.Schedule.SpecialWeek != 3 {
		t.Errorf("schedule not merged over defaults: %+v", cfg.Schedule)
	}
	r, err := cfg.Rule()
	if err != nil {
		t.Fatalf("Rule: %v", err)
	}
	if got := r.Normal().String(); got != "Mon,Thu" {
		t.Errorf("normal weekdays = %s", got)
	}
	if h, m, _ := cfg.Clock(); h != 8 || m != 30 {
		t.Errorf("Clock = %d:%d", h, m)
	}
}

func TestLoadFromReaderYAML(t *testing.T) {
	clearEnv(t)
	yamlData := `
contact: "3001234567"
dev:
  fastMode: true
  fastIntervalMinutes: 5
resolver:
  labels: ["OPCIÓN A", "OPCIÓN B", "OPCIÓN C"]
`
	cfg, err := LoadFromReader(strings.NewReader(yamlData), FormatYAML)
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if !cfg.Dev.FastMode || cfg.FastInterval() != 5*time.Minute {
		t.Errorf("dev section = %+v", cfg.Dev)
	}
	if len(cfg.Resolver.Labels) != 3 || cfg.Resolver.LinkPhrase != "Almuerzos del día" {
		t.Errorf("resolver section = %+v", cfg.Resolver)
	}
}

func TestLoadFromReaderEmpty(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromReader(strings.NewReader(""), FormatYAML)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Schedule.Timezone != "America/Bogota" {
		t.Errorf("expected defaults, got %+v", cfg.Schedule)
	}
}

func TestLoadFromReaderInvalidJSON(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("{not json"), FormatJSON); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Schedule.Timezone != "America/Bogota" || cfg.Schedule.ReminderTime != "07:45" {
		t.Errorf("unexpected schedule defaults %+v", cfg.Schedule)
	}
	if cfg.Resolver.EntryURL != "https://linktr.ee/cocina.siete" {
		t.Errorf("EntryURL = %s", cfg.Resolver.EntryURL)
	}
	if cfg.Submitter.Quantity != "1" || cfg.Dev.FastIntervalMinutes != 2 || cfg.Workers != 4 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.Browser.Headless {
		t.Error("browser must default to headless")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "legacy-token")
	t.Setenv("TARGET_CHAT_ID", "7")
	t.Setenv("WHATSAPP_NUMBER", "300")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("DEV_REMINDER_MINUTES", "3")
	t.Setenv("LUNCHBOT_TIMEZONE", "UTC")
	t.Setenv("TIMEZONE", "Europe/Madrid")

	cfg, err := LoadFromReader(strings.NewReader(`{}`), FormatJSON)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Channels.Telegram.Token != "legacy-token" || cfg.TargetChatID != "7" || cfg.Contact != "300" {
		t.Errorf("legacy overrides not applied: %+v", cfg)
	}
	if !cfg.Dev.FastMode || cfg.Dev.FastIntervalMinutes != 3 {
		t.Errorf("dev overrides not applied: %+v", cfg.Dev)
	}
	if cfg.Schedule.Timezone != "UTC" {
		t.Errorf("prefixed override must win, got %s", cfg.Schedule.Timezone)
	}
}

func TestEnvOverrideInvalidIntIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("LUNCHBOT_WORKERS", "many")
	cfg, err := LoadFromReader(strings.NewReader(`{}`), FormatJSON)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
}

func TestLoadFromFileYAMLByExtension(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "lunchbot.yml")
	if err := os.WriteFile(path, []byte("targetChatId: \"99\"\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.TargetChatID != "99" {
		t.Errorf("TargetChatID = %q", cfg.TargetChatID)
	}
}

func TestMissingFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.json")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadWithoutDefaultFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !filepath.IsAbs(cfg.StateDir) || !strings.HasSuffix(cfg.StateDir, ".lunchbot") {
		t.Errorf("StateDir not expanded: %s", cfg.StateDir)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LUNCHBOT_CONTACT=3009998888\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("LUNCHBOT_CONTACT") })
	if err := LoadEnvFile(path, true); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if os.Getenv("LUNCHBOT_CONTACT") != "3009998888" {
		t.Error("env file not loaded")
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), false); err != nil {
		t.Errorf("implicit missing env file must be ignored: %v", err)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), true); err == nil {
		t.Error("explicit missing env file must fail")
	}
}
