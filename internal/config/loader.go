package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a config file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension. Anything but .yaml/.yml is JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// DefaultPath returns ~/.lunchbot/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".lunchbot", "config.json"), nil
}

// Load loads config from path. With an empty path the default file is used
// when it exists; otherwise defaults plus environment overrides are returned.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	def, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFromFile(def)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config: no config file, using defaults", "path", def)
		cfg = DefaultConfig()
		applyEnvOverrides(cfg)
		expandStateDir(cfg)
		return cfg, nil
	}
	return cfg, err
}

// LoadFromFile loads config from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f, FormatOf(path))
}

// LoadFromReader loads config from an io.Reader, applying defaults and env overrides.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	cfg := DefaultConfig()

	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(cfg)
	default:
		err = json.NewDecoder(r).Decode(cfg)
	}
	// An empty file keeps the defaults.
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	expandStateDir(cfg)

	return cfg, nil
}

// LoadEnvFile loads a .env file into the process environment without
// replacing variables that are already set. A missing file is not an error
// unless the path was given explicitly.
func LoadEnvFile(path string, explicit bool) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("config: loaded env file", "path", path)
	return nil
}

// applyEnvOverrides applies LUNCHBOT_-prefixed overrides, then the legacy
// unprefixed names. The prefixed name wins when both are set.
func applyEnvOverrides(cfg *Config) {
	legacy := map[string]*string{
		"BOT_TOKEN":       &cfg.Channels.Telegram.Token,
		"TARGET_CHAT_ID":  &cfg.TargetChatID,
		"TIMEZONE":        &cfg.Schedule.Timezone,
		"WHATSAPP_NUMBER": &cfg.Contact,
	}
	prefixed := map[string]*string{
		"LUNCHBOT_TELEGRAM_TOKEN":   &cfg.Channels.Telegram.Token,
		"LUNCHBOT_DISCORD_TOKEN":    &cfg.Channels.Discord.Token,
		"LUNCHBOT_SLACK_BOT_TOKEN":  &cfg.Channels.Slack.BotToken,
		"LUNCHBOT_SLACK_APP_TOKEN":  &cfg.Channels.Slack.AppToken,
		"LUNCHBOT_TARGET_CHANNEL":   &cfg.TargetChannel,
		"LUNCHBOT_TARGET_CHAT_ID":   &cfg.TargetChatID,
		"LUNCHBOT_CONTACT":          &cfg.Contact,
		"LUNCHBOT_TIMEZONE":         &cfg.Schedule.Timezone,
		"LUNCHBOT_REMINDER_TIME":    &cfg.Schedule.ReminderTime,
		"LUNCHBOT_ENTRY_URL":        &cfg.Resolver.EntryURL,
		"LUNCHBOT_DEFAULT_FORM_URL": &cfg.Dev.DefaultFormURL,
		"LUNCHBOT_QUANTITY":         &cfg.Submitter.Quantity,
		"LUNCHBOT_HISTORY_DSN":      &cfg.History.DSN,
		"LUNCHBOT_STATE_DIR":        &cfg.StateDir,
		"LUNCHBOT_CHROME_PATH":      &cfg.Browser.ExecPath,
		"LUNCHBOT_LOG_LEVEL":        &cfg.LogLevel,
	}
	for _, table := range []map[string]*string{legacy, prefixed} {
		for env, ptr := range table {
			if val := os.Getenv(env); val != "" {
				*ptr = val
			}
		}
	}

	bools := []struct {
		envs []string
		ptr  *bool
	}{
		{[]string{"DEV_MODE", "LUNCHBOT_FAST_MODE"}, &cfg.Dev.FastMode},
		{[]string{"LUNCHBOT_HEADLESS"}, &cfg.Browser.Headless},
	}
	for _, b := range bools {
		for _, env := range b.envs {
			if val := os.Getenv(env); val != "" {
				if v, err := strconv.ParseBool(val); err == nil {
					*b.ptr = v
				} else {
					slog.Warn("config: ignoring invalid boolean", "env", env, "value", val)
				}
			}
		}
	}

	ints := []struct {
		envs []string
		ptr  *int
	}{
		{[]string{"DEV_REMINDER_MINUTES", "LUNCHBOT_FAST_INTERVAL_MINUTES"}, &cfg.Dev.FastIntervalMinutes},
		{[]string{"LUNCHBOT_WORKERS"}, &cfg.Workers},
		{[]string{"LUNCHBOT_HEARTBEAT_SECONDS"}, &cfg.HeartbeatSeconds},
	}
	for _, n := range ints {
		for _, env := range n.envs {
			if val := os.Getenv(env); val != "" {
				if v, err := strconv.Atoi(val); err == nil {
					*n.ptr = v
				} else {
					slog.Warn("config: ignoring invalid integer", "env", env, "value", val)
				}
			}
		}
	}
}

// expandStateDir expands a leading ~ in the state directory.
func expandStateDir(cfg *Config) {
	dir := cfg.StateDir
	if len(dir) >= 2 && dir[0] == '~' && dir[1] == '/' {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.StateDir = filepath.Join(home, dir[2:])
		}
	}
}
