package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/coopco/lunchbot/internal/browser"
	"github.com/coopco/lunchbot/internal/cadence"
	"github.com/coopco/lunchbot/internal/resolver"
	"github.com/coopco/lunchbot/internal/submitter"
)

// HistoryDisabled as the history DSN turns order history off.
const HistoryDisabled = "none"

// Validate checks the fields that cannot take a safe default.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.Clock(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Rule(); err != nil {
		errs = append(errs, err)
	}
	if c.Dev.FastIntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("dev.fastIntervalMinutes must be positive, got %d", c.Dev.FastIntervalMinutes))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.HeartbeatSeconds < 0 {
		errs = append(errs, fmt.Errorf("heartbeatSeconds must not be negative, got %d", c.HeartbeatSeconds))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateRun additionally requires what the long-running bot needs.
func (c *Config) ValidateRun() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.EnabledChannels()) == 0 {
		errs = append(errs, errors.New("no channel configured: set a telegram, discord or slack token"))
	}
	if c.Contact == "" {
		slog.Warn("config: no contact configured, submissions will fail")
	}
	return errors.Join(errs...)
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// Clock returns the daily reminder time.
func (c *Config) Clock() (hour, minute int, err error) {
	return cadence.ParseClock(c.Schedule.ReminderTime)
}

// Rule builds the cadence rule from the schedule section.
func (c *Config) Rule() (*cadence.Rule, error) {
	var opts []cadence.Option
	if len(c.Schedule.NormalWeekdays) > 0 {
		s, err := cadence.ParseWeekdays(c.Schedule.NormalWeekdays)
		if err != nil {
			return nil, fmt.Errorf("schedule.normalWeekdays: %w", err)
		}
		opts = append(opts, cadence.WithNormalWeekdays(s))
	}
	if len(c.Schedule.SpecialWeekdays) > 0 {
		s, err := cadence.ParseWeekdays(c.Schedule.SpecialWeekdays)
		if err != nil {
			return nil, fmt.Errorf("schedule.specialWeekdays: %w", err)
		}
		opts = append(opts, cadence.WithSpecialWeekdays(s))
	}
	if c.Schedule.SpecialWeek != 0 {
		if c.Schedule.SpecialWeek < 1 || c.Schedule.SpecialWeek > 6 {
			return nil, fmt.Errorf("schedule.specialWeek must be between 1 and 6, got %d", c.Schedule.SpecialWeek)
		}
		opts = append(opts, cadence.WithSpecialWeek(c.Schedule.SpecialWeek))
	}
	return cadence.NewRule(opts...)
}

func (c *Config) FastInterval() time.Duration {
	return time.Duration(c.Dev.FastIntervalMinutes) * time.Minute
}

func (c *Config) ResolverConfig() resolver.Config {
	return resolver.Config{
		LinkPhrase:     c.Resolver.LinkPhrase,
		FormDomain:     c.Resolver.FormDomain,
		ClosedPath:     c.Resolver.ClosedPath,
		SoldOutPhrases: c.Resolver.SoldOutPhrases,
		Labels:         c.Resolver.Labels,
		CheckTimeout:   time.Duration(c.Resolver.CheckTimeoutSeconds) * time.Second,
		ScrapeTimeout:  time.Duration(c.Resolver.ScrapeTimeoutSeconds) * time.Second,
	}
}

func (c *Config) SubmitterConfig() submitter.Config {
	return submitter.Config{
		Contact:      c.Contact,
		Settle:       time.Duration(c.Submitter.SettleMillis) * time.Millisecond,
		SubmitSettle: time.Duration(c.Submitter.SubmitSettleMillis) * time.Millisecond,
		Timeout:      time.Duration(c.Submitter.TimeoutSeconds) * time.Second,
	}
}

func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{
		Headless:  c.Browser.Headless,
		ExecPath:  c.Browser.ExecPath,
		UserAgent: c.Browser.UserAgent,
		SlowMo:    time.Duration(c.Browser.SlowMoMillis) * time.Millisecond,
	}
}

// HistoryDSN returns the history store DSN, or "" when history is disabled.
func (c *Config) HistoryDSN() string {
	switch strings.TrimSpace(c.History.DSN) {
	case HistoryDisabled:
		return ""
	case "":
		return filepath.Join(c.StateDir, "history.db")
	}
	return c.History.DSN
}

// JobStorePath is where armed reminders are saved across restarts.
func (c *Config) JobStorePath() string {
	return filepath.Join(c.StateDir, "reminders.json")
}

// HeartbeatPath is the status file rewritten while the bot runs.
func (c *Config) HeartbeatPath() string {
	return filepath.Join(c.StateDir, "heartbeat.json")
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// EnabledChannels returns the JSON config for every channel with
// credentials, keyed by registered channel name.
func (c *Config) EnabledChannels() map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	add := func(name string, enabled bool, v any) {
		if !enabled {
			return
		}
		raw, err := json.Marshal(v)
		if err != nil {
			slog.Error("config: failed to encode channel config", "channel", name, "error", err)
			return
		}
		out[name] = raw
	}
	ch := c.Channels
	add("telegram", ch.Telegram.Token != "", ch.Telegram)
	add("discord", ch.Discord.Token != "", ch.Discord)
	add("slack", ch.Slack.BotToken != "" && ch.Slack.AppToken != "", ch.Slack)
	return out
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}
