package config

import (
	"github.com/coopco/lunchbot/internal/resolver"
)

// Config is the top-level configuration
type Config struct {
	// Contact is the value typed into the form's contact field.
	Contact   string          `json:"contact" yaml:"contact"`
	Schedule  ScheduleConfig  `json:"schedule" yaml:"schedule"`
	Resolver  ResolverConfig  `json:"resolver" yaml:"resolver"`
	Submitter SubmitterConfig `json:"submitter" yaml:"submitter"`
	Browser   BrowserConfig   `json:"browser" yaml:"browser"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels"`
	History   HistoryConfig   `json:"history" yaml:"history"`
	Dev       DevConfig       `json:"dev" yaml:"dev"`

	// TargetChannel and TargetChatID name a chat started automatically at boot.
	TargetChannel string `json:"targetChannel" yaml:"targetChannel"`
	TargetChatID  string `json:"targetChatId" yaml:"targetChatId"`

	StateDir string `json:"stateDir" yaml:"stateDir"`
	Workers  int    `json:"workers" yaml:"workers"`
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	// HeartbeatSeconds is how often heartbeat.json is rewritten; 0 disables it.
	HeartbeatSeconds int `json:"heartbeatSeconds" yaml:"heartbeatSeconds"`
}

type ScheduleConfig struct {
	Timezone        string   `json:"timezone" yaml:"timezone"`
	ReminderTime    string   `json:"reminderTime" yaml:"reminderTime"`
	NormalWeekdays  []string `json:"normalWeekdays" yaml:"normalWeekdays"`
	SpecialWeekdays []string `json:"specialWeekdays" yaml:"specialWeekdays"`
	SpecialWeek     int      `json:"specialWeek" yaml:"specialWeek"`
}

type ResolverConfig struct {
	EntryURL             string   `json:"entryUrl" yaml:"entryUrl"`
	LinkPhrase           string   `json:"linkPhrase" yaml:"linkPhrase"`
	FormDomain           string   `json:"formDomain" yaml:"formDomain"`
	ClosedPath           string   `json:"closedPath" yaml:"closedPath"`
	SoldOutPhrases       []string `json:"soldOutPhrases" yaml:"soldOutPhrases"`
	Labels               []string `json:"labels" yaml:"labels"`
	CheckTimeoutSeconds  int      `json:"checkTimeoutSeconds" yaml:"checkTimeoutSeconds"`
	ScrapeTimeoutSeconds int      `json:"scrapeTimeoutSeconds" yaml:"scrapeTimeoutSeconds"`
	UserAgent            string   `json:"userAgent" yaml:"userAgent"`
}

type SubmitterConfig struct {
	Quantity           string `json:"quantity" yaml:"quantity"`
	SettleMillis       int    `json:"settleMillis" yaml:"settleMillis"`
	SubmitSettleMillis int    `json:"submitSettleMillis" yaml:"submitSettleMillis"`
	TimeoutSeconds     int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type BrowserConfig struct {
	Headless     bool   `json:"headless" yaml:"headless"`
	ExecPath     string `json:"execPath" yaml:"execPath"`
	UserAgent    string `json:"userAgent" yaml:"userAgent"`
	SlowMoMillis int    `json:"slowMoMillis" yaml:"slowMoMillis"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
}

type TelegramConfig struct {
	Token        string   `json:"token" yaml:"token"`
	AllowedUsers []string `json:"allowedUsers" yaml:"allowedUsers"`
}

type DiscordConfig struct {
	Token        string   `json:"token" yaml:"token"`
	AllowedUsers []string `json:"allowedUsers" yaml:"allowedUsers"`
}

type SlackConfig struct {
	BotToken     string   `json:"botToken" yaml:"botToken"`
	AppToken     string   `json:"appToken" yaml:"appToken"`
	AllowedUsers []string `json:"allowedUsers" yaml:"allowedUsers"`
}

// HistoryConfig selects the order history store. An empty DSN stores
// history.db in the state directory; "none" disables history.
type HistoryConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// DevConfig is the fast mode used for testing: reminders repeat on a short
// interval and ignore the weekly cadence.
type DevConfig struct {
	FastMode            bool   `json:"fastMode" yaml:"fastMode"`
	FastIntervalMinutes int    `json:"fastIntervalMinutes" yaml:"fastIntervalMinutes"`
	DefaultFormURL      string `json:"defaultFormUrl" yaml:"defaultFormUrl"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			Timezone:        "America/Bogota",
			ReminderTime:    "07:45",
			NormalWeekdays:  []string{"Mon", "Tue", "Wed"},
			SpecialWeekdays: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
			SpecialWeek:     3,
		},
		Resolver: ResolverConfig{
			EntryURL:             resolver.DefaultEntryURL,
			LinkPhrase:           resolver.DefaultLinkPhrase,
			FormDomain:           resolver.DefaultFormDomain,
			ClosedPath:           resolver.DefaultClosedPath,
			SoldOutPhrases:       append([]string(nil), resolver.DefaultSoldOutPhrases...),
			Labels:               append([]string(nil), resolver.DefaultLabels...),
			CheckTimeoutSeconds:  10,
			ScrapeTimeoutSeconds: 15,
		},
		Submitter: SubmitterConfig{
			Quantity:           "1",
			SettleMillis:       1000,
			SubmitSettleMillis: 3000,
			TimeoutSeconds:     120,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Dev: DevConfig{
			FastIntervalMinutes: 2,
		},
		TargetChannel: "telegram",
		StateDir:      "~/.lunchbot",
		Workers:       4,
		LogLevel:      "info",

		HeartbeatSeconds: 60,
	}
}
