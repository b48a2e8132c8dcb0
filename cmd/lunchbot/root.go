package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coopco/lunchbot/internal/config"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "lunchbot",
		Short:         "Daily lunch order reminders over chat, with form automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file, JSON or YAML (default ~/.lunchbot/config.json)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before env overrides (default .env if present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newMenuCmd(opts))
	root.AddCommand(newSubmitCmd(opts))
	root.AddCommand(newNextCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// load reads the env file and config, validates it and installs the logger.
func (o *rootOptions) load() (*config.Config, error) {
	if err := config.LoadEnvFile(o.envFile, o.envFile != ""); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	switch {
	case o.logLevel != "":
		cfg.LogLevel = o.logLevel
	case cfg.Dev.FastMode:
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	lvl, _ := config.ParseLevel(level)
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lunchbot %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}
