package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coopco/lunchbot/internal/browser"
	"github.com/coopco/lunchbot/internal/bus"
	"github.com/coopco/lunchbot/internal/channels"
	"github.com/coopco/lunchbot/internal/config"
	"github.com/coopco/lunchbot/internal/heartbeat"
	"github.com/coopco/lunchbot/internal/history"
	"github.com/coopco/lunchbot/internal/lockfile"
	"github.com/coopco/lunchbot/internal/orchestrator"
	"github.com/coopco/lunchbot/internal/resolver"
	"github.com/coopco/lunchbot/internal/scheduler"
	"github.com/coopco/lunchbot/internal/submitter"
	"github.com/coopco/lunchbot/internal/web"
	"github.com/coopco/lunchbot/internal/worker"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateRun(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
}

func newResolver(cfg *config.Config) *resolver.Resolver {
	var opts []web.Option
	if cfg.Resolver.UserAgent != "" {
		opts = append(opts, web.WithUserAgent(cfg.Resolver.UserAgent))
	}
	return resolver.New(web.NewClient(opts...), cfg.ResolverConfig())
}

func newSubmitter(cfg *config.Config, b submitter.Browser, adjust ...func(*submitter.Config)) *submitter.Submitter {
	sc := cfg.SubmitterConfig()
	sc.OnTransition = func(from, to submitter.State) {
		slog.Debug("submitter: state", "from", from, "to", to)
	}
	for _, fn := range adjust {
		fn(&sc)
	}
	return submitter.New(b, sc)
}

func run(ctx context.Context, cfg *config.Config) error {
	lock, err := lockfile.Acquire(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// Validate has already checked these.
	loc, _ := cfg.Location()
	rule, _ := cfg.Rule()
	hour, minute, _ := cfg.Clock()

	var recorder orchestrator.Recorder
	if dsn := cfg.HistoryDSN(); dsn != "" {
		store, err := history.Open(dsn)
		if err != nil {
			return fmt.Errorf("failed to open order history: %w", err)
		}
		defer store.Close()
		recorder = store
		slog.Info("history: store opened", "backend", history.DetectDSNType(dsn))
	}

	msgBus := bus.NewMessageBus(0)
	defer msgBus.Close()

	sched := scheduler.NewService(msgBus, loc, scheduler.WithStore(cfg.JobStorePath()))
	restored, err := sched.LoadFromDisk()
	if err != nil {
		slog.Warn("scheduler: ignoring saved reminders", "error", err)
	}

	pool := worker.NewPool(cfg.Workers)
	defer pool.Close()

	mgr := channels.NewManager(msgBus)
	for name, raw := range cfg.EnabledChannels() {
		if err := mgr.AddChannel(name, raw); err != nil {
			return err
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Rule:           rule,
		Hour:           hour,
		Minute:         minute,
		Location:       loc,
		EntryURL:       cfg.Resolver.EntryURL,
		DefaultFormURL: cfg.Dev.DefaultFormURL,
		Quantity:       cfg.Submitter.Quantity,
		FastMode:       cfg.Dev.FastMode,
		FastInterval:   cfg.FastInterval(),
		TargetChannel:  cfg.TargetChannel,
		TargetChatID:   cfg.TargetChatID,
	}, orchestrator.Deps{
		Inbox:     msgBus,
		Outbox:    msgBus,
		Scheduler: sched,
		Resolver:  newResolver(cfg),
		Submitter: newSubmitter(cfg, browser.New(cfg.BrowserConfig())),
		Runner:    pool,
		History:   recorder,
	})

	go msgBus.DispatchOutbound(ctx)
	if err := mgr.StartAll(ctx); err != nil {
		return err
	}
	defer mgr.StopAll()

	sched.Start()
	defer sched.Stop()

	// Sessions armed by the last run get fresh schedules; the target chat
	// is booted by the orchestrator itself.
	version := rule.Version()
	for _, job := range restored {
		if job.Channel == cfg.TargetChannel && job.ChatID == cfg.TargetChatID {
			continue
		}
		if job.RuleVersion != version {
			slog.Info("scheduler: schedule changed since reminder was saved", "session", job.Key, "was", job.RuleVersion, "now", version)
		}
		orch.Boot(ctx, job.Channel, job.ChatID, false)
	}

	if cfg.HeartbeatSeconds > 0 {
		hb := heartbeat.NewService(heartbeat.Config{
			Probe:    statusProbe(orch, sched, pool, mgr),
			Path:     cfg.HeartbeatPath(),
			Interval: cfg.HeartbeatInterval(),
		})
		hb.Start(ctx)
		defer hb.Stop()
	}

	slog.Info("lunchbot: running",
		"channels", mgr.Names(),
		"timezone", loc.String(),
		"reminder", cfg.Schedule.ReminderTime,
		"schedule", version,
		"fastMode", cfg.Dev.FastMode,
		"restored", len(restored),
	)
	err = orch.Run(ctx)
	slog.Info("lunchbot: shutting down")
	return err
}

func statusProbe(orch *orchestrator.Orchestrator, sched *scheduler.Service, pool *worker.Pool, mgr *channels.Manager) func() heartbeat.Snapshot {
	return func() heartbeat.Snapshot {
		jobs := sched.List()
		snap := heartbeat.Snapshot{
			Sessions:  orch.Sessions().Len(),
			Reminders: len(jobs),
			Tasks:     pool.Running(),
		}
		for typ, n := range mgr.Failures() {
			if snap.DeliveryFailures == nil {
				snap.DeliveryFailures = make(map[string]int)
			}
			snap.DeliveryFailures[string(typ)] = n
		}
		for _, job := range jobs {
			if snap.NextReminder == nil || job.FiresAt.Before(*snap.NextReminder) {
				at := job.FiresAt
				snap.NextReminder = &at
			}
		}
		return snap
	}
}
