// Package orchestrator runs the ordering conversation for every session.
//
// Each session has a mailbox drained by one goroutine, so a session's events
// are applied one at a time in arrival order. Availability checks and form
// submissions run on the worker pool and report back through the mailbox.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/coopco/lunchbot/internal/bus"
	"github.com/coopco/lunchbot/internal/cadence"
	"github.com/coopco/lunchbot/internal/history"
	"github.com/coopco/lunchbot/internal/resolver"
	"github.com/coopco/lunchbot/internal/scheduler"
	"github.com/coopco/lunchbot/internal/session"
	"github.com/coopco/lunchbot/internal/submitter"
	"github.com/coopco/lunchbot/internal/worker"
)

// Resolver probes availability and extracts offerings.
type Resolver interface {
	CheckAvailability(ctx context.Context, entryURL string) resolver.AvailabilityResult
	ExtractOfferings(ctx context.Context, formURL string) ([]resolver.Offering, error)
}

// Submitter places an order.
type Submitter interface {
	Submit(ctx context.Context, o submitter.Order) error
}

// Scheduler holds one reminder job per session.
type Scheduler interface {
	Arm(channel, chatID string, sched robfigcron.Schedule, ruleVersion string) (scheduler.ReminderJob, error)
	Cancel(channel, chatID string) bool
	Get(channel, chatID string) (scheduler.ReminderJob, bool)
}

// Recorder is the order history. It may be nil.
type Recorder interface {
	Record(ctx context.Context, a history.OrderAttempt) (history.OrderAttempt, error)
	Last(ctx context.Context, sessionKey string) (history.OrderAttempt, error)
}

// Runner runs background tasks. *worker.Pool implements it.
type Runner interface {
	Submit(ctx context.Context, name string, fn worker.Task, done func(error)) string
}

// Inbox is the source of inbound events.
type Inbox interface {
	ConsumeInbound(ctx context.Context) (bus.InboundMessage, error)
}

// Outbox is the sink for outbound actions.
type Outbox interface {
	PublishOutbound(msg bus.OutboundMessage) error
}

// Config holds the orchestrator settings.
type Config struct {
	Rule     *cadence.Rule
	Hour     int
	Minute   int
	Location *time.Location

	EntryURL string
	// DefaultFormURL, when set in fast mode, receives submissions instead
	// of the form found by the availability check.
	DefaultFormURL string
	Quantity       string

	FastMode     bool
	FastInterval time.Duration

	// TargetChannel and TargetChatID name a session started at boot.
	TargetChannel string
	TargetChatID  string

	MailboxSize int
	Now         func() time.Time
}

type Deps struct {
	Inbox     Inbox
	Outbox    Outbox
	Scheduler Scheduler
	Resolver  Resolver
	Submitter Submitter
	Runner    Runner
	History   Recorder
}

type Orchestrator struct {
	cfg      Config
	deps     Deps
	sessions *session.Manager
	schedule cadence.ReminderSchedule

	mu        sync.Mutex
	mailboxes map[string]chan event
	wg        sync.WaitGroup
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Rule == nil {
		cfg.Rule = cadence.DefaultRule()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Quantity == "" {
		cfg.Quantity = "1"
	}
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 2 * time.Minute
	}
	if cfg.TargetChannel == "" {
		cfg.TargetChannel = "telegram"
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 32
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		sessions: session.NewManager(),
		schedule: cadence.ReminderSchedule{
			Rule:     cfg.Rule,
			Hour:     cfg.Hour,
			Minute:   cfg.Minute,
			Location: cfg.Location,
		},
		mailboxes: make(map[string]chan event),
	}
}

// Sessions exposes the session table.
func (o *Orchestrator) Sessions() *session.Manager { return o.sessions }

// eventKind separates inbound events from worker completions and boot.
type eventKind string

const (
	evInbound   eventKind = "inbound"
	evBoot      eventKind = "boot"
	evResolved  eventKind = "resolved"
	evSubmitted eventKind = "submitted"
)

type event struct {
	kind eventKind
	msg  bus.InboundMessage

	// Worker completions carry the flow they were started under.
	flow      uint64
	avail     resolver.AvailabilityResult
	offerings []resolver.Offering
	offering  resolver.Offering
	formURL   string
	err       error

	// announce sends the fast-mode boot prompt.
	announce bool
}

// Run starts the target session, then routes inbound events until ctx ends
// or the inbox closes. It waits for session loops to exit before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.wg.Wait()

	if o.cfg.TargetChatID != "" {
		o.Boot(ctx, o.cfg.TargetChannel, o.cfg.TargetChatID, o.cfg.FastMode)
	}
	for {
		msg, err := o.deps.Inbox.ConsumeInbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, bus.ErrClosed) {
				return nil
			}
			return err
		}
		o.post(ctx, msg.Channel, msg.ChatID, event{kind: evInbound, msg: msg})
	}
}

// Boot arms a session's reminder without user interaction. With announce
// set it also sends the prompt straight away.
func (o *Orchestrator) Boot(ctx context.Context, channel, chatID string, announce bool) {
	o.post(ctx, channel, chatID, event{kind: evBoot, announce: announce})
}

// post delivers ev to the session's mailbox, starting its loop if needed.
func (o *Orchestrator) post(ctx context.Context, channel, chatID string, ev event) {
	box := o.mailbox(ctx, channel, chatID)
	select {
	case box <- ev:
	case <-ctx.Done():
	}
}

// complete posts a worker result. The runner may call done from the session
// loop itself (pool closed), so a full mailbox is never waited on inline.
func (o *Orchestrator) complete(ctx context.Context, s *session.Session, ev event) {
	box := o.mailbox(ctx, s.Channel, s.ChatID)
	select {
	case box <- ev:
	default:
		go o.post(ctx, s.Channel, s.ChatID, ev)
	}
}

func (o *Orchestrator) mailbox(ctx context.Context, channel, chatID string) chan event {
	key := bus.Key(channel, chatID)
	o.mu.Lock()
	defer o.mu.Unlock()
	if box, ok := o.mailboxes[key]; ok {
		return box
	}
	box := make(chan event, o.cfg.MailboxSize)
	o.mailboxes[key] = box
	s, _ := o.sessions.GetOrCreate(key, channel, chatID)
	o.wg.Add(1)
	go o.loop(ctx, s, box)
	slog.Debug("orchestrator: session started", "session", key)
	return box
}

func (o *Orchestrator) loop(ctx context.Context, s *session.Session, box chan event) {
	defer o.wg.Done()
	for {
		select {
		case ev := <-box:
			o.apply(ctx, s, ev)
		case <-ctx.Done():
			return
		}
	}
}

// apply handles one event. A panic is logged and the session reset.
func (o *Orchestrator) apply(ctx context.Context, s *session.Session, ev event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: handler panicked", "session", s.Key, "panic", r, "stack", string(debug.Stack()))
			s.Stop()
		}
	}()

	switch ev.kind {
	case evBoot:
		o.onBoot(ctx, s, ev.announce)
	case evResolved:
		o.onResolved(ctx, s, ev)
	case evSubmitted:
		o.onSubmitted(ctx, s, ev)
	case evInbound:
		o.onInbound(ctx, s, ev.msg)
	}
}

func (o *Orchestrator) onInbound(ctx context.Context, s *session.Session, msg bus.InboundMessage) {
	switch msg.Kind {
	case bus.KindYes, bus.KindNo, bus.KindOffering:
		if msg.MessageRef != "" {
			o.emit(s, bus.OutboundMessage{Type: bus.TypeClearChoices, MessageRef: msg.MessageRef})
		}
	}

	switch msg.Kind {
	case bus.KindTick:
		o.onTick(s)
	case bus.KindStart:
		o.onStart(s)
	case bus.KindStop:
		o.onStop(s)
	case bus.KindStatus:
		o.onStatus(ctx, s)
	case bus.KindYes:
		o.onYes(ctx, s, msg)
	case bus.KindNo:
		o.onNo(s, msg)
	case bus.KindOffering:
		o.onOffering(ctx, s, msg)
	default:
		o.invalid(s, msg)
	}
}

func (o *Orchestrator) invalid(s *session.Session, msg bus.InboundMessage) {
	slog.Warn("orchestrator: ignoring event", "session", s.Key, "state", s.State, "kind", msg.Kind, "content", msg.Content)
}

func (o *Orchestrator) onBoot(ctx context.Context, s *session.Session, announce bool) {
	o.arm(s)
	if announce {
		o.text(s, "DEV MODE: Bot started! Sending immediate order reminder...")
		o.promptOrder(s)
	}
}

func (o *Orchestrator) onTick(s *session.Session) {
	now := o.now()
	if s.State != session.Idle {
		if o.stalled(s, now) {
			slog.Warn("orchestrator: reminder skipped, earlier prompt still unanswered",
				"session", s.Key, "state", s.State, "since", s.PromptedAt, "waiting", now.Sub(s.PromptedAt).Round(time.Second))
			return
		}
		slog.Info("orchestrator: tick ignored, flow in progress", "session", s.Key, "state", s.State)
		return
	}
	if !o.cfg.FastMode && !o.cfg.Rule.Qualifies(now) {
		slog.Info("orchestrator: skipping reminder, not scheduled today", "session", s.Key, "weekday", now.Weekday())
		return
	}
	o.promptOrder(s)
}

func (o *Orchestrator) promptOrder(s *session.Session) {
	o.emit(s, bus.OutboundMessage{
		Type:    bus.TypeChoices,
		Content: "Do you want to order today?",
		Choices: []bus.Choice{
			{Label: "Y", Token: bus.TokenOrderYes},
			{Label: "N", Token: bus.TokenOrderNo},
		},
	})
	s.Transition(session.AwaitingYesNo)
	s.PromptedAt = o.now()
	slog.Info("orchestrator: order prompt sent", "session", s.Key)
}

// reminderPeriod is the gap between scheduled ticks.
func (o *Orchestrator) reminderPeriod() time.Duration {
	if o.cfg.FastMode {
		return o.cfg.FastInterval
	}
	return 24 * time.Hour
}

// stalled reports whether s has sat in a flow for longer than one reminder
// period, which means at least one reminder was swallowed.
func (o *Orchestrator) stalled(s *session.Session, now time.Time) bool {
	if s.State == session.Idle || s.PromptedAt.IsZero() {
		return false
	}
	return now.Sub(s.PromptedAt) > o.reminderPeriod()
}

func (o *Orchestrator) onStart(s *session.Session) {
	// A fresh start disowns whatever the session was doing.
	s.Stop()
	o.arm(s)
	if o.cfg.FastMode {
		o.text(s, fmt.Sprintf("DEV MODE: Order reminder (executes immediately)\nReminders every %s for testing.\n\nHere's your order question:", o.fastPeriod()))
	} else {
		o.text(s, o.activationText())
	}
	o.onTick(s)
}

func (o *Orchestrator) onStop(s *session.Session) {
	live := o.deps.Scheduler.Cancel(s.Channel, s.ChatID)
	s.Stop()
	if live {
		o.text(s, "Daily order reminders have been stopped.\nUse /start to activate them again.")
	} else {
		o.text(s, "No active daily reminders found.\nUse /start to activate daily reminders.")
	}
}

func (o *Orchestrator) onStatus(ctx context.Context, s *session.Session) {
	if _, ok := o.deps.Scheduler.Get(s.Channel, s.ChatID); !ok {
		o.text(s, "Daily order reminders are INACTIVE\n\nUse /start to activate daily reminders.")
		return
	}
	o.text(s, o.statusText(ctx, s.Key))
}

func (o *Orchestrator) onYes(ctx context.Context, s *session.Session, msg bus.InboundMessage) {
	if s.State != session.AwaitingYesNo {
		o.invalid(s, msg)
		return
	}
	o.text(s, "Great! Let me check today's menu options...")
	s.Transition(session.ResolvingAvailability)

	flow := s.Flow
	var avail resolver.AvailabilityResult
	var offerings []resolver.Offering
	o.deps.Runner.Submit(ctx, "resolve", func(ctx context.Context) error {
		avail = o.deps.Resolver.CheckAvailability(ctx, o.cfg.EntryURL)
		if !avail.IsOpen {
			return nil
		}
		var err error
		offerings, err = o.deps.Resolver.ExtractOfferings(ctx, avail.FormURL)
		return err
	}, func(err error) {
		o.complete(ctx, s, event{kind: evResolved, flow: flow, avail: avail, offerings: offerings, err: err})
	})
}

func (o *Orchestrator) onNo(s *session.Session, msg bus.InboundMessage) {
	if s.State != session.AwaitingYesNo {
		o.invalid(s, msg)
		return
	}
	o.text(s, "No problem! "+o.nextNotice())
	o.finish(s)
}

func (o *Orchestrator) onResolved(ctx context.Context, s *session.Session, ev event) {
	if ev.flow != s.Flow || s.State != session.ResolvingAvailability {
		slog.Info("orchestrator: dropping stale availability result", "session", s.Key, "flow", ev.flow, "current", s.Flow)
		return
	}
	switch {
	case ev.err != nil:
		slog.Warn("orchestrator: could not load offerings", "session", s.Key, "error", ev.err)
		o.text(s, "Sorry, couldn't load the menu options.\nError: "+userError(ev.err))
		o.text(s, o.nextNotice())
		o.finish(s)
	case !ev.avail.IsOpen:
		slog.Info("orchestrator: ordering closed", "session", s.Key, "detail", ev.avail.Detail)
		o.text(s, "Sorry, daily menu is not available today.\nReason: "+ev.avail.Detail)
		o.text(s, o.nextNotice())
		o.finish(s)
	default:
		s.PendingFormURL = ev.avail.FormURL
		s.Offerings = ev.offerings
		o.presentOfferings(s)
		s.Transition(session.PresentingOfferings)
	}
}

func (o *Orchestrator) presentOfferings(s *session.Session) {
	o.text(s, "Here are today's menu options:")
	choices := make([]bus.Choice, 0, len(s.Offerings))
	for i, off := range s.Offerings {
		price := off.Price
		if price == "" {
			price = "N/A"
		}
		caption := fmt.Sprintf("%s - $%s", off.Label, price)
		if off.ImageRef != "" {
			o.emit(s, bus.OutboundMessage{Type: bus.TypeImage, Content: caption, ImageURL: off.ImageRef})
		} else {
			o.text(s, caption+"\n(Image not available)")
		}
		choices = append(choices, bus.Choice{Label: off.Label, Token: bus.MenuToken(i)})
	}
	o.emit(s, bus.OutboundMessage{
		Type:    bus.TypeChoices,
		Content: "Which menu would you like to order?",
		Choices: choices,
	})
}

func (o *Orchestrator) onOffering(ctx context.Context, s *session.Session, msg bus.InboundMessage) {
	if s.State != session.PresentingOfferings {
		o.invalid(s, msg)
		return
	}
	off, ok := s.Offering(msg.OfferingIndex)
	if !ok {
		o.invalid(s, msg)
		return
	}
	o.text(s, fmt.Sprintf("Perfect! You've chosen %s. Submitting your order...", off.Label))
	s.Transition(session.Submitting)

	formURL := s.PendingFormURL
	if o.cfg.FastMode && o.cfg.DefaultFormURL != "" {
		formURL = o.cfg.DefaultFormURL
	}
	order := submitter.Order{FormURL: formURL, OfferingIndex: msg.OfferingIndex, Quantity: o.cfg.Quantity}
	flow := s.Flow
	o.deps.Runner.Submit(ctx, "submit", func(ctx context.Context) error {
		return o.deps.Submitter.Submit(ctx, order)
	}, func(err error) {
		o.complete(ctx, s, event{kind: evSubmitted, flow: flow, offering: off, formURL: formURL, err: err})
	})
}

func (o *Orchestrator) onSubmitted(ctx context.Context, s *session.Session, ev event) {
	o.record(ctx, s, ev)
	if ev.flow != s.Flow || s.State != session.Submitting {
		slog.Info("orchestrator: dropping stale submission result", "session", s.Key, "flow", ev.flow, "current", s.Flow, "error", ev.err)
		return
	}
	if ev.err != nil {
		var ae *submitter.AutomationError
		if errors.As(ev.err, &ae) {
			slog.Error("orchestrator: order submission failed", "session", s.Key, "state", ae.State, "requested", ae.Requested, "options", ae.Options, "error", ae.Err)
		} else {
			slog.Error("orchestrator: order submission failed", "session", s.Key, "error", ev.err)
		}
		o.text(s, "Sorry, there was an error submitting your order. Please try ordering manually.")
	} else {
		slog.Info("orchestrator: order submitted", "session", s.Key, "offering", ev.offering.Label)
		o.text(s, "Your order has been submitted successfully!")
	}
	o.text(s, o.nextNotice())
	o.finish(s)
}

// record logs the attempt even when the session moved on, since the form
// may have been submitted regardless.
func (o *Orchestrator) record(ctx context.Context, s *session.Session, ev event) {
	if o.deps.History == nil {
		return
	}
	a := history.OrderAttempt{
		SessionKey: s.Key,
		Label:      ev.offering.Label,
		Quantity:   o.cfg.Quantity,
		FormURL:    ev.formURL,
		Outcome:    history.OutcomeSubmitted,
	}
	if ev.err != nil {
		a.Outcome = history.OutcomeFailed
		a.Detail = ev.err.Error()
	}
	if _, err := o.deps.History.Record(ctx, a); err != nil {
		slog.Warn("orchestrator: failed to record order attempt", "session", s.Key, "error", err)
	}
}

// finish re-arms the reminder for the next qualifying date and returns the
// session to Idle.
func (o *Orchestrator) finish(s *session.Session) {
	o.armSchedule(s, o.schedule.After(o.now()))
	s.Reset()
}

// arm installs the daily schedule, which may still fire later today.
func (o *Orchestrator) arm(s *session.Session) {
	o.armSchedule(s, o.schedule)
}

func (o *Orchestrator) armSchedule(s *session.Session, daily cadence.ReminderSchedule) {
	var sched robfigcron.Schedule = daily
	version := o.cfg.Rule.Version()
	if o.cfg.FastMode {
		sched = robfigcron.Every(o.cfg.FastInterval)
		version = "fast=" + o.cfg.FastInterval.String()
	}
	job, err := o.deps.Scheduler.Arm(s.Channel, s.ChatID, sched, version)
	if err != nil {
		slog.Error("orchestrator: failed to arm reminder", "session", s.Key, "error", err)
		return
	}
	s.ScheduledJobID = job.ID
}

func (o *Orchestrator) emit(s *session.Session, msg bus.OutboundMessage) {
	msg.Channel = s.Channel
	msg.ChatID = s.ChatID
	if err := o.deps.Outbox.PublishOutbound(msg); err != nil {
		slog.Warn("orchestrator: failed to publish", "session", s.Key, "type", msg.Type, "error", err)
	}
}

func (o *Orchestrator) text(s *session.Session, content string) {
	o.emit(s, bus.OutboundMessage{Type: bus.TypeText, Content: content})
}

func (o *Orchestrator) now() time.Time {
	return o.cfg.Now().In(o.cfg.Location)
}

// userError renders err for a chat message without transport internals.
func userError(err error) string {
	var ee *resolver.ExtractionError
	if errors.As(err, &ee) {
		return ee.Error()
	}
	return err.Error()
}
