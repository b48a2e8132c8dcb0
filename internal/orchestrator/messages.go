package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coopco/lunchbot/internal/history"
)

// reminderLayout renders e.g. "Monday, January 02 at 07:45 AM".
const reminderLayout = "Monday, January 02 at 03:04 PM"

// fastPeriod renders the fast mode interval: "1 minute", "3 minutes", or the
// duration itself ("1m30s") when it is not a whole number of minutes.
func (o *Orchestrator) fastPeriod() string {
	d := o.cfg.FastInterval
	switch {
	case d == time.Minute:
		return "1 minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}

// nextNotice tells the user when they will be asked again.
func (o *Orchestrator) nextNotice() string {
	if o.cfg.FastMode {
		return fmt.Sprintf("DEV MODE: I'll ask you again in %s.", o.fastPeriod())
	}
	return fmt.Sprintf("I'll ask you again on %s.", o.schedule.NextReminder(o.now()).Format(reminderLayout))
}

func (o *Orchestrator) activationText() string {
	r := o.cfg.Rule
	now := o.now()
	var b strings.Builder
	b.WriteString("Daily order reminder activated!\n\n")
	b.WriteString("Schedule:\n")
	fmt.Fprintf(&b, "• Normal weeks: %d days (%s)\n", r.Normal().Len(), r.Normal().Span())
	fmt.Fprintf(&b, "• %s of month: %d days (%s)\n\n", r.SpecialWeekName(), r.Special().Len(), r.Special().Span())
	fmt.Fprintf(&b, "Current: %s\n", r.Describe(now))
	fmt.Fprintf(&b, "Next reminder: %s\n\n", o.schedule.NextReminder(now).Format(reminderLayout))
	b.WriteString("Let me check if I should ask you today:")
	return b.String()
}

func (o *Orchestrator) statusText(ctx context.Context, key string) string {
	r := o.cfg.Rule
	now := o.now()
	today := "No"
	if r.Qualifies(now) {
		today = "Yes"
	}
	var b strings.Builder
	b.WriteString("Daily order reminders are ACTIVE\n\n")
	fmt.Fprintf(&b, "Current Schedule: %s\n", r.DescribeShort(now))
	fmt.Fprintf(&b, "Reminder today (%s): %s\n", now.Format("Monday"), today)
	fmt.Fprintf(&b, "Next reminder: %s\n", o.schedule.NextReminder(now).Format(reminderLayout))
	if last, ok := o.lastAttempt(ctx, key); ok {
		fmt.Fprintf(&b, "Last order: %s on %s (%s)\n", last.Label, last.CreatedAt.In(o.cfg.Location).Format("Monday, January 02"), last.Outcome)
	}
	b.WriteString("\nWeekly Schedule:\n")
	fmt.Fprintf(&b, "• Normal weeks: %s\n", r.Normal().List())
	fmt.Fprintf(&b, "• %s: %s\n\n", r.SpecialWeekName(), r.Special().List())
	b.WriteString("Use /stop to deactivate reminders.")
	return b.String()
}

func (o *Orchestrator) lastAttempt(ctx context.Context, key string) (history.OrderAttempt, bool) {
	if o.deps.History == nil {
		return history.OrderAttempt{}, false
	}
	last, err := o.deps.History.Last(ctx, key)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			slog.Warn("orchestrator: failed to read order history", "session", key, "error", err)
		}
		return history.OrderAttempt{}, false
	}
	return last, true
}
