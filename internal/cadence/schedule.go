package cadence

import (
	"fmt"
	"time"
)

// maxScan bounds the search for a qualifying day in ReminderSchedule.
const maxScan = 8

// ReminderSchedule fires at a fixed clock time on qualifying days only.
// It satisfies robfig/cron's Schedule interface.
type ReminderSchedule struct {
	Rule     *Rule
	Hour     int
	Minute   int
	Location *time.Location
	// NotBefore, when set, holds back every activation earlier than it.
	NotBefore time.Time
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return hour, minute, nil
}

func (s ReminderSchedule) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s ReminderSchedule) at(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), s.Hour, s.Minute, 0, 0, s.loc())
}

// Next returns the next reminder instant strictly after t.
func (s ReminderSchedule) Next(t time.Time) time.Time {
	if t.Before(s.NotBefore) {
		t = s.NotBefore.Add(-time.Nanosecond)
	}
	t = t.In(s.loc())
	today := s.at(t)
	if today.After(t) && s.Rule.Qualifies(today) {
		return today
	}
	d := today
	for i := 0; i < maxScan; i++ {
		d = s.Rule.NextQualifyingDate(d)
		if s.Rule.Qualifies(d) {
			return s.at(d)
		}
	}
	return time.Time{}
}

// NextReminder is the reminder instant on the next qualifying date after now's
// calendar day. Used for "I'll ask you again" notices once today's flow is done.
func (s ReminderSchedule) NextReminder(now time.Time) time.Time {
	d := s.Rule.NextQualifyingDate(s.at(now.In(s.loc())))
	return s.at(d)
}

// After returns s held back until the next qualifying date after now, so a
// flow finished today is not prompted again before tomorrow's reminder.
func (s ReminderSchedule) After(now time.Time) ReminderSchedule {
	s.NotBefore = s.NextReminder(now)
	return s
}
