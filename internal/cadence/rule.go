// Package cadence decides which calendar days get an order reminder.
package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday numbers days Monday = 0 through Sunday = 6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdayNames[d]
}

// Short returns the three letter name, e.g. "Mon".
func (d Weekday) Short() string {
	return d.String()[:3]
}

// WeekdayOf converts t's weekday to Monday-based numbering.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// WeekdaySet is a set of weekdays.
type WeekdaySet uint8

// NewWeekdaySet builds a set from days.
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

func (s WeekdaySet) Has(d Weekday) bool { return s&(1<<uint(d)) != 0 }

func (s WeekdaySet) Len() int {
	n := 0
	for d := Monday; d <= Sunday; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days returns the members in week order.
func (s WeekdaySet) Days() []Weekday {
	var out []Weekday
	for d := Monday; d <= Sunday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String returns a comma separated list of short names ("Mon,Tue,Wed").
func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.Short()
	}
	return strings.Join(names, ",")
}

// span renders the set as "Monday-Friday" when contiguous, else as a list.
func (s WeekdaySet) span(name func(Weekday) string) string {
	days := s.Days()
	if len(days) == 0 {
		return ""
	}
	contiguous := len(days) > 1
	for i := 1; i < len(days); i++ {
		if days[i] != days[i-1]+1 {
			contiguous = false
			break
		}
	}
	if contiguous {
		return name(days[0]) + "-" + name(days[len(days)-1])
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = name(d)
	}
	return strings.Join(names, ", ")
}

// Span renders the set with short names, "Mon-Wed" when contiguous.
func (s WeekdaySet) Span() string { return s.span(Weekday.Short) }

// List renders the set as "Mon, Tue, Wed".
func (s WeekdaySet) List() string { return strings.ReplaceAll(s.String(), ",", ", ") }

var weekdayAliases = map[string]Weekday{
	"mon": Monday, "monday": Monday, "lun": Monday, "lunes": Monday,
	"tue": Tuesday, "tuesday": Tuesday, "mar": Tuesday, "martes": Tuesday,
	"wed": Wednesday, "wednesday": Wednesday, "mie": Wednesday, "miercoles": Wednesday, "miércoles": Wednesday,
	"thu": Thursday, "thursday": Thursday, "jue": Thursday, "jueves": Thursday,
	"fri": Friday, "friday": Friday, "vie": Friday, "viernes": Friday,
	"sat": Saturday, "saturday": Saturday, "sab": Saturday, "sabado": Saturday, "sábado": Saturday,
	"sun": Sunday, "sunday": Sunday, "dom": Sunday, "domingo": Sunday,
}

// ParseWeekdays parses weekday names (English or Spanish, full or abbreviated).
func ParseWeekdays(names []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, n := range names {
		d, ok := weekdayAliases[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", n)
		}
		s |= NewWeekdaySet(d)
	}
	return s, nil
}

// WeekOfMonth returns the 1-based index of the Monday-aligned week containing t.
func WeekOfMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return (t.Day()-1+int(WeekdayOf(first)))/7 + 1
}

const (
	defaultNormal      = WeekdaySet(1<<Monday | 1<<Tuesday | 1<<Wednesday)
	defaultSpecial     = WeekdaySet(1<<Monday | 1<<Tuesday | 1<<Wednesday | 1<<Thursday | 1<<Friday)
	defaultSpecialWeek = 3
)

// Rule maps dates to reminder days. A date in a special week is tested
// against the special weekdays, every other date against the normal ones.
// A Rule is immutable once built.
type Rule struct {
	normal      WeekdaySet
	special     WeekdaySet
	specialWeek func(time.Time) bool
	weekLabel   string
}

// Option configures a Rule.
type Option func(*Rule)

func WithNormalWeekdays(s WeekdaySet) Option {
	return func(r *Rule) { r.normal = s }
}

func WithSpecialWeekdays(s WeekdaySet) Option {
	return func(r *Rule) { r.special = s }
}

// WithSpecialWeek marks week-of-month n as the special week.
func WithSpecialWeek(n int) Option {
	return func(r *Rule) {
		r.specialWeek = func(t time.Time) bool { return WeekOfMonth(t) == n }
		r.weekLabel = strconv.Itoa(n)
	}
}

// WithSpecialWeekSelector replaces the special week test. label is used in Version.
func WithSpecialWeekSelector(fn func(time.Time) bool, label string) Option {
	return func(r *Rule) {
		r.specialWeek = fn
		r.weekLabel = label
	}
}

// NewRule builds a Rule. Both weekday sets must be non-empty.
func NewRule(opts ...Option) (*Rule, error) {
	r := &Rule{normal: defaultNormal, special: defaultSpecial}
	WithSpecialWeek(defaultSpecialWeek)(r)
	for _, opt := range opts {
		opt(r)
	}
	if r.normal == 0 {
		return nil, fmt.Errorf("normal weekdays must not be empty")
	}
	if r.special == 0 {
		return nil, fmt.Errorf("special weekdays must not be empty")
	}
	if r.specialWeek == nil {
		return nil, fmt.Errorf("special week selector must not be nil")
	}
	return r, nil
}

// DefaultRule is Mon-Wed on normal weeks and Mon-Fri on the third week.
func DefaultRule() *Rule {
	r, _ := NewRule()
	return r
}

// IsSpecial reports whether t falls in the special week.
func (r *Rule) IsSpecial(t time.Time) bool { return r.specialWeek(t) }

// Weekdays returns the policy that applies to t.
func (r *Rule) Weekdays(t time.Time) WeekdaySet {
	if r.IsSpecial(t) {
		return r.special
	}
	return r.normal
}

func (r *Rule) Normal() WeekdaySet  { return r.normal }
func (r *Rule) Special() WeekdaySet { return r.special }

// Qualifies reports whether t is a reminder day.
func (r *Rule) Qualifies(t time.Time) bool {
	return r.Weekdays(t).Has(WeekdayOf(t))
}

// NextQualifyingDate returns the first qualifying date in from+1 .. from+7,
// keeping from's clock time. If none qualifies it returns the first Monday
// after that window.
func (r *Rule) NextQualifyingDate(from time.Time) time.Time {
	for i := 1; i <= 7; i++ {
		d := from.AddDate(0, 0, i)
		if r.Qualifies(d) {
			return d
		}
	}
	end := from.AddDate(0, 0, 7)
	ahead := (7 - int(WeekdayOf(end))) % 7
	if ahead == 0 {
		ahead = 7
	}
	return end.AddDate(0, 0, ahead)
}

// Version identifies the rule's parameters.
func (r *Rule) Version() string {
	return fmt.Sprintf("normal=%s;special=%s;week=%s", r.normal, r.special, r.weekLabel)
}

// Describe returns the schedule in effect on t, e.g. "3 days per week (Monday-Wednesday)".
func (r *Rule) Describe(t time.Time) string {
	s := r.Weekdays(t)
	return fmt.Sprintf("%d days per week (%s)", s.Len(), s.span(Weekday.String))
}

// DescribeShort is Describe in the compact form "3 days/week (Mon-Wed)".
func (r *Rule) DescribeShort(t time.Time) string {
	s := r.Weekdays(t)
	return fmt.Sprintf("%d days/week (%s)", s.Len(), s.span(Weekday.Short))
}

var ordinals = map[string]string{"1": "First", "2": "Second", "3": "Third", "4": "Fourth", "5": "Fifth", "6": "Sixth"}

// SpecialWeekName names the special week for display, e.g. "Third week".
func (r *Rule) SpecialWeekName() string {
	if o, ok := ordinals[r.weekLabel]; ok {
		return o + " week"
	}
	return r.weekLabel + " week"
}
