// Package submitter fills in and submits the order form through a browser.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// State is a step of one automation run.
type State string

const (
	StateStart             State = "start"
	StateNavigateForm      State = "navigate_form"
	StateFillContact       State = "fill_contact"
	StateSelectOffering    State = "select_offering"
	StateSelectFixedOption State = "select_fixed_option"
	StateSubmit            State = "submit"
	StateConfirm           State = "confirm"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

var (
	ErrNoContact        = errors.New("contact value is not configured")
	ErrNoMatchingOption = errors.New("no visible option matches the requested quantity")
)

// Browser opens exclusive automation sessions.
type Browser interface {
	Open(ctx context.Context) (Page, error)
}

// Page is one open browser session. Indexes count matches of selector in
// document order, starting at 0.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector string, index int, value string) error
	Click(ctx context.Context, selector string, index int) error
	ClickText(ctx context.Context, selector, text string) error
	// VisibleTexts returns the trimmed text of the visible matches of selector.
	VisibleTexts(ctx context.Context, selector string) ([]string, error)
	// ClickVisible clicks the index-th visible match of selector.
	ClickVisible(ctx context.Context, selector string, index int) error
	Close() error
}

// Selectors locate the form controls.
type Selectors struct {
	TextInput string
	Listbox   string
	Option    string
	Radio     string
	Button    string
	// SubmitText is the label of the submit button.
	SubmitText string
	// FixedOption is the index of the radio that is always chosen.
	FixedOption int
}

// DefaultSelectors match a Google Form with a text field, one listbox per
// offering and a yes/no radio group answered "no".
var DefaultSelectors = Selectors{
	TextInput:   `input[type="text"]`,
	Listbox:     `div[role="listbox"]`,
	Option:      `div[role="option"]`,
	Radio:       `div[role="radiogroup"] div[role="radio"]`,
	Button:      `div[role="button"]`,
	SubmitText:  "Enviar",
	FixedOption: 1,
}

// Order is what to submit.
type Order struct {
	FormURL       string
	OfferingIndex int // 0-based listbox index
	Quantity      string
}

// AutomationError is a failed run. State is the step that failed.
type AutomationError struct {
	State     State
	Requested string
	Options   []string
	Err       error
}

func (e *AutomationError) Error() string {
	if errors.Is(e.Err, ErrNoMatchingOption) {
		return fmt.Sprintf("%s: no visible option equal to %q (visible options: [%s])",
			e.State, e.Requested, strings.Join(e.Options, ", "))
	}
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *AutomationError) Unwrap() error { return e.Err }

// Config holds submitter settings. Zero durations take defaults.
type Config struct {
	Contact      string
	Selectors    Selectors
	Settle       time.Duration
	SubmitSettle time.Duration
	Timeout      time.Duration
	// OnTransition, if set, observes every state change.
	OnTransition func(from, to State)
	// Sleep waits between steps; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Submitter struct {
	browser Browser
	cfg     Config
}

func New(b Browser, cfg Config) *Submitter {
	if cfg.Selectors == (Selectors{}) {
		cfg.Selectors = DefaultSelectors
	}
	if cfg.Settle <= 0 {
		cfg.Settle = time.Second
	}
	if cfg.SubmitSettle <= 0 {
		cfg.SubmitSettle = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Submitter{browser: b, cfg: cfg}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type step struct {
	state State
	run   func(ctx context.Context, p Page, o Order) error
}

func (s *Submitter) steps() []step {
	return []step{
		{StateNavigateForm, s.navigate},
		{StateFillContact, s.fillContact},
		{StateSelectOffering, s.selectOffering},
		{StateSelectFixedOption, s.selectFixedOption},
		{StateSubmit, s.submit},
		{StateConfirm, func(context.Context, Page, Order) error { return nil }},
	}
}

func (s *Submitter) transition(from, to State) {
	slog.Debug("submitter: transition", "from", from, "to", to)
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(from, to)
	}
}

// Submit runs the form automation once. The browser session is always
// closed before Submit returns. Failures are *AutomationError.
func (s *Submitter) Submit(ctx context.Context, o Order) error {
	state := StateStart
	fail := func(at State, cause error) error {
		s.transition(at, StateFailed)
		var ae *AutomationError
		if errors.As(cause, &ae) {
			return ae
		}
		return &AutomationError{State: at, Err: cause}
	}

	if s.cfg.Contact == "" {
		return fail(StateFillContact, ErrNoContact)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	page, err := s.browser.Open(ctx)
	if err != nil {
		return fail(state, fmt.Errorf("failed to open browser: %w", err))
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			slog.Warn("submitter: failed to close browser", "error", cerr)
		}
	}()

	for _, st := range s.steps() {
		s.transition(state, st.state)
		state = st.state
		if err := st.run(ctx, page, o); err != nil {
			slog.Error("submitter: step failed", "state", state, "form", o.FormURL, "error", err)
			return fail(state, err)
		}
	}
	s.transition(state, StateDone)
	slog.Info("submitter: order submitted", "form", o.FormURL, "offering", o.OfferingIndex, "quantity", o.Quantity, "elapsed", time.Since(start))
	return nil
}

func (s *Submitter) navigate(ctx context.Context, p Page, o Order) error {
	if err := p.Navigate(ctx, o.FormURL); err != nil {
		return err
	}
	return p.WaitVisible(ctx, s.cfg.Selectors.TextInput)
}

func (s *Submitter) fillContact(ctx context.Context, p Page, _ Order) error {
	return p.Fill(ctx, s.cfg.Selectors.TextInput, 0, s.cfg.Contact)
}

func (s *Submitter) selectOffering(ctx context.Context, p Page, o Order) error {
	sel := s.cfg.Selectors
	if err := p.Click(ctx, sel.Listbox, o.OfferingIndex); err != nil {
		return fmt.Errorf("failed to open listbox %d: %w", o.OfferingIndex, err)
	}
	if err := s.cfg.Sleep(ctx, s.cfg.Settle); err != nil {
		return err
	}
	options, err := p.VisibleTexts(ctx, sel.Option)
	if err != nil {
		return fmt.Errorf("failed to read options: %w", err)
	}
	idx := matchOption(options, o.Quantity)
	if idx < 0 {
		return &AutomationError{
			State:     StateSelectOffering,
			Requested: o.Quantity,
			Options:   options,
			Err:       ErrNoMatchingOption,
		}
	}
	slog.Debug("submitter: selecting option", "quantity", o.Quantity, "index", idx, "visible", options)
	return p.ClickVisible(ctx, sel.Option, idx)
}

// matchOption returns the index of the option exactly equal to want, or -1.
func matchOption(options []string, want string) int {
	for i, opt := range options {
		if opt == want {
			return i
		}
	}
	return -1
}

func (s *Submitter) selectFixedOption(ctx context.Context, p Page, _ Order) error {
	if err := p.Click(ctx, s.cfg.Selectors.Radio, s.cfg.Selectors.FixedOption); err != nil {
		return err
	}
	return s.cfg.Sleep(ctx, s.cfg.Settle)
}

func (s *Submitter) submit(ctx context.Context, p Page, _ Order) error {
	if err := p.ClickText(ctx, s.cfg.Selectors.Button, s.cfg.Selectors.SubmitText); err != nil {
		return err
	}
	return s.cfg.Sleep(ctx, s.cfg.SubmitSettle)
}
