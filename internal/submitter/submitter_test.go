package submitter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fakePage records calls and serves a fixed set of visible options.
type fakePage struct {
	options  []string
	failOn   string
	calls    []string
	closed   int
	clickedV int
}

func (p *fakePage) record(call string) error {
	p.calls = append(p.calls, call)
	if p.failOn != "" && strings.HasPrefix(call, p.failOn) {
		return fmt.Errorf("%s: element not found", call)
	}
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	return p.record("navigate " + url)
}
func (p *fakePage) WaitVisible(_ context.Context, sel string) error {
	return p.record("wait " + sel)
}
func (p *fakePage) Fill(_ context.Context, sel string, i int, v string) error {
	return p.record(fmt.Sprintf("fill %s[%d]=%s", sel, i, v))
}
func (p *fakePage) Click(_ context.Context, sel string, i int) error {
	return p.record(fmt.Sprintf("click %s[%d]", sel, i))
}
func (p *fakePage) ClickText(_ context.Context, sel, text string) error {
	return p.record(fmt.Sprintf("clicktext %s~%s", sel, text))
}
func (p *fakePage) VisibleTexts(_ context.Context, sel string) ([]string, error) {
	if err := p.record("options " + sel); err != nil {
		return nil, err
	}
	return p.options, nil
}
func (p *fakePage) ClickVisible(_ context.Context, sel string, i int) error {
	p.clickedV = i
	return p.record(fmt.Sprintf("clickvisible %s[%d]", sel, i))
}
func (p *fakePage) Close() error {
	p.closed++
	return nil
}

type fakeBrowser struct {
	page    *fakePage
	openErr error
	opened  int
}

func (b *fakeBrowser) Open(context.Context) (Page, error) {
	b.opened++
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.page, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestSubmitter(b Browser, transitions *[]State) *Submitter {
	return New(b, Config{
		Contact: "3001234567",
		Sleep:   noSleep,
		OnTransition: func(_, to State) {
			if transitions != nil {
				*transitions = append(*transitions, to)
			}
		},
	})
}

func TestSubmitHappyPath(t *testing.T) {
	page := &fakePage{options: []string{"Choose", "1", "2", "10"}}
	var states []State
	s := newTestSubmitter(&fakeBrowser{page: page}, &states)

	err := s.Submit(context.Background(), Order{FormURL: "https://form.test", OfferingIndex: 1, Quantity: "1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	wantCalls := []string{
		"navigate https://form.test",
		`wait input[type="text"]`,
		`fill input[type="text"][0]=3001234567`,
		`click div[role="listbox"][1]`,
		`options div[role="option"]`,
		`clickvisible div[role="option"][1]`,
		`click div[role="radiogroup"] div[role="radio"][1]`,
		`clicktext div[role="button"]~Enviar`,
	}
	if !reflect.DeepEqual(page.calls, wantCalls) {
		t.Errorf("calls mismatch\n got: %q\nwant: %q", page.calls, wantCalls)
	}

	wantStates := []State{StateNavigateForm, StateFillContact, StateSelectOffering, StateSelectFixedOption, StateSubmit, StateConfirm, StateDone}
	if !reflect.DeepEqual(states, wantStates) {
		t.Errorf("states = %v, want %v", states, wantStates)
	}
	if page.closed != 1 {
		t.Errorf("expected page closed once, got %d", page.closed)
	}
}

func TestSubmitExactOptionMatch(t *testing.T) {
	page := &fakePage{options: []string{"Choose", "10", "1"}}
	s := newTestSubmitter(&fakeBrowser{page: page}, nil)
	if err := s.Submit(context.Background(), Order{FormURL: "u", Quantity: "1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if page.clickedV != 2 {
		t.Fatalf("expected the exact \"1\" option (index 2), clicked %d", page.clickedV)
	}
}

func TestSubmitNoMatchingOption(t *testing.T) {
	visible := []string{"Choose", "1", "2", "10"}
	page := &fakePage{options: visible}
	var states []State
	s := newTestSubmitter(&fakeBrowser{page: page}, &states)

	err := s.Submit(context.Background(), Order{FormURL: "u", OfferingIndex: 0, Quantity: "5"})
	var ae *AutomationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AutomationError, got %v", err)
	}
	if ae.State != StateSelectOffering {
		t.Errorf("State = %s", ae.State)
	}
	if ae.Requested != "5" {
		t.Errorf("Requested = %q", ae.Requested)
	}
	if !reflect.DeepEqual(ae.Options, visible) {
		t.Errorf("Options = %v, want %v", ae.Options, visible)
	}
	if !errors.Is(err, ErrNoMatchingOption) {
		t.Error("expected ErrNoMatchingOption in chain")
	}
	if !strings.Contains(err.Error(), "Choose, 1, 2, 10") {
		t.Errorf("error should list options: %v", err)
	}
	if states[len(states)-1] != StateFailed {
		t.Errorf("expected final state failed, got %v", states)
	}
	if page.closed != 1 {
		t.Errorf("expected page closed on failure, got %d", page.closed)
	}
}

func TestSubmitStepFailureClosesBrowser(t *testing.T) {
	tests := []struct {
		failOn string
		state  State
	}{
		{"navigate", StateNavigateForm},
		{"wait", StateNavigateForm},
		{"fill", StateFillContact},
		{"click div[role=\"listbox\"]", StateSelectOffering},
		{"click div[role=\"radiogroup\"]", StateSelectFixedOption},
		{"clicktext", StateSubmit},
	}
	for _, tt := range tests {
		t.Run(string(tt.state)+"/"+tt.failOn, func(t *testing.T) {
			page := &fakePage{options: []string{"1"}, failOn: tt.failOn}
			s := newTestSubmitter(&fakeBrowser{page: page}, nil)
			err := s.Submit(context.Background(), Order{FormURL: "u", Quantity: "1"})
			var ae *AutomationError
			if !errors.As(err, &ae) {
				t.Fatalf("expected AutomationError, got %v", err)
			}
			if ae.State != tt.state {
				t.Errorf("State = %s, want %s", ae.State, tt.state)
			}
			if page.closed != 1 {
				t.Errorf("expected page closed once, got %d", page.closed)
			}
		})
	}
}

func TestSubmitRequiresContact(t *testing.T) {
	b := &fakeBrowser{page: &fakePage{}}
	s := New(b, Config{Sleep: noSleep})
	err := s.Submit(context.Background(), Order{FormURL: "u", Quantity: "1"})
	if !errors.Is(err, ErrNoContact) {
		t.Fatalf("expected ErrNoContact, got %v", err)
	}
	var ae *AutomationError
	if !errors.As(err, &ae) || ae.State != StateFillContact {
		t.Fatalf("expected failure in fill_contact, got %v", err)
	}
	if b.opened != 0 {
		t.Error("browser must not be opened without a contact value")
	}
}

func TestSubmitOpenFailure(t *testing.T) {
	s := newTestSubmitter(&fakeBrowser{openErr: errors.New("chrome not found")}, nil)
	err := s.Submit(context.Background(), Order{FormURL: "u", Quantity: "1"})
	var ae *AutomationError
	if !errors.As(err, &ae) || ae.State != StateStart {
		t.Fatalf("expected failure at start, got %v", err)
	}
}

func TestSubmitSettleHonoursContext(t *testing.T) {
	page := &fakePage{options: []string{"1"}}
	s := New(&fakeBrowser{page: page}, Config{Contact: "x", Settle: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Submit(ctx, Order{FormURL: "u", Quantity: "1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if page.closed != 1 {
		t.Errorf("expected page closed, got %d", page.closed)
	}
}
