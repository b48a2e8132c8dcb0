package session

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/coopco/lunchbot/internal/resolver"
)

func TestNewSession(t *testing.T) {
	m := NewManager()
	s, created := m.GetOrCreate("telegram:1", "telegram", "1")
	if s == nil || !created {
		t.Fatal("expected a new session")
	}
	if s.State != Idle {
		t.Fatalf("expected Idle, got %s", s.State)
	}
	if s.Key != "telegram:1" || s.Channel != "telegram" || s.ChatID != "1" {
		t.Fatalf("unexpected routing %+v", s)
	}
	again, created := m.GetOrCreate("telegram:1", "telegram", "1")
	if again != s || created {
		t.Fatal("expected the cached session")
	}
}

func TestStopResetsAndBumpsFlow(t *testing.T) {
	s, _ := NewManager().GetOrCreate("k", "c", "1")
	s.Transition(PresentingOfferings)
	s.PendingFormURL = "https://form"
	s.Offerings = []resolver.Offering{{Label: "MENÚ 1"}}
	s.ScheduledJobID = "job"
	s.PromptedAt = time.Now()
	flow := s.Flow

	s.Stop()
	if s.State != Idle || s.PendingFormURL != "" || s.Offerings != nil || s.ScheduledJobID != "" || !s.PromptedAt.IsZero() {
		t.Fatalf("Stop left state behind: %+v", s)
	}
	if s.Flow != flow+1 {
		t.Fatalf("Flow = %d, want %d", s.Flow, flow+1)
	}
}

func TestResetKeepsFlow(t *testing.T) {
	s, _ := NewManager().GetOrCreate("k", "c", "1")
	s.Transition(Submitting)
	s.Reset()
	if s.State != Idle || s.Flow != 0 {
		t.Fatalf("unexpected session after reset: %+v", s)
	}
}

func TestOffering(t *testing.T) {
	s := &Session{Offerings: []resolver.Offering{{Label: "MENÚ 1"}, {Label: "MENÚ 2"}}}
	if o, ok := s.Offering(1); !ok || o.Label != "MENÚ 2" {
		t.Errorf("Offering(1) = %+v, %v", o, ok)
	}
	for _, i := range []int{-1, 2} {
		if _, ok := s.Offering(i); ok {
			t.Errorf("Offering(%d) should be out of range", i)
		}
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat := fmt.Sprint(i % 5)
			m.GetOrCreate("telegram:"+chat, "telegram", chat)
		}(i)
	}
	wg.Wait()

	want := []string{"telegram:0", "telegram:1", "telegram:2", "telegram:3", "telegram:4"}
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if m.Len() != 5 {
		t.Fatalf("Len() = %d", m.Len())
	}
}
