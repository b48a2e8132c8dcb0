package session

import (
	"sort"
	"sync"
	"time"

	"github.com/coopco/lunchbot/internal/resolver"
)

// State is a step of the ordering conversation.
type State string

const (
	Idle                  State = "idle"
	AwaitingYesNo         State = "awaiting_yes_no"
	ResolvingAvailability State = "resolving_availability"
	PresentingOfferings   State = "presenting_offerings"
	Submitting            State = "submitting"
)

// Session holds one conversation's ordering state. It is owned by the
// session's event loop and must not be touched from other goroutines.
type Session struct {
	Key     string
	Channel string
	ChatID  string

	State          State
	PendingFormURL string
	Offerings      []resolver.Offering
	ScheduledJobID string
	// Flow increments whenever in-flight work must be disowned.
	Flow uint64
	// PromptedAt is when the current flow's order prompt went out.
	PromptedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition moves the session to s.
func (s *Session) Transition(to State) {
	s.State = to
	s.UpdatedAt = time.Now()
}

// Reset returns the session to Idle and clears the pending order.
func (s *Session) Reset() {
	s.PendingFormURL = ""
	s.Offerings = nil
	s.PromptedAt = time.Time{}
	s.Transition(Idle)
}

// Stop resets the session and disowns any in-flight work.
func (s *Session) Stop() {
	s.Flow++
	s.ScheduledJobID = ""
	s.Reset()
}

// Offering returns the pending offering at i.
func (s *Session) Offering(i int) (resolver.Offering, bool) {
	if i < 0 || i >= len(s.Offerings) {
		return resolver.Offering{}, false
	}
	return s.Offerings[i], true
}

// Manager keeps sessions in memory, keyed by "channel:chatID".
type Manager struct {
	cache map[string]*Session
	mu    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{cache: make(map[string]*Session)}
}

// GetOrCreate returns the existing session or a new Idle one.
func (m *Manager) GetOrCreate(key, channel, chatID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s, false
	}
	now := time.Now()
	s := &Session{
		Key:       key,
		Channel:   channel,
		ChatID:    chatID,
		State:     Idle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.cache[key] = s
	return s, true
}

// Get returns the session for key, if any.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.cache[key]
	return s, ok
}

// Keys returns the known session keys in order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.cache))
	for k := range m.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}
