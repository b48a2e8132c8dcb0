// Package scheduler keeps at most one reminder job per session on a robfig
// cron runner. A firing job publishes a tick event on the bus.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/coopco/lunchbot/internal/bus"
)

// Source is the channel name stamped on scheduler ticks.
const Source = "scheduler"

// Publisher receives tick events.
type Publisher interface {
	PublishInbound(msg bus.InboundMessage) error
}

// ReminderJob is one armed reminder.
type ReminderJob struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"` // session key
	Channel     string    `json:"channel"`
	ChatID      string    `json:"chatId"`
	FiresAt     time.Time `json:"firesAt"`
	RuleVersion string    `json:"ruleVersion"`
}

type entry struct {
	id  robfigcron.EntryID
	job ReminderJob
}

type Service struct {
	cron      *robfigcron.Cron
	pub       Publisher
	storePath string
	now       func() time.Time
	mu        sync.Mutex
	jobs      map[string]entry
}

type Option func(*Service)

// WithStore persists the armed job table to a JSON file.
func WithStore(path string) Option {
	return func(s *Service) { s.storePath = path }
}

// WithClock overrides the clock used to compute FiresAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(pub Publisher, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		cron: robfigcron.New(robfigcron.WithLocation(loc)),
		pub:  pub,
		now:  time.Now,
		jobs: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins running jobs.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts the runner and waits for running jobs to return.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// Arm replaces the session's job with one following sched. The old job is
// removed and the new one added under the same lock, so a key never has two
// live jobs.
func (s *Service) Arm(channel, chatID string, sched robfigcron.Schedule, ruleVersion string) (ReminderJob, error) {
	if sched == nil {
		return ReminderJob{}, fmt.Errorf("nil schedule")
	}
	key := bus.Key(channel, chatID)
	job := ReminderJob{
		ID:          uuid.NewString(),
		Key:         key,
		Channel:     channel,
		ChatID:      chatID,
		FiresAt:     sched.Next(s.now()),
		RuleVersion: ruleVersion,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[key]; ok {
		s.cron.Remove(old.id)
		slog.Debug("scheduler: replaced job", "session", key, "old", old.job.ID)
	}
	id := s.cron.Schedule(sched, robfigcron.FuncJob(func() { s.fire(job) }))
	s.jobs[key] = entry{id: id, job: job}

	if err := s.saveToDisk(); err != nil {
		slog.Warn("scheduler: failed to persist jobs", "error", err)
	}
	slog.Info("scheduler: armed job", "session", key, "id", job.ID, "fires_at", job.FiresAt)
	return job, nil
}

func (s *Service) fire(job ReminderJob) {
	s.mu.Lock()
	cur, ok := s.jobs[job.Key]
	s.mu.Unlock()
	if !ok || cur.job.ID != job.ID {
		// Replaced or cancelled between scheduling and running.
		return
	}
	slog.Debug("scheduler: job fired", "session", job.Key, "id", job.ID)
	err := s.pub.PublishInbound(bus.InboundMessage{
		Kind:     bus.KindTick,
		Channel:  job.Channel,
		ChatID:   job.ChatID,
		SenderID: Source,
		Content:  job.ID,
	})
	if err != nil {
		slog.Warn("scheduler: failed to publish tick", "session", job.Key, "error", err)
	}
}

// Cancel removes the session's job. It reports whether one was live.
func (s *Service) Cancel(channel, chatID string) bool {
	key := bus.Key(channel, chatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[key]
	if !ok {
		return false
	}
	s.cron.Remove(e.id)
	delete(s.jobs, key)
	if err := s.saveToDisk(); err != nil {
		slog.Warn("scheduler: failed to persist jobs after cancel", "error", err)
	}
	slog.Info("scheduler: cancelled job", "session", key, "id", e.job.ID)
	return true
}

// Get returns the session's live job with FiresAt refreshed from the runner.
func (s *Service) Get(channel, chatID string) (ReminderJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[bus.Key(channel, chatID)]
	if !ok {
		return ReminderJob{}, false
	}
	return s.refresh(e), true
}

// List returns all live jobs ordered by session key.
func (s *Service) List() []ReminderJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]ReminderJob, 0, len(s.jobs))
	for _, e := range s.jobs {
		result = append(result, s.refresh(e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// refresh reads the next activation from the runner once it has started.
// Caller must hold s.mu.
func (s *Service) refresh(e entry) ReminderJob {
	job := e.job
	if next := s.cron.Entry(e.id).Next; !next.IsZero() {
		job.FiresAt = next
	}
	return job
}

// LoadFromDisk returns the jobs persisted by a previous run. The caller
// re-arms them with fresh schedules.
func (s *Service) LoadFromDisk() ([]ReminderJob, error) {
	if s.storePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job store: %w", err)
	}
	var store jobStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("failed to parse job store: %w", err)
	}
	return store.Jobs, nil
}

type jobStore struct {
	Jobs []ReminderJob `json:"jobs"`
}

// saveToDisk writes the job table. Caller must hold s.mu.
func (s *Service) saveToDisk() error {
	if s.storePath == "" {
		return nil
	}
	store := jobStore{Jobs: make([]ReminderJob, 0, len(s.jobs))}
	for _, e := range s.jobs {
		store.Jobs = append(store.Jobs, e.job)
	}
	sort.Slice(store.Jobs, func(i, j int) bool { return store.Jobs[i].Key < store.Jobs[j].Key })

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return os.WriteFile(s.storePath, data, 0o644)
}
