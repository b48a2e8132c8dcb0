// Package heartbeat writes a periodic status file so a supervisor can tell
// the bot is alive and what it is holding.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshot is one beat's view of the bot.
type Snapshot struct {
	Time         time.Time  `json:"time"`
	Sessions     int        `json:"sessions"`
	Reminders    int        `json:"reminders"`
	NextReminder *time.Time `json:"nextReminder,omitempty"`
	Tasks        []string   `json:"tasks"`
	// DeliveryFailures counts failed outbound messages by type.
	DeliveryFailures map[string]int `json:"deliveryFailures,omitempty"`
}

type Service struct {
	probe    func() Snapshot
	path     string
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
	stopCh   chan struct{}
	running  bool
}

type Config struct {
	// Probe fills everything but Time.
	Probe    func() Snapshot
	Path     string
	Interval time.Duration
	Now      func() time.Time
}

func NewService(cfg Config) *Service {
	interval := cfg.Interval
	if interval == 0 {
		interval = time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		probe:    cfg.Probe,
		path:     cfg.Path,
		interval: interval,
		now:      now,
		stopCh:   make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.tick()
		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// TriggerNow beats once, synchronously.
func (s *Service) TriggerNow() error {
	return s.beat()
}

func (s *Service) tick() {
	if err := s.beat(); err != nil {
		slog.Warn("heartbeat: failed to write status", "path", s.path, "error", err)
	}
}

func (s *Service) beat() error {
	var snap Snapshot
	if s.probe != nil {
		snap = s.probe()
	}
	snap.Time = s.now()
	if snap.Tasks == nil {
		snap.Tasks = []string{}
	}
	slog.Debug("heartbeat: beat", "sessions", snap.Sessions, "reminders", snap.Reminders, "tasks", len(snap.Tasks))
	if s.path == "" {
		return nil
	}
	return writeAtomic(s.path, snap)
}

// writeAtomic replaces path so readers never see a partial file.
func writeAtomic(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace status: %w", err)
	}
	return nil
}

// Read loads a status file written by a running bot.
func Read(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("failed to read status: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to parse status: %w", err)
	}
	return snap, nil
}
