package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coopco/lunchbot/internal/bus"
)

// ErrNoChannel is returned by Deliver when the message names a channel that
// is not configured.
var ErrNoChannel = errors.New("no channel for outbound message")

// Manager owns the configured chat channels and routes the bot's outbound
// messages to them by name.
type Manager struct {
	bus *bus.MessageBus

	mu       sync.Mutex
	byName   map[string]Channel
	order    []string
	failures map[bus.OutboundType]int
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	m := &Manager{
		bus:      msgBus,
		byName:   make(map[string]Channel),
		failures: make(map[bus.OutboundType]int),
	}
	msgBus.Subscribe("", func(msg bus.OutboundMessage) {
		_ = m.Deliver(msg)
	})
	return m
}

// AddChannel builds a channel from its registered factory. Each name may be
// added once.
func (m *Manager) AddChannel(name string, cfgJSON json.RawMessage) error {
	factory, ok := GetFactory(name)
	if !ok {
		return fmt.Errorf("no factory registered for channel %q", name)
	}
	m.mu.Lock()
	_, dup := m.byName[name]
	m.mu.Unlock()
	if dup {
		return fmt.Errorf("channel %q already added", name)
	}
	ch, err := factory(cfgJSON, m.bus)
	if err != nil {
		return fmt.Errorf("failed to create channel %q: %w", name, err)
	}
	m.mu.Lock()
	m.byName[name] = ch
	m.order = append(m.order, name)
	m.mu.Unlock()
	return nil
}

func (m *Manager) snapshot() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	chs := make([]Channel, 0, len(m.order))
	for _, name := range m.order {
		chs = append(chs, m.byName[name])
	}
	return chs
}

// StartAll starts the channels in the order they were added.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, ch := range m.snapshot() {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("failed to start channel %q: %w", ch.Name(), err)
		}
		slog.Info("channels: started", "channel", ch.Name())
	}
	return nil
}

// StopAll stops every channel and returns the first error.
func (m *Manager) StopAll() error {
	var firstErr error
	for _, ch := range m.snapshot() {
		if err := ch.Stop(); err != nil {
			slog.Error("channels: failed to stop", "channel", ch.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Names lists the configured channels in the order they were added.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Deliver sends msg on its channel. A failed clear_choices only leaves stale
// buttons behind, so it is logged at Warn; other failures lose a message the
// user was meant to see.
func (m *Manager) Deliver(msg bus.OutboundMessage) error {
	m.mu.Lock()
	ch, ok := m.byName[msg.Channel]
	m.mu.Unlock()
	if !ok {
		slog.Warn("channels: no channel for outbound message", "channel", msg.Channel, "type", msg.Type)
		return fmt.Errorf("%w: %q", ErrNoChannel, msg.Channel)
	}
	if msg.ChatID == "" {
		return m.failed(msg, errors.New("missing chat id"))
	}
	if msg.Type == bus.TypeClearChoices && msg.MessageRef == "" {
		return m.failed(msg, errors.New("missing message ref"))
	}
	if err := ch.Send(msg); err != nil {
		return m.failed(msg, err)
	}
	return nil
}

func (m *Manager) failed(msg bus.OutboundMessage, err error) error {
	m.mu.Lock()
	m.failures[msg.Type]++
	m.mu.Unlock()

	level := slog.LevelError
	if msg.Type == bus.TypeClearChoices {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "channels: delivery failed",
		"channel", msg.Channel, "chatID", msg.ChatID, "type", msg.Type, "error", err)
	return fmt.Errorf("channels: deliver %s to %s: %w", msg.Type, msg.Channel, err)
}

// Failures reports failed deliveries per message type since start.
func (m *Manager) Failures() map[bus.OutboundType]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[bus.OutboundType]int, len(m.failures))
	for k, v := range m.failures {
		out[k] = v
	}
	return out
}
