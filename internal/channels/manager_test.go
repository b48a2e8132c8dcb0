package channels

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coopco/lunchbot/internal/bus"
)

// mockChannel is a test double for Channel.
type mockChannel struct {
	name    string
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	started bool
	err     error
}

func (m *mockChannel) Name() string { return m.name }
func (m *mockChannel) Start(_ context.Context) error {
	m.started = true
	return nil
}
func (m *mockChannel) Stop() error { return nil }
func (m *mockChannel) Send(msg bus.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}
func (m *mockChannel) IsAllowed(_ string) bool { return true }

func (m *mockChannel) sentCopy() []bus.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bus.OutboundMessage(nil), m.sent...)
}

func registerMock(name string) *mockChannel {
	mock := &mockChannel{name: name}
	Register(name, func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
		return mock, nil
	})
	return mock
}

func waitSent(t *testing.T, m *mockChannel, n int) []bus.OutboundMessage {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sent := m.sentCopy(); len(sent) >= n {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d", n, len(m.sentCopy()))
	return nil
}

func TestManagerAddChannel(t *testing.T) {
	const name = "test-channel-add"
	registerMock(name)

	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AddChannel failed: %v", err)
	}
	if names := mgr.Names(); len(names) != 1 || names[0] != name {
		t.Fatalf("Names = %v", names)
	}
}

func TestAddChannelUnknown(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel("no-such-channel-xyz", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for unknown channel name")
	}
}

func TestStartAllAndStopAll(t *testing.T) {
	const name = "test-start-stop"
	mock := registerMock(name)

	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	if err := mgr.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !mock.started {
		t.Error("expected channel to be started")
	}
	if err := mgr.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
}

func TestStartStopAllEmpty(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll on empty manager: %v", err)
	}
	if err := mgr.StopAll(); err != nil {
		t.Fatalf("StopAll on empty manager: %v", err)
	}
}

func TestOutboundDispatchViaBus(t *testing.T) {
	const name = "test-bus-dispatch"
	mock := registerMock(name)

	msgBus := bus.NewMessageBus(16)
	mgr := NewManager(msgBus)
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go msgBus.DispatchOutbound(ctx)

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "other-channel", Type: bus.TypeText, Content: "nope"})
	msgBus.PublishOutbound(bus.OutboundMessage{Channel: name, Type: bus.TypeChoices, Content: "pick"})
	msgBus.PublishOutbound(bus.OutboundMessage{Channel: name, Type: bus.TypeClearChoices, MessageRef: "7"})

	sent := waitSent(t, mock, 2)
	if len(sent) != 2 || sent[0].Type != bus.TypeChoices || sent[1].Type != bus.TypeClearChoices {
		t.Fatalf("unexpected dispatch %+v", sent)
	}
}

func TestAddChannelTwice(t *testing.T) {
	const name = "test-channel-twice"
	registerMock(name)

	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for a duplicate channel")
	}
	if names := mgr.Names(); len(names) != 1 {
		t.Fatalf("Names = %v", names)
	}
}

func TestDeliver(t *testing.T) {
	const name = "test-deliver"
	mock := registerMock(name)
	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	if err := mgr.Deliver(bus.OutboundMessage{Channel: "nowhere", ChatID: "1", Type: bus.TypeText}); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("Deliver to unknown channel: %v", err)
	}
	if err := mgr.Deliver(bus.OutboundMessage{Channel: name, Type: bus.TypeText, Content: "hi"}); err == nil {
		t.Fatal("expected error without a chat id")
	}
	if err := mgr.Deliver(bus.OutboundMessage{Channel: name, ChatID: "1", Type: bus.TypeClearChoices}); err == nil {
		t.Fatal("expected error for clear_choices without a message ref")
	}
	if err := mgr.Deliver(bus.OutboundMessage{Channel: name, ChatID: "1", Type: bus.TypeText, Content: "hi"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sent := mock.sentCopy(); len(sent) != 1 || sent[0].Content != "hi" {
		t.Fatalf("unexpected sends %+v", sent)
	}

	got := mgr.Failures()
	if got[bus.TypeText] != 1 || got[bus.TypeClearChoices] != 1 {
		t.Fatalf("Failures = %v", got)
	}
}

func TestDeliverSendError(t *testing.T) {
	const name = "test-deliver-error"
	mock := registerMock(name)
	mock.err = errors.New("boom")
	mgr := NewManager(bus.NewMessageBus(16))
	if err := mgr.AddChannel(name, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	err := mgr.Deliver(bus.OutboundMessage{Channel: name, ChatID: "1", Type: bus.TypeClearChoices, MessageRef: "7"})
	if !errors.Is(err, mock.err) {
		t.Fatalf("Deliver: %v", err)
	}
	if got := mgr.Failures()[bus.TypeClearChoices]; got != 1 {
		t.Fatalf("clear_choices failures = %d", got)
	}
}
