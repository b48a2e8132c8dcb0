package channels

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/coopco/lunchbot/internal/bus"
)

// Channel is the interface all chat platform channels must implement.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	// Send performs one outbound action: text, image, choices or clearing
	// the choices of an earlier message.
	Send(msg bus.OutboundMessage) error
	IsAllowed(senderID string) bool
}

// ChannelFactory creates a Channel from JSON config and a MessageBus.
type ChannelFactory func(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error)

var registry = map[string]ChannelFactory{}

// Register adds a channel factory to the registry.
func Register(name string, factory ChannelFactory) {
	registry[name] = factory
}

// GetFactory returns the factory for a channel name.
func GetFactory(name string) (ChannelFactory, bool) {
	f, ok := registry[name]
	return f, ok
}

// RegisteredNames returns all registered channel names, sorted.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// allowList admits everyone when empty.
type allowList map[string]bool

func newAllowList(ids []string) allowList {
	a := make(allowList, len(ids))
	for _, id := range ids {
		a[id] = true
	}
	return a
}

func (a allowList) allows(id string) bool {
	return len(a) == 0 || a[id]
}

// textCommand turns a chat message like "/start" or "!status" into a command
// event. Anything else reports false.
func textCommand(channel, chatID, senderID, text string) (bus.InboundMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '/' && text[0] != '!') {
		return bus.InboundMessage{}, false
	}
	word := strings.Fields(text[1:])
	if len(word) == 0 {
		return bus.InboundMessage{}, false
	}
	// Telegram group commands carry the bot name: /start@lunchbot.
	name, _, _ := strings.Cut(word[0], "@")
	msg := bus.CommandEvent(channel, chatID, senderID, strings.ToLower(name))
	return msg, msg.Kind != bus.KindUnknown
}

// imageFallback is the text sent when an image cannot be shown.
func imageFallback(caption string) string {
	return caption + "\n(Image not available)"
}
