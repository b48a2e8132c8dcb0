package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coopco/lunchbot/internal/bus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

func init() {
	Register("slack", newSlackChannel)
}

type slackConfig struct {
	BotToken     string   `json:"botToken"`
	AppToken     string   `json:"appToken"`
	AllowedUsers []string `json:"allowedUsers"`
}

// slackAPI is the part of *slack.Client the channel uses.
type slackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// SlackChannel implements Channel for Slack via socket mode.
type SlackChannel struct {
	client       slackAPI
	socketClient *socketmode.Client
	bus          *bus.MessageBus
	allowedUsers allowList

	// prompts keeps the text of choice messages by timestamp so the
	// buttons can be removed while the question stays visible.
	mu      sync.Mutex
	prompts map[string]string
}

func newSlackChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var c slackConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	client := slack.New(c.BotToken, slack.OptionAppLevelToken(c.AppToken))
	socketClient := socketmode.New(client)
	return &SlackChannel{
		client:       client,
		socketClient: socketClient,
		bus:          msgBus,
		allowedUsers: newAllowList(c.AllowedUsers),
		prompts:      make(map[string]string),
	}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	go func() {
		for evt := range c.socketClient.Events {
			if evt.Request != nil {
				c.socketClient.Ack(*evt.Request)
			}
			if msg, ok := c.socketEvent(evt); ok {
				if err := c.bus.PublishInbound(msg); err != nil {
					slog.Warn("slack: failed to publish inbound", "error", err)
				}
			}
		}
	}()
	go func() {
		if err := c.socketClient.RunContext(ctx); err != nil && ctx.Err() == nil {
			slog.Error("slack: socket mode stopped", "error", err)
		}
	}()
	return nil
}

// socketEvent maps a socket mode event to an inbound event: slash commands
// and "!command" messages to commands, button presses to callbacks.
func (c *SlackChannel) socketEvent(evt socketmode.Event) (bus.InboundMessage, bool) {
	switch evt.Type {
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok || !c.allowed(cmd.UserID) {
			return bus.InboundMessage{}, false
		}
		return textCommand("slack", cmd.ChannelID, cmd.UserID, cmd.Command)

	case socketmode.EventTypeInteractive:
		cb, ok := evt.Data.(slack.InteractionCallback)
		if !ok || cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
			return bus.InboundMessage{}, false
		}
		if !c.allowed(cb.User.ID) {
			return bus.InboundMessage{}, false
		}
		action := cb.ActionCallback.BlockActions[0]
		return bus.CallbackEvent("slack", cb.Channel.ID, cb.User.ID, action.Value, cb.Container.MessageTs), true

	case socketmode.EventTypeEventsAPI:
		eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || eventsAPI.Type != slackevents.CallbackEvent {
			return bus.InboundMessage{}, false
		}
		inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
		// skip bot messages
		if !ok || inner.BotID != "" || !c.allowed(inner.User) {
			return bus.InboundMessage{}, false
		}
		return textCommand("slack", inner.Channel, inner.User, inner.Text)
	}
	return bus.InboundMessage{}, false
}

func (c *SlackChannel) allowed(user string) bool {
	if c.IsAllowed(user) {
		return true
	}
	slog.Warn("slack: event from disallowed user", "user", user)
	return false
}

func (c *SlackChannel) Stop() error { return nil }

func (c *SlackChannel) Send(msg bus.OutboundMessage) error {
	switch msg.Type {
	case bus.TypeImage:
		_, _, err := c.client.PostMessage(msg.ChatID,
			slack.MsgOptionText(msg.Content, false),
			slack.MsgOptionBlocks(
				slack.NewSectionBlock(plainText(msg.Content), nil, nil),
				slack.NewImageBlock(msg.ImageURL, msg.Content, "", nil),
			),
		)
		if err != nil {
			slog.Warn("slack: failed to post image, falling back to text", "url", msg.ImageURL, "error", err)
			return c.postText(msg.ChatID, imageFallback(msg.Content))
		}
		return nil

	case bus.TypeChoices:
		_, ts, err := c.client.PostMessage(msg.ChatID,
			slack.MsgOptionText(msg.Content, false),
			slack.MsgOptionBlocks(choiceBlocks(msg.Content, msg.Choices)...),
		)
		if err != nil {
			return fmt.Errorf("slack: post choices: %w", err)
		}
		c.mu.Lock()
		c.prompts[ts] = msg.Content
		c.mu.Unlock()
		return nil

	case bus.TypeClearChoices:
		c.mu.Lock()
		text, ok := c.prompts[msg.MessageRef]
		delete(c.prompts, msg.MessageRef)
		c.mu.Unlock()
		if !ok {
			// The prompt predates this process; its text is unknown.
			text = "Selection received."
		}
		_, _, _, err := c.client.UpdateMessage(msg.ChatID, msg.MessageRef,
			slack.MsgOptionText(text, false),
			slack.MsgOptionBlocks(slack.NewSectionBlock(plainText(text), nil, nil)),
		)
		if err != nil {
			return fmt.Errorf("slack: clear choices: %w", err)
		}
		return nil

	default:
		return c.postText(msg.ChatID, msg.Content)
	}
}

func (c *SlackChannel) postText(channelID, text string) error {
	_, _, err := c.client.PostMessage(channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func plainText(s string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, s, false, false)
}

func choiceBlocks(prompt string, choices []bus.Choice) []slack.Block {
	buttons := make([]slack.BlockElement, len(choices))
	for i, ch := range choices {
		buttons[i] = slack.NewButtonBlockElement(ch.Token, ch.Token, plainText(ch.Label))
	}
	return []slack.Block{
		slack.NewSectionBlock(plainText(prompt), nil, nil),
		slack.NewActionBlock("choices", buttons...),
	}
}

func (c *SlackChannel) IsAllowed(senderID string) bool {
	return c.allowedUsers.allows(senderID)
}
