package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/coopco/lunchbot/internal/bus"
)

func init() {
	Register("discord", newDiscordChannel)
}

// discordRowSize is the most buttons Discord accepts in one action row.
const discordRowSize = 5

type discordConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

type DiscordChannel struct {
	session      *discordgo.Session
	bus          *bus.MessageBus
	allowedUsers allowList
}

func newDiscordChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var dcfg discordConfig
	if err := json.Unmarshal(cfg, &dcfg); err != nil {
		return nil, fmt.Errorf("failed to parse discord config: %w", err)
	}
	session, err := discordgo.New("Bot " + dcfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordChannel{
		session:      session,
		bus:          msgBus,
		allowedUsers: newAllowList(dcfg.AllowedUsers),
	}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if msg, ok := c.messageEvent(m); ok {
			c.publish(msg)
		}
	})
	c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		msg, ok := c.interactionEvent(i)
		if !ok {
			return
		}
		// Acknowledge without a visible reply; the bot answers with new messages.
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
		if err != nil {
			slog.Warn("discord: failed to acknowledge interaction", "error", err)
		}
		c.publish(msg)
	})
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: failed to open websocket: %w", err)
	}
	return nil
}

func (c *DiscordChannel) messageEvent(m *discordgo.MessageCreate) (bus.InboundMessage, bool) {
	if m.Author == nil || m.Author.Bot {
		return bus.InboundMessage{}, false
	}
	if !c.IsAllowed(m.Author.ID) {
		slog.Warn("discord: message from disallowed user", "userID", m.Author.ID)
		return bus.InboundMessage{}, false
	}
	return textCommand("discord", m.ChannelID, m.Author.ID, m.Content)
}

func (c *DiscordChannel) interactionEvent(i *discordgo.InteractionCreate) (bus.InboundMessage, bool) {
	if i.Type != discordgo.InteractionMessageComponent {
		return bus.InboundMessage{}, false
	}
	var userID string
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	}
	if !c.IsAllowed(userID) {
		slog.Warn("discord: interaction from disallowed user", "userID", userID)
		return bus.InboundMessage{}, false
	}
	var ref string
	if i.Message != nil {
		ref = i.Message.ID
	}
	return bus.CallbackEvent("discord", i.ChannelID, userID, i.MessageComponentData().CustomID, ref), true
}

func (c *DiscordChannel) publish(msg bus.InboundMessage) {
	if err := c.bus.PublishInbound(msg); err != nil {
		slog.Warn("discord: failed to publish inbound", "error", err)
	}
}

func (c *DiscordChannel) Stop() error {
	return c.session.Close()
}

func (c *DiscordChannel) Send(msg bus.OutboundMessage) error {
	var err error
	switch msg.Type {
	case bus.TypeImage:
		_, err = c.session.ChannelMessageSendEmbed(msg.ChatID, imageEmbed(msg))
	case bus.TypeChoices:
		_, err = c.session.ChannelMessageSendComplex(msg.ChatID, &discordgo.MessageSend{
			Content:    msg.Content,
			Components: buttonRows(msg.Choices),
		})
	case bus.TypeClearChoices:
		empty := []discordgo.MessageComponent{}
		_, err = c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         msg.MessageRef,
			Channel:    msg.ChatID,
			Components: &empty,
		})
	default:
		_, err = c.session.ChannelMessageSend(msg.ChatID, msg.Content)
	}
	if err != nil {
		return fmt.Errorf("discord: failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func imageEmbed(msg bus.OutboundMessage) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: msg.Content,
		Image:       &discordgo.MessageEmbedImage{URL: msg.ImageURL},
	}
}

func buttonRows(choices []bus.Choice) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(choices); start += discordRowSize {
		end := min(start+discordRowSize, len(choices))
		buttons := make([]discordgo.MessageComponent, 0, end-start)
		for _, ch := range choices[start:end] {
			buttons = append(buttons, discordgo.Button{
				Label:    ch.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: ch.Token,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

func (c *DiscordChannel) IsAllowed(senderID string) bool {
	return c.allowedUsers.allows(senderID)
}
