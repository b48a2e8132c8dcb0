package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/coopco/lunchbot/internal/bus"
)

func init() {
	Register("telegram", newTelegramChannel)
}

type telegramConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

// telegramAPI is the part of *tgbotapi.BotAPI the channel uses.
type telegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type TelegramChannel struct {
	bot          telegramAPI
	bus          *bus.MessageBus
	allowedUsers allowList
	stopCh       chan struct{}
}

func newTelegramChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var tcfg telegramConfig
	if err := json.Unmarshal(cfg, &tcfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	if tcfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	bot, err := tgbotapi.NewBotAPI(tcfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("telegram: authorized", "bot", bot.Self.UserName)
	return &TelegramChannel{
		bot:          bot,
		bus:          msgBus,
		allowedUsers: newAllowList(tcfg.AllowedUsers),
		stopCh:       make(chan struct{}),
	}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				c.handleUpdate(update)
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case <-c.stopCh:
				c.bot.StopReceivingUpdates()
				return
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		c.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		m := update.Message
		senderID := strconv.FormatInt(m.From.ID, 10)
		if !c.IsAllowed(senderID) {
			slog.Warn("telegram: message from disallowed user", "senderID", senderID)
			return
		}
		msg, ok := textCommand("telegram", strconv.FormatInt(m.Chat.ID, 10), senderID, m.Text)
		if !ok {
			slog.Debug("telegram: ignoring non-command message", "chatID", m.Chat.ID)
			return
		}
		c.publish(msg)
	}
}

func (c *TelegramChannel) handleCallback(q *tgbotapi.CallbackQuery) {
	// Stop the client's loading indicator whatever happens next.
	if _, err := c.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		slog.Warn("telegram: failed to answer callback", "error", err)
	}
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return
	}
	senderID := strconv.FormatInt(q.From.ID, 10)
	if !c.IsAllowed(senderID) {
		slog.Warn("telegram: callback from disallowed user", "senderID", senderID)
		return
	}
	c.publish(bus.CallbackEvent(
		"telegram",
		strconv.FormatInt(q.Message.Chat.ID, 10),
		senderID,
		q.Data,
		strconv.Itoa(q.Message.MessageID),
	))
}

func (c *TelegramChannel) publish(msg bus.InboundMessage) {
	if err := c.bus.PublishInbound(msg); err != nil {
		slog.Warn("telegram: failed to publish inbound", "error", err)
	}
}

func (c *TelegramChannel) Stop() error {
	close(c.stopCh)
	return nil
}

func (c *TelegramChannel) Send(msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chatID %q: %w", msg.ChatID, err)
	}

	switch msg.Type {
	case bus.TypeImage:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(msg.ImageURL))
		photo.Caption = msg.Content
		if _, err := c.bot.Send(photo); err != nil {
			slog.Warn("telegram: failed to send photo, falling back to text", "url", msg.ImageURL, "error", err)
			_, err = c.bot.Send(tgbotapi.NewMessage(chatID, imageFallback(msg.Content)))
			return err
		}
		return nil
	case bus.TypeChoices:
		m := tgbotapi.NewMessage(chatID, msg.Content)
		m.ReplyMarkup = inlineKeyboard(msg.Choices)
		_, err = c.bot.Send(m)
		return err
	case bus.TypeClearChoices:
		messageID, err := strconv.Atoi(msg.MessageRef)
		if err != nil {
			return fmt.Errorf("telegram: invalid message ref %q: %w", msg.MessageRef, err)
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
		})
		_, err = c.bot.Request(edit)
		return err
	default:
		_, err = c.bot.Send(tgbotapi.NewMessage(chatID, msg.Content))
		return err
	}
}

// inlineKeyboard lays out every choice on a single row.
func inlineKeyboard(choices []bus.Choice) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, len(choices))
	for i, ch := range choices {
		row[i] = tgbotapi.NewInlineKeyboardButtonData(ch.Label, ch.Token)
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func (c *TelegramChannel) IsAllowed(senderID string) bool {
	return c.allowedUsers.allows(senderID)
}
