package bus

import "fmt"

// Kind classifies an inbound event.
type Kind string

const (
	KindTick     Kind = "tick"
	KindYes      Kind = "yes"
	KindNo       Kind = "no"
	KindOffering Kind = "offering"
	KindStart    Kind = "start"
	KindStop     Kind = "stop"
	KindStatus   Kind = "status"
	KindUnknown  Kind = "unknown"
)

// Choice tokens carried by buttons.
const (
	TokenOrderYes = "ORDER_Y"
	TokenOrderNo  = "ORDER_N"
	// TokenMenuPrefix is followed by the 1-based offering number.
	TokenMenuPrefix = "MENU_"
)

// MenuToken returns the choice token for the 0-based offering index.
func MenuToken(index int) string {
	return fmt.Sprintf("%s%d", TokenMenuPrefix, index+1)
}

// InboundMessage is an event delivered to a session.
type InboundMessage struct {
	Kind     Kind
	Channel  string // source channel name (e.g. "telegram", "scheduler")
	ChatID   string
	SenderID string
	// OfferingIndex is the 0-based index for KindOffering.
	OfferingIndex int
	// MessageRef identifies the message whose button was pressed, if any.
	MessageRef string
	Content    string // raw text or token, for logging
}

// SessionKey returns "channel:chatID".
func (m InboundMessage) SessionKey() string {
	return Key(m.Channel, m.ChatID)
}

// Key builds a session key.
func Key(channel, chatID string) string {
	return fmt.Sprintf("%s:%s", channel, chatID)
}

// CallbackEvent maps a button token to an event.
func CallbackEvent(channel, chatID, senderID, token, messageRef string) InboundMessage {
	m := InboundMessage{
		Kind:       KindUnknown,
		Channel:    channel,
		ChatID:     chatID,
		SenderID:   senderID,
		MessageRef: messageRef,
		Content:    token,
	}
	switch token {
	case TokenOrderYes:
		m.Kind = KindYes
	case TokenOrderNo:
		m.Kind = KindNo
	default:
		var n int
		if _, err := fmt.Sscanf(token, TokenMenuPrefix+"%d", &n); err == nil && n >= 1 {
			m.Kind = KindOffering
			m.OfferingIndex = n - 1
		}
	}
	return m
}

// CommandEvent maps a command name, with or without the leading slash, to an event.
func CommandEvent(channel, chatID, senderID, command string) InboundMessage {
	m := InboundMessage{
		Kind:     KindUnknown,
		Channel:  channel,
		ChatID:   chatID,
		SenderID: senderID,
		Content:  command,
	}
	if len(command) > 0 && command[0] == '/' {
		command = command[1:]
	}
	switch command {
	case "start":
		m.Kind = KindStart
	case "stop":
		m.Kind = KindStop
	case "status":
		m.Kind = KindStatus
	}
	return m
}

// OutboundType is the kind of action a channel performs.
type OutboundType string

const (
	TypeText         OutboundType = "text"
	TypeImage        OutboundType = "image"
	TypeChoices      OutboundType = "choices"
	TypeClearChoices OutboundType = "clear_choices"
)

// Choice is one button.
type Choice struct {
	Label string
	Token string
}

// OutboundMessage is an action for a channel to perform.
type OutboundMessage struct {
	Type    OutboundType
	Channel string
	ChatID  string
	Content string // text, image caption or choice prompt
	// ImageURL is set for TypeImage.
	ImageURL string
	Choices  []Choice
	// MessageRef is the message to edit for TypeClearChoices.
	MessageRef string
}
