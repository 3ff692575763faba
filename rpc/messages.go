package rpc

import (
	"time"

	"github.com/nicebartender/claudio-bot/chat"
)

// Events the bridge sends.
const (
	EventMessageCreate = "message.create"
	EventTypingStart   = "typing.start"
	EventTick          = "tick"
)

// Ids travel as decimal strings; they do not fit a JSON number.

type WireUser struct {
	ID   uint64 `json:"id,string"`
	Name string `json:"name"`
	Bot  bool   `json:"bot,omitempty"`
}

type WireChannel struct {
	ID        uint64 `json:"id,string"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	GuildID   uint64 `json:"guildId,string,omitempty"`
	GuildName string `json:"guildName,omitempty"`
}

type MessageCreate struct {
	ID        uint64      `json:"id,string"`
	Kind      string      `json:"kind,omitempty"`
	Author    WireUser    `json:"author"`
	Channel   WireChannel `json:"channel"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

type TypingStart struct {
	UserID    uint64 `json:"userId,string"`
	ChannelID uint64 `json:"channelId,string"`
}

func (m MessageCreate) Message() chat.Message {
	kind := chat.MessageDefault
	if m.Kind != "" && m.Kind != "default" {
		kind = chat.MessageSystem
	}
	return chat.Message{
		ID:   m.ID,
		Kind: kind,
		Author: chat.User{
			ID:   m.Author.ID,
			Name: m.Author.Name,
			Bot:  m.Author.Bot,
		},
		Channel: chat.Channel{
			ID:        m.Channel.ID,
			Type:      channelType(m.Channel.Type),
			Name:      m.Channel.Name,
			GuildID:   m.Channel.GuildID,
			GuildName: m.Channel.GuildName,
		},
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
}

func channelType(s string) chat.ChannelType {
	switch s {
	case "guild_text", "text":
		return chat.ChannelGuildText
	case "dm", "direct":
		return chat.ChannelDirect
	default:
		return chat.ChannelOther
	}
}
