// Package chat describes what the bot sees of the chat platform: messages,
// channels, users, permissions, and the calls it can make back.
package chat

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrForbidden is returned when the platform refuses a call for lack of
	// permissions.
	ErrForbidden = errors.New("forbidden by platform")
	// ErrNotConnected is returned when no bridge is available to carry a call.
	ErrNotConnected = errors.New("platform not connected")
)

type ChannelType int

const (
	ChannelOther ChannelType = iota
	ChannelGuildText
	ChannelDirect
)

func (t ChannelType) String() string {
	switch t {
	case ChannelGuildText:
		return "guild_text"
	case ChannelDirect:
		return "direct"
	default:
		return "other"
	}
}

type MessageKind int

const (
	// MessageDefault is a regular message typed by a user.
	MessageDefault MessageKind = iota
	// MessageSystem covers joins, pins, and other platform generated messages.
	MessageSystem
)

type User struct {
	ID   uint64
	Name string
	Bot  bool
}

type Channel struct {
	ID        uint64
	Type      ChannelType
	Name      string
	GuildID   uint64
	GuildName string
}

// InGuild reports whether the channel is a text channel of a guild.
func (c Channel) InGuild() bool {
	return c.Type == ChannelGuildText && c.GuildID != 0
}

type Message struct {
	ID        uint64
	Kind      MessageKind
	Author    User
	Channel   Channel
	Content   string
	CreatedAt time.Time
}

// Messenger sends and removes messages.
type Messenger interface {
	Send(ctx context.Context, channelID uint64, text string) error
	SendDirect(ctx context.Context, userID uint64, text string) error
	DeleteMessage(ctx context.Context, channelID, messageID uint64) error
}

// Directory answers questions about guild members and channels.
type Directory interface {
	MemberPermissions(ctx context.Context, guildID, userID uint64) (Permission, error)
	SelfPermissions(ctx context.Context, guildID uint64) (Permission, error)
	// FindRole resolves a role mention, id, or name to the role id.
	FindRole(ctx context.Context, guildID uint64, token string) (uint64, bool, error)
	CanView(ctx context.Context, channelID, userID uint64) (bool, error)
}

// Platform is everything the bot needs from the chat service.
type Platform interface {
	Messenger
	Directory
}
