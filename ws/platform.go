package ws

import (
	"context"
	"strconv"

	"github.com/nicebartender/claudio-bot/chat"
)

// Bridge methods the bot calls.
const (
	MethodChannelSend       = "channel.send"
	MethodUserDM            = "user.dm"
	MethodMessageDelete     = "message.delete"
	MethodMemberPermissions = "member.permissions"
	MethodSelfPermissions   = "self.permissions"
	MethodRoleFind          = "role.find"
	MethodChannelCanView    = "channel.canView"
)

type SendParams struct {
	ChannelID uint64 `json:"channelId,string,omitempty"`
	UserID    uint64 `json:"userId,string,omitempty"`
	Content   string `json:"content"`
}

type MessageParams struct {
	ChannelID uint64 `json:"channelId,string"`
	MessageID uint64 `json:"messageId,string"`
}

type MemberParams struct {
	GuildID uint64 `json:"guildId,string,omitempty"`
	UserID  uint64 `json:"userId,string,omitempty"`
}

type PermissionsResult struct {
	// Permissions is the decimal bit set, as the platform sends it.
	Permissions string `json:"permissions"`
}

type RoleParams struct {
	GuildID uint64 `json:"guildId,string"`
	Query   string `json:"query"`
}

type RoleResult struct {
	Found  bool   `json:"found"`
	RoleID uint64 `json:"roleId,string,omitempty"`
}

type ViewParams struct {
	ChannelID uint64 `json:"channelId,string"`
	UserID    uint64 `json:"userId,string"`
}

type ViewResult struct {
	Visible bool `json:"visible"`
}

func (h *Hub) call(ctx context.Context, method string, params, out any) error {
	client := h.Active()
	if client == nil {
		return chat.ErrNotConnected
	}
	return client.Call(ctx, method, params, out)
}

func (h *Hub) Send(ctx context.Context, channelID uint64, text string) error {
	return h.call(ctx, MethodChannelSend, SendParams{ChannelID: channelID, Content: text}, nil)
}

func (h *Hub) SendDirect(ctx context.Context, userID uint64, text string) error {
	return h.call(ctx, MethodUserDM, SendParams{UserID: userID, Content: text}, nil)
}

func (h *Hub) DeleteMessage(ctx context.Context, channelID, messageID uint64) error {
	return h.call(ctx, MethodMessageDelete, MessageParams{ChannelID: channelID, MessageID: messageID}, nil)
}

func (h *Hub) MemberPermissions(ctx context.Context, guildID, userID uint64) (chat.Permission, error) {
	var res PermissionsResult
	if err := h.call(ctx, MethodMemberPermissions, MemberParams{GuildID: guildID, UserID: userID}, &res); err != nil {
		return 0, err
	}
	return parsePermissions(res.Permissions)
}

func (h *Hub) SelfPermissions(ctx context.Context, guildID uint64) (chat.Permission, error) {
	var res PermissionsResult
	if err := h.call(ctx, MethodSelfPermissions, MemberParams{GuildID: guildID}, &res); err != nil {
		return 0, err
	}
	return parsePermissions(res.Permissions)
}

func (h *Hub) FindRole(ctx context.Context, guildID uint64, token string) (uint64, bool, error) {
	var res RoleResult
	if err := h.call(ctx, MethodRoleFind, RoleParams{GuildID: guildID, Query: token}, &res); err != nil {
		return 0, false, err
	}
	return res.RoleID, res.Found && res.RoleID != 0, nil
}

func (h *Hub) CanView(ctx context.Context, channelID, userID uint64) (bool, error) {
	var res ViewResult
	if err := h.call(ctx, MethodChannelCanView, ViewParams{ChannelID: channelID, UserID: userID}, &res); err != nil {
		return false, err
	}
	return res.Visible, nil
}

func parsePermissions(s string) (chat.Permission, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return chat.Permission(v), nil
}

var _ chat.Platform = (*Hub)(nil)
