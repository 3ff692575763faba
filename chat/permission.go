package chat

import (
	"strings"
)

// Permission is a set of guild permissions.
type Permission uint64

// Values match the platform's permission bits.
const (
	PermCreateInvite       Permission = 1 << 0
	PermKickMembers        Permission = 1 << 1
	PermBanMembers         Permission = 1 << 2
	PermAdministrator      Permission = 1 << 3
	PermManageChannels     Permission = 1 << 4
	PermManageGuild        Permission = 1 << 5
	PermAddReactions       Permission = 1 << 6
	PermViewAuditLog       Permission = 1 << 7
	PermViewChannel        Permission = 1 << 10
	PermSendMessages       Permission = 1 << 11
	PermManageMessages     Permission = 1 << 13
	PermEmbedLinks         Permission = 1 << 14
	PermAttachFiles        Permission = 1 << 15
	PermReadMessageHistory Permission = 1 << 16
	PermMentionEveryone    Permission = 1 << 17
	PermManageNicknames    Permission = 1 << 27
	PermManageRoles        Permission = 1 << 28
	PermManageWebhooks     Permission = 1 << 29
	PermManageEmojis       Permission = 1 << 30
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermCreateInvite, "CreateInstantInvite"},
	{PermKickMembers, "KickMembers"},
	{PermBanMembers, "BanMembers"},
	{PermAdministrator, "Administrator"},
	{PermManageChannels, "ManageChannels"},
	{PermManageGuild, "ManageGuild"},
	{PermAddReactions, "AddReactions"},
	{PermViewAuditLog, "ViewAuditLog"},
	{PermViewChannel, "ViewChannel"},
	{PermSendMessages, "SendMessages"},
	{PermManageMessages, "ManageMessages"},
	{PermEmbedLinks, "EmbedLinks"},
	{PermAttachFiles, "AttachFiles"},
	{PermReadMessageHistory, "ReadMessageHistory"},
	{PermMentionEveryone, "MentionEveryone"},
	{PermManageNicknames, "ManageNicknames"},
	{PermManageRoles, "ManageRoles"},
	{PermManageWebhooks, "ManageWebhooks"},
	{PermManageEmojis, "ManageEmojis"},
}

// Missing returns the permissions of required that p does not grant.
// Administrator grants everything.
func (p Permission) Missing(required Permission) Permission {
	if p&PermAdministrator != 0 {
		return 0
	}
	return required &^ p
}

func (p Permission) Has(required Permission) bool {
	return p.Missing(required) == 0
}

// Names lists the permission names in p in declaration order.
func (p Permission) Names() []string {
	var names []string
	for _, pn := range permissionNames {
		if p&pn.perm != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Permission) String() string {
	if p == 0 {
		return "none"
	}
	return strings.Join(p.Names(), ", ")
}

// ParsePermission looks a permission up by name, ignoring case.
func ParsePermission(name string) (Permission, bool) {
	for _, pn := range permissionNames {
		if strings.EqualFold(pn.name, name) {
			return pn.perm, true
		}
	}
	return 0, false
}
