// Package admin holds the help command and the owner tools.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/command"
	"github.com/nicebartender/claudio-bot/settings"
)

const (
	// MessageLimit keeps each chunk under the platform's message size.
	MessageLimit    = 1900
	maxDumpMessages = 6
)

type Module struct {
	store    *settings.Store
	registry *command.Registry
}

func New(store *settings.Store, registry *command.Registry) *Module {
	return &Module{store: store, registry: registry}
}

func (m *Module) Commands() []*command.Descriptor {
	return []*command.Descriptor{
		{
			Invoker:     "help",
			Description: "Shows the list of commands, or details about one command.",
			Params:      []command.Parameter{{Name: "Command", Type: command.String, Flags: command.Optional | command.Remainder}},
			Flags:       command.DirectMessageAllow,
			Handler:     m.help,
		},
		{
			Invoker:         "say",
			Description:     "Sends a specified message.",
			UsageTemplate:   "{p}say TargetChannel Message...",
			Params:          []command.Parameter{{Name: "TargetChannel", Type: command.TextChannel}, {Name: "Message", Type: command.String, Flags: command.Remainder}},
			UserPermissions: chat.PermManageMessages,
			Flags:           command.RunAsync,
			Handler:         m.say,
		},
		{
			Invoker:       "dump",
			Verb:          "settings",
			Description:   "Dumps all settings for a server. Bot owner only.",
			UsageTemplate: "{p}dump settings [ServerId]",
			Params:        []command.Parameter{{Name: "ServerId", Type: command.ID, Flags: command.Optional}},
			Flags:         command.OwnerOnly | command.Hidden | command.RunAsync | command.DirectMessageAllow,
			Handler:       m.dumpSettings,
		},
	}
}

func (m *Module) help(ctx context.Context, inv *command.Invocation) error {
	if inv.Body != "" {
		return m.helpFor(ctx, inv)
	}

	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, d := range m.registry.Descriptors() {
		if d.Has(command.Hidden) {
			continue
		}
		fmt.Fprintf(&b, "`%s` - %s\n", d.Usage(inv.Prefix), d.Description)
	}
	fmt.Fprintf(&b, "\nType `%shelp command` for details.", inv.Prefix)

	for _, chunk := range Chunk(b.String(), MessageLimit) {
		if err := inv.Reply(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) helpFor(ctx context.Context, inv *command.Invocation) error {
	name := strings.TrimPrefix(inv.Body, inv.Prefix)
	resolved, ok := m.registry.Resolve(inv.Prefix, inv.Prefix+name)
	if !ok || resolved.Descriptor.Has(command.Hidden) {
		return command.Errorf("Command `%s` not found.", name)
	}
	d := resolved.Descriptor

	var b strings.Builder
	fmt.Fprintf(&b, "**%s%s**\n%s\n\nUsage: `%s`", inv.Prefix, d.Name(), d.Description, d.Usage(inv.Prefix))
	for _, p := range d.Params {
		if p.Description != "" {
			fmt.Fprintf(&b, "\n- *%s* - %s", p.Name, p.Description)
		}
	}

	var aliases []string
	for _, a := range d.Aliases {
		if !a.Hidden {
			aliases = append(aliases, "`"+strings.TrimSpace(inv.Prefix+a.Invoker+" "+a.Verb)+"`")
		}
	}
	if len(aliases) > 0 {
		b.WriteString("\nAliases: " + strings.Join(aliases, ", "))
	}
	if d.UserPermissions != 0 {
		b.WriteString("\nRequires: " + d.UserPermissions.String())
	}
	return inv.Reply(ctx, b.String())
}

func (m *Module) say(ctx context.Context, inv *command.Invocation) error {
	target, _ := inv.Arg(0)
	channelID, _ := target.ChannelID()
	text, _ := inv.Arg(1)
	if strings.TrimSpace(text.String()) == "" {
		return command.ParameterErrorf("Specify a message.")
	}

	if err := inv.Messenger.Send(ctx, channelID, text.String()); err != nil {
		if errors.Is(err, chat.ErrForbidden) {
			return &command.BotPermissionError{Missing: chat.PermSendMessages, ChannelID: channelID}
		}
		return fmt.Errorf("say in %d: %w", channelID, err)
	}
	if channelID != inv.Message.Channel.ID {
		return inv.ReplySuccess(ctx, "Message sent.")
	}
	return nil
}

func (m *Module) dumpSettings(ctx context.Context, inv *command.Invocation) error {
	serverID := inv.GuildID()
	if p, ok := inv.Param("ServerId"); ok {
		serverID, _ = p.UInt()
	}
	if serverID == 0 {
		return command.ParameterErrorf("Specify a server id.")
	}

	dump, err := m.store.Dump(ctx, serverID)
	if err != nil {
		return fmt.Errorf("dump settings for %d: %w", serverID, err)
	}
	if dump == "" {
		return inv.ReplyDirect(ctx, fmt.Sprintf("No settings stored for server %d.", serverID))
	}

	chunks := Chunk(dump, MessageLimit-len("``````"))
	if len(chunks) > maxDumpMessages {
		chunks = chunks[:maxDumpMessages]
		chunks[maxDumpMessages-1] += "\n(truncated)"
	}
	for _, c := range chunks {
		if err := inv.ReplyDirect(ctx, "```"+c+"```"); err != nil {
			return fmt.Errorf("send settings dump: %w", err)
		}
	}
	return nil
}

// Chunk splits text into pieces of at most limit bytes, breaking at line
// ends where possible and never inside a UTF-8 sequence.
func Chunk(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		} else {
			cut++
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
