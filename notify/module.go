// Package notify sends users a direct message when a word they registered
// is mentioned in a guild.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/command"
	"github.com/nicebartender/claudio-bot/matcher"
	"github.com/nicebartender/claudio-bot/settings"
	"github.com/nicebartender/claudio-bot/task"
)

const (
	MinKeywordLength   = 2
	MaxKeywordLength   = 50
	MaxKeywordsPerUser = 15
	DefaultDelay       = 8 * time.Second

	maxQuoteLength = 1500
)

type Module struct {
	store    *settings.Store
	platform chat.Platform
	tasks    *task.Group
	trees    *matcher.Cache[uint64, Keyword]
	pending  *pending
	delay    time.Duration
	after    func(time.Duration) <-chan time.Time
	log      *slog.Logger
}

// New returns the module. A zero delay means DefaultDelay.
func New(store *settings.Store, platform chat.Platform, tasks *task.Group, delay time.Duration) *Module {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Module{
		store:    store,
		platform: platform,
		tasks:    tasks,
		trees:    matcher.NewCache[uint64, Keyword](),
		pending:  newPending(),
		delay:    delay,
		after:    time.After,
		log:      slog.Default().With("module", "notifications"),
	}
}

func (m *Module) Commands() []*command.Descriptor {
	word := []command.Parameter{{
		Name:        "Word",
		Type:        command.String,
		Flags:       command.Remainder,
		Description: "the word to be notified on when it is mentioned in this server",
	}}
	return []*command.Descriptor{
		{
			Invoker:     "notification",
			Verb:        "help",
			Aliases:     []command.Alias{{Invoker: "notif", Verb: "help"}, {Invoker: "noti", Verb: "help"}},
			Description: "Shows help for this module.",
			Flags:       command.Hidden | command.IgnoreParameters,
			Handler:     m.help,
		},
		{
			Invoker: "notification",
			Verb:    "add",
			Aliases: []command.Alias{
				{Invoker: "notifications", Verb: "add", Hidden: true},
				{Invoker: "notif", Verb: "add"},
				{Invoker: "noti", Verb: "add"},
				{Invoker: "notifications", Hidden: true},
				{Invoker: "notification"},
				{Invoker: "notif"},
				{Invoker: "noti"},
			},
			Description: "Adds a word to be notified on when mentioned in this server.",
			Params:      word,
			Handler:     m.add,
		},
		{
			Invoker: "notification",
			Verb:    "remove",
			Aliases: []command.Alias{
				{Invoker: "notifications", Verb: "remove", Hidden: true},
				{Invoker: "notif", Verb: "remove"},
				{Invoker: "noti", Verb: "remove"},
			},
			Description: "Removes a notified word.",
			Params:      word,
			Handler:     m.remove,
		},
		{
			Invoker: "notification",
			Verb:    "list",
			Aliases: []command.Alias{
				{Invoker: "notifications", Verb: "list", Hidden: true},
				{Invoker: "notif", Verb: "list"},
				{Invoker: "noti", Verb: "list"},
			},
			Description: "Lists all your notified words on this server. Sends a direct message.",
			Handler:     m.list,
		},
		{
			Invoker: "notification",
			Verb:    "ignore active channel",
			Aliases: []command.Alias{
				{Invoker: "notifications", Verb: "ignore active channel", Hidden: true},
				{Invoker: "notif", Verb: "ignore active channel"},
				{Invoker: "noti", Verb: "ignore active channel"},
			},
			Description: "Skip notifications from the channel you're currently active in. " +
				"All notifications are delayed a little; typing in the channel cancels them. Use again to disable.",
			Handler: m.toggleIgnoreActiveChannel,
		},
	}
}

func (m *Module) help(ctx context.Context, inv *command.Invocation) error {
	var b strings.Builder
	b.WriteString("**Notifications** - notifies you when someone mentions a specific word.\n")
	for _, d := range m.Commands() {
		if d.Has(command.Hidden) {
			continue
		}
		fmt.Fprintf(&b, "`%s` - %s\n", d.Usage(inv.Prefix), d.Description)
	}
	return inv.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (m *Module) add(ctx context.Context, inv *command.Invocation) error {
	word, _ := inv.Param("Word")
	original := word.String()
	if n := utf8.RuneCountInString(original); n < MinKeywordLength {
		return command.Errorf("A notification has to be at least %d characters long.", MinKeywordLength)
	} else if n > MaxKeywordLength {
		return command.Errorf("A notification can't be longer than %d characters.", MaxKeywordLength)
	}

	m.deleteCommand(ctx, inv)

	guildID := inv.GuildID()
	author := inv.Message.Author.ID
	lowered := lower(original)
	rebuilt := false
	err := settings.Modify(ctx, m.store, guildID, func(s *Settings) error {
		if s.Has(author, lowered) {
			return command.Errorf("You are already being notified for this word.")
		}
		if len(s.ForUser(author)) >= MaxKeywordsPerUser {
			return command.Errorf("You cannot have more notifications on this server. You can clean up your old notifications with `%snotification remove`.", inv.Prefix)
		}
		s.Keywords = append(s.Keywords, Keyword{User: author, Lowered: lowered, Original: original})
		m.trees.Rebuild(guildID, s.entries())
		rebuilt = true
		return nil
	})
	if err != nil {
		m.discardUnsaved(guildID, rebuilt)
		return err
	}
	return inv.ReplySuccess(ctx, "You will now be notified when this word is mentioned.")
}

func (m *Module) remove(ctx context.Context, inv *command.Invocation) error {
	word, _ := inv.Param("Word")
	m.deleteCommand(ctx, inv)

	guildID := inv.GuildID()
	author := inv.Message.Author.ID
	lowered := lower(word.String())
	rebuilt := false
	err := settings.Modify(ctx, m.store, guildID, func(s *Settings) error {
		if !s.Remove(author, lowered) {
			return command.Errorf("You don't have this word set as a notification. You can see all your notifications with `%snotification list`.", inv.Prefix)
		}
		m.trees.Rebuild(guildID, s.entries())
		rebuilt = true
		return nil
	})
	if err != nil {
		m.discardUnsaved(guildID, rebuilt)
		return err
	}
	return inv.ReplySuccess(ctx, "You will no longer be notified when this word is mentioned.")
}

func (m *Module) list(ctx context.Context, inv *command.Invocation) error {
	s, err := settings.Read[Settings](ctx, m.store, inv.GuildID())
	if err != nil {
		return fmt.Errorf("read notification settings: %w", err)
	}

	mine := s.ForUser(inv.Message.Author.ID)
	if len(mine) == 0 {
		return inv.Reply(ctx, fmt.Sprintf("You don't have any notified words on this server. Use `%snotification add` to add some.", inv.Prefix))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your notified words on `%s`:\n", guildName(inv.Message.Channel))
	for _, k := range mine {
		fmt.Fprintf(&b, "`%s` - notified `%d` times\n", k.Original, k.Triggers)
	}
	if err := inv.ReplyDirect(ctx, b.String()); err != nil {
		return fmt.Errorf("send keyword list: %w", err)
	}
	return inv.ReplySuccess(ctx, "Please check your direct messages.")
}

func (m *Module) toggleIgnoreActiveChannel(ctx context.Context, inv *command.Invocation) error {
	enabled, err := settings.ModifyResult(ctx, m.store, inv.Message.Author.ID, func(p *Preferences) (bool, error) {
		p.IgnoreActiveChannel = !p.IgnoreActiveChannel
		return p.IgnoreActiveChannel, nil
	})
	if err != nil {
		return err
	}
	if enabled {
		return inv.ReplySuccess(ctx, "You won't be notified for messages in channels you're currently being active in. This causes a small delay for all notifications.")
	}
	return inv.ReplySuccess(ctx, "You will now be notified for every message instantly.")
}

// discardUnsaved drops a tree rebuilt from a mutation that failed to
// save. A mutator that refused the change left the cached tree correct.
func (m *Module) discardUnsaved(guildID uint64, rebuilt bool) {
	if rebuilt {
		m.trees.Delete(guildID)
	}
}

// deleteCommand hides the keyword from the channel. The bot may lack the
// permission, which is fine.
func (m *Module) deleteCommand(ctx context.Context, inv *command.Invocation) {
	if err := m.platform.DeleteMessage(ctx, inv.Message.Channel.ID, inv.Message.ID); err != nil {
		m.log.Debug("could not delete command message", "channel", inv.Message.Channel.ID, "err", err)
	}
}

// OnMessage scans guild messages for registered keywords. The scan and each
// delivery run detached.
func (m *Module) OnMessage(ctx context.Context, msg chat.Message) error {
	if !msg.Channel.InGuild() {
		return nil
	}
	m.pending.Reset(pendingKey{user: msg.Author.ID, channel: msg.Channel.ID})
	m.tasks.Go(ctx, "notifications.scan", func(ctx context.Context) error {
		return m.scan(ctx, msg)
	})
	return nil
}

func (m *Module) OnTyping(_ context.Context, userID, channelID uint64) error {
	m.pending.Reset(pendingKey{user: userID, channel: channelID})
	return nil
}

func (m *Module) scan(ctx context.Context, msg chat.Message) error {
	guildID := msg.Channel.GuildID
	tree, err := m.trees.LoadOrBuild(guildID, func() ([]matcher.Entry[Keyword], error) {
		s, err := settings.Find[Settings](ctx, m.store, guildID)
		if errors.Is(err, settings.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read notification settings: %w", err)
		}
		return s.entries(), nil
	})
	if err != nil {
		return err
	}
	if tree.Len() == 0 {
		return nil
	}

	notified := make(map[uint64]bool)
	for _, hit := range tree.MatchWords(msg.Content) {
		k := hit.Value
		if notified[k.User] || k.User == msg.Author.ID {
			continue
		}

		visible, err := m.platform.CanView(ctx, msg.Channel.ID, k.User)
		if err != nil {
			m.log.Warn("could not check channel access", "user", k.User, "channel", msg.Channel.ID, "err", err)
			continue
		}
		if !visible {
			continue
		}

		notified[k.User] = true
		m.tasks.Go(ctx, "notifications.deliver", func(ctx context.Context) error {
			return m.deliver(ctx, msg, k)
		})
	}
	return nil
}

func (m *Module) deliver(ctx context.Context, msg chat.Message, k Keyword) error {
	guildID := msg.Channel.GuildID
	err := settings.Modify(ctx, m.store, guildID, func(s *Settings) error {
		s.RaiseCount(k.User, k.Lowered)
		return nil
	})
	if err != nil {
		return fmt.Errorf("raise trigger count: %w", err)
	}

	prefs, err := settings.Find[Preferences](ctx, m.store, k.User)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		return fmt.Errorf("read notification preferences: %w", err)
	}
	if err == nil && prefs.IgnoreActiveChannel {
		key := pendingKey{user: k.User, channel: msg.Channel.ID}
		m.pending.Register(key, msg.ID)
		select {
		case <-m.after(m.delay):
		case <-ctx.Done():
			m.pending.Claim(key, msg.ID)
			return ctx.Err()
		}
		if !m.pending.Claim(key, msg.ID) {
			m.log.Debug("notification canceled", "user", k.User, "message", msg.ID, "guild", guildID, "channel", msg.Channel.ID)
			return nil
		}
	}

	if err := m.platform.SendDirect(ctx, k.User, render(msg, k)); err != nil {
		return fmt.Errorf("notify user %d: %w", k.User, err)
	}
	return nil
}

func render(msg chat.Message, k Keyword) string {
	content := msg.Content
	if utf8.RuneCountInString(content) > maxQuoteLength {
		content = string([]rune(content)[:maxQuoteLength]) + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔔 `%s` mentioned `%s` on `%s`:\n", msg.Author.Name, k.Original, guildName(msg.Channel))
	for _, line := range strings.Split(content, "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n`%s` | <#%d>", msg.CreatedAt.UTC().Format("15:04 UTC"), msg.Channel.ID)
	return b.String()
}

func guildName(c chat.Channel) string {
	if c.GuildName != "" {
		return c.GuildName
	}
	return fmt.Sprintf("%d", c.GuildID)
}
