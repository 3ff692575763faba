// Package dispatch routes inbound chat messages to registered commands.
//
// Every message passes the same chain: filter, resolve, source check, owner
// check, permission check, parameter check, then execution either inline or
// as a detached task. A failure at any step ends the chain with at most one
// notice to the channel; nothing a handler does escapes the engine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/command"
	"github.com/nicebartender/claudio-bot/task"
)

type Config struct {
	Prefix string
	Owners []uint64
}

// Listener observes every message that passes the filter and every typing
// event, whether or not it is a command.
type Listener interface {
	OnMessage(ctx context.Context, msg chat.Message) error
	OnTyping(ctx context.Context, userID, channelID uint64) error
}

// Module is a group of commands registered together.
type Module interface {
	Commands() []*command.Descriptor
}

type Engine struct {
	prefix    string
	owners    map[uint64]bool
	registry  *command.Registry
	platform  chat.Platform
	tasks     *task.Group
	listeners []Listener

	Notifier Notifier
	Log      *slog.Logger
}

func New(cfg Config, registry *command.Registry, platform chat.Platform, tasks *task.Group) *Engine {
	owners := make(map[uint64]bool, len(cfg.Owners))
	for _, id := range cfg.Owners {
		owners[id] = true
	}
	if tasks == nil {
		tasks = task.NewGroup(nil)
	}
	return &Engine{
		prefix:   cfg.Prefix,
		owners:   owners,
		registry: registry,
		platform: platform,
		tasks:    tasks,
		Notifier: MessengerNotifier{Messenger: platform},
		Log:      slog.Default(),
	}
}

func (e *Engine) Prefix() string { return e.prefix }

func (e *Engine) Registry() *command.Registry { return e.registry }

// IsOwner reports whether userID is one of the configured bot owners.
func (e *Engine) IsOwner(userID uint64) bool { return e.owners[userID] }

// Use registers the commands of each module, and its listener if it has one.
func (e *Engine) Use(modules ...Module) error {
	for _, m := range modules {
		if err := e.registry.Register(m.Commands()...); err != nil {
			return fmt.Errorf("module %T: %w", m, err)
		}
		if l, ok := m.(Listener); ok {
			e.listeners = append(e.listeners, l)
		}
	}
	return nil
}

// AddListener registers a listener that contributes no commands.
func (e *Engine) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// HandleMessage runs msg through listeners and the command chain. Inline
// handlers finish before it returns; detached ones may still be running.
func (e *Engine) HandleMessage(ctx context.Context, msg chat.Message) {
	err := task.Run(ctx, func(ctx context.Context) error {
		e.handleMessage(ctx, msg)
		return nil
	})
	if err != nil {
		e.Log.Error("message handling failed", "message", msg.ID, "user", msg.Author.ID, "channel", msg.Channel.ID, "err", err)
	}
}

func (e *Engine) handleMessage(ctx context.Context, msg chat.Message) {
	if msg.Author.Bot || msg.Kind != chat.MessageDefault {
		return
	}

	for _, l := range e.listeners {
		e.notifyListener(ctx, l, func(ctx context.Context) error { return l.OnMessage(ctx, msg) })
	}

	resolved, ok := e.registry.Resolve(e.prefix, msg.Content)
	if !ok {
		return
	}
	d := resolved.Descriptor
	log := e.Log.With("command", d.Name(), "user", msg.Author.ID, "channel", msg.Channel.ID)

	if !e.sourceAllowed(ctx, msg, d, log) {
		return
	}

	if d.Has(command.OwnerOnly) && !e.owners[msg.Author.ID] {
		log.Info("command denied", "reason", "not owner")
		e.notify(ctx, msg.Channel.ID, Notice{Kind: NoticeNotOwner, Descriptor: d, Prefix: e.prefix})
		return
	}

	if msg.Channel.InGuild() {
		allowed, err := e.permissionsAllowed(ctx, msg, d, log)
		if err != nil {
			log.Error("permission lookup failed", "err", err)
			e.notify(ctx, msg.Channel.ID, Notice{Kind: NoticeFailure, Descriptor: d, Prefix: e.prefix})
			return
		}
		if !allowed {
			return
		}
	}

	inv := command.NewInvocation(msg, e.prefix, resolved)
	inv.ID = uuid.NewString()
	inv.Messenger = e.platform

	valid, err := inv.CheckParams(ctx, e.platform)
	if err != nil {
		log.Error("parameter check failed", "invocation", inv.ID, "err", err)
		e.notify(ctx, msg.Channel.ID, Notice{Kind: NoticeFailure, Descriptor: d, Prefix: e.prefix})
		return
	}
	if !valid {
		log.Debug("incorrect parameters", "body", inv.Body)
		e.notify(ctx, msg.Channel.ID, Notice{Kind: NoticeIncorrectParameters, Descriptor: d, Prefix: e.prefix})
		return
	}

	if d.Has(command.RunAsync) {
		e.tasks.Go(ctx, d.Name(), func(ctx context.Context) error {
			e.execute(ctx, inv)
			return nil
		})
		return
	}
	e.execute(ctx, inv)
}

// HandleTyping forwards a typing event to listeners.
func (e *Engine) HandleTyping(ctx context.Context, userID, channelID uint64) {
	for _, l := range e.listeners {
		e.notifyListener(ctx, l, func(ctx context.Context) error { return l.OnTyping(ctx, userID, channelID) })
	}
}

// Wait blocks until detached handlers have finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

func (e *Engine) sourceAllowed(ctx context.Context, msg chat.Message, d *command.Descriptor, log *slog.Logger) bool {
	switch msg.Channel.Type {
	case chat.ChannelGuildText:
		if d.Has(command.DirectMessageOnly) {
			log.Debug("command denied", "reason", "direct message only")
			e.notify(ctx, msg.Channel.ID, Notice{Kind: NoticeWrongChannel, Descriptor: d, Prefix: e.prefix})
			return false
		}
		return true
	case chat.ChannelDirect:
		return d.Has(command.DirectMessageAllow) || d.Has(command.DirectMessageOnly)
	default:
		return false
	}
}

func (e *Engine) permissionsAllowed(ctx context.Context, msg chat.Message, d *command.Descriptor, log *slog.Logger) (bool, error) {
	guildID := msg.Channel.GuildID

	if d.UserPermissions != 0 {
		have, err := e.platform.MemberPermissions(ctx, guildID, msg.Author.ID)
		if err != nil {
			return false, fmt.Errorf("member permissions: %w", err)
		}
		if missing := have.Missing(d.UserPermissions); missing != 0 {
			log.Info("command denied", "reason", "missing permissions", "missing", missing.String())
			e.notify(ctx, msg.Channel.ID, Notice{Kind: NoticeMissingPermissions, Descriptor: d, Prefix: e.prefix, Missing: missing})
			return false, nil
		}
	}

	if d.BotPermissions != 0 {
		have, err := e.platform.SelfPermissions(ctx, guildID)
		if err != nil {
			return false, fmt.Errorf("self permissions: %w", err)
		}
		if missing := have.Missing(d.BotPermissions); missing != 0 {
			log.Info("command denied", "reason", "missing bot permissions", "missing", missing.String())
			e.notify(ctx, msg.Channel.ID, Notice{Kind: NoticeMissingBotPermissions, Descriptor: d, Prefix: e.prefix, Missing: missing})
			return false, nil
		}
	}
	return true, nil
}

// execute runs the handler and maps its error to a notice.
func (e *Engine) execute(ctx context.Context, inv *command.Invocation) {
	d := inv.Descriptor
	err := task.Run(ctx, func(ctx context.Context) error { return d.Handler(ctx, inv) })
	if err == nil {
		return
	}

	channelID := inv.Message.Channel.ID
	notice := Notice{Descriptor: d, Prefix: e.prefix}

	var (
		paramErr *command.ParameterError
		permErr  *command.BotPermissionError
		userErr  *command.UserError
	)
	switch {
	case errors.As(err, &paramErr):
		notice.Kind = NoticeIncorrectParameters
		notice.Text = paramErr.Message
	case errors.As(err, &permErr):
		notice.Kind = NoticeMissingBotPermissions
		notice.Missing = permErr.Missing
	case errors.As(err, &userErr):
		notice.Kind = NoticeError
		notice.Text = userErr.Message
	default:
		e.Log.Error("command failed",
			"invoker", inv.Invoker,
			"verb", inv.Verb,
			"invocation", inv.ID,
			"user", inv.Message.Author.ID,
			"channel", channelID,
			"body", inv.Body,
			"err", err,
		)
		notice.Kind = NoticeFailure
	}
	e.notify(ctx, channelID, notice)
}

func (e *Engine) notify(ctx context.Context, channelID uint64, n Notice) {
	if err := e.Notifier.Notify(ctx, channelID, n); err != nil {
		e.Log.Warn("failed to send notice", "kind", n.Kind.String(), "channel", channelID, "err", err)
	}
}

func (e *Engine) notifyListener(ctx context.Context, l Listener, fn func(ctx context.Context) error) {
	if err := task.Run(ctx, fn); err != nil {
		e.Log.Error("listener failed", "listener", fmt.Sprintf("%T", l), "err", err)
	}
}
