package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/chat/chattest"
	"github.com/nicebartender/claudio-bot/command"
	"github.com/nicebartender/claudio-bot/task"
)

const (
	ownerID   = 1
	memberID  = 2
	guildID   = 100
	channelID = 200
	dmID      = 300
)

var (
	guildText = chat.Channel{ID: channelID, Type: chat.ChannelGuildText, GuildID: guildID}
	direct    = chat.Channel{ID: dmID, Type: chat.ChannelDirect}
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	engine   *Engine
	platform *chattest.Platform
	logs     *lockedBuffer
}

func newFixture(t *testing.T, descriptors ...*command.Descriptor) *fixture {
	t.Helper()
	platform := chattest.New()
	logs := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	registry := command.NewRegistry()
	require.NoError(t, registry.Register(descriptors...))

	e := New(Config{Prefix: "!", Owners: []uint64{ownerID}}, registry, platform, task.NewGroup(logger))
	e.Log = logger
	return &fixture{engine: e, platform: platform, logs: logs}
}

func (f *fixture) send(author uint64, channel chat.Channel, text string) {
	f.engine.HandleMessage(context.Background(), chat.Message{
		ID:      42,
		Author:  chat.User{ID: author},
		Channel: channel,
		Content: text,
	})
	f.engine.Wait()
}

func counting(calls *atomic.Int32) command.Handler {
	return func(context.Context, *command.Invocation) error {
		calls.Add(1)
		return nil
	}
}

func TestPermissionDenial(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, &command.Descriptor{
		Invoker:         "role",
		Verb:            "giveall",
		Params:          []command.Parameter{{Name: "Role", Type: command.Role}},
		UserPermissions: chat.PermManageRoles,
		BotPermissions:  chat.PermManageRoles,
		Flags:           command.RunAsync,
		Handler:         counting(&calls),
	})
	f.platform.Roles["Admins"] = 9
	f.platform.Self = chat.PermManageRoles

	f.send(memberID, guildText, "!role giveall Admins")
	assert.Equal(t, int32(0), calls.Load())
	require.Len(t, f.platform.Channel(channelID), 1)
	assert.Contains(t, f.platform.Channel(channelID)[0], "ManageRoles")

	f.platform.Members[memberID] = chat.PermManageRoles
	f.platform.Self = 0
	f.send(memberID, guildText, "!role giveall Admins")
	assert.Equal(t, int32(0), calls.Load())
	assert.Contains(t, f.platform.Channel(channelID)[1], "The bot needs")

	f.platform.Self = chat.PermManageRoles
	f.send(memberID, guildText, "!role giveall Admins")
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, f.platform.Channel(channelID), 2)
}

func TestAdministratorSatisfiesPermissions(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, &command.Descriptor{
		Invoker:         "purge",
		UserPermissions: chat.PermManageMessages,
		Handler:         counting(&calls),
	})
	f.platform.Members[memberID] = chat.PermAdministrator

	f.send(memberID, guildText, "!purge")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSourceChecks(t *testing.T) {
	var guildOnly, dmOnly, anywhere atomic.Int32
	f := newFixture(t,
		&command.Descriptor{Invoker: "guild", Handler: counting(&guildOnly)},
		&command.Descriptor{Invoker: "secret", Flags: command.DirectMessageOnly, Handler: counting(&dmOnly)},
		&command.Descriptor{Invoker: "ping", Flags: command.DirectMessageAllow, Handler: counting(&anywhere)},
	)

	f.send(memberID, direct, "!guild")
	assert.Equal(t, int32(0), guildOnly.Load())
	assert.Empty(t, f.platform.Sent(), "a guild command in a direct message is ignored silently")

	f.send(memberID, guildText, "!secret")
	assert.Equal(t, int32(0), dmOnly.Load())
	assert.Equal(t, []string{"❌ This command can only be used in a direct message."}, f.platform.Channel(channelID))

	f.send(memberID, direct, "!secret")
	f.send(memberID, direct, "!ping")
	f.send(memberID, guildText, "!ping")
	assert.Equal(t, int32(1), dmOnly.Load())
	assert.Equal(t, int32(2), anywhere.Load())
}

func TestOwnerOnly(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, &command.Descriptor{
		Invoker: "shutdown",
		Flags:   command.OwnerOnly | command.DirectMessageAllow,
		Handler: counting(&calls),
	})

	f.send(memberID, guildText, "!shutdown")
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, []string{"❌ Only the bot owner can use this command."}, f.platform.Channel(channelID))

	f.send(ownerID, direct, "!shutdown")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFilteredMessages(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, &command.Descriptor{Invoker: "ping", Handler: counting(&calls)})

	f.engine.HandleMessage(context.Background(), chat.Message{
		Author: chat.User{ID: memberID, Bot: true}, Channel: guildText, Content: "!ping",
	})
	f.engine.HandleMessage(context.Background(), chat.Message{
		Kind: chat.MessageSystem, Author: chat.User{ID: memberID}, Channel: guildText, Content: "!ping",
	})
	f.send(memberID, guildText, "!pong")
	f.send(memberID, guildText, "ping")
	assert.Equal(t, int32(0), calls.Load())
	assert.Empty(t, f.platform.Sent())
}

func TestIncorrectParameters(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, &command.Descriptor{
		Invoker:       "vote",
		Params:        []command.Parameter{{Name: "Answer", Type: command.UInt}},
		UsageTemplate: "{p}vote AnswerNumber",
		Handler:       counting(&calls),
	})

	f.send(memberID, guildText, "!vote")
	f.send(memberID, guildText, "!vote two")
	assert.Equal(t, int32(0), calls.Load())
	sent := f.platform.Channel(channelID)
	require.Len(t, sent, 2)
	assert.Equal(t, "❌ Incorrect parameters.\nUsage: `!vote AnswerNumber`", sent[0])

	f.send(memberID, guildText, "!vote 2")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
		logs bool
	}{
		{"user error", command.Errorf("You already have %d keywords.", 15), "❌ You already have 15 keywords.", false},
		{"parameter error", command.ParameterErrorf("Keyword is too short."), "❌ Keyword is too short.\nUsage: `!fail`", false},
		{"bot permission", &command.BotPermissionError{Missing: chat.PermManageMessages}, "❌ The bot needs the following permissions to run this command: ManageMessages.", false},
		{"wrapped user error", errors.Join(errors.New("ctx"), command.Errorf("nope")), "❌ nope", false},
		{"unexpected", errors.New("disk on fire"), "❌ Failed to process the command. Please try again later.", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &command.Descriptor{
				Invoker: "fail",
				Handler: func(context.Context, *command.Invocation) error { return tc.err },
			})
			f.send(memberID, guildText, "!fail")
			assert.Equal(t, []string{tc.want}, f.platform.Channel(channelID))
			assert.Equal(t, tc.logs, bytes.Contains([]byte(f.logs.String()), []byte("command failed")))
		})
	}
}

func TestUnexpectedErrorIsLoggedWithContext(t *testing.T) {
	f := newFixture(t, &command.Descriptor{
		Invoker: "poll",
		Verb:    "start",
		Handler: func(context.Context, *command.Invocation) error { return errors.New("boom") },
	})
	f.send(memberID, guildText, "!poll start now")

	logs := f.logs.String()
	assert.Contains(t, logs, "invoker=poll")
	assert.Contains(t, logs, "verb=start")
	assert.Contains(t, logs, "invocation=")
	assert.Contains(t, logs, "err=boom")
}

func TestPanicDoesNotStopNextMessage(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t,
		&command.Descriptor{Invoker: "explode", Handler: func(context.Context, *command.Invocation) error { panic("boom") }},
		&command.Descriptor{Invoker: "detonate", Flags: command.RunAsync, Handler: func(context.Context, *command.Invocation) error { panic("later") }},
		&command.Descriptor{Invoker: "ping", Handler: counting(&calls)},
	)

	f.send(memberID, guildText, "!explode")
	f.send(memberID, guildText, "!detonate")
	f.send(memberID, guildText, "!ping")

	assert.Equal(t, int32(1), calls.Load())
	sent := f.platform.Channel(channelID)
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Failed to process")
	assert.Contains(t, sent[1], "Failed to process")
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, uint64, Notice) error {
	panic("notifier exploded")
}

func TestPanicOutsideHandlerStaysInEngine(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t,
		&command.Descriptor{Invoker: "shutdown", Flags: command.OwnerOnly, Handler: counting(&calls)},
		&command.Descriptor{Invoker: "ping", Handler: counting(&calls)},
	)
	f.engine.Notifier = panickingNotifier{}

	assert.NotPanics(t, func() { f.send(memberID, guildText, "!shutdown") })
	assert.Contains(t, f.logs.String(), "message handling failed")
	assert.Contains(t, f.logs.String(), "notifier exploded")

	f.send(memberID, guildText, "!ping")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDetachedHandlerDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	f := newFixture(t, &command.Descriptor{
		Invoker: "slow",
		Flags:   command.RunAsync,
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			<-release
			close(done)
			return inv.Reply(ctx, "finished")
		},
	})

	f.engine.HandleMessage(context.Background(), chat.Message{
		Author: chat.User{ID: memberID}, Channel: guildText, Content: "!slow",
	})
	select {
	case <-done:
		t.Fatal("handler finished before it was released")
	default:
	}
	close(release)
	f.engine.Wait()
	assert.Equal(t, []string{"finished"}, f.platform.Channel(channelID))
}

func TestPermissionLookupFailure(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, &command.Descriptor{
		Invoker:         "kick",
		UserPermissions: chat.PermKickMembers,
		Handler:         counting(&calls),
	})
	f.platform.Err = errors.New("bridge offline")

	f.send(memberID, guildText, "!kick")
	assert.Equal(t, int32(0), calls.Load())
	assert.Len(t, f.platform.Channel(channelID), 1)
	assert.Contains(t, f.logs.String(), "bridge offline")
}

type recordingListener struct {
	mu       sync.Mutex
	messages []string
	typing   []uint64
	panics   bool
}

func (l *recordingListener) OnMessage(_ context.Context, msg chat.Message) error {
	if l.panics {
		panic("listener bug")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg.Content)
	return nil
}

func (l *recordingListener) OnTyping(_ context.Context, userID, _ uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.typing = append(l.typing, userID)
	return nil
}

type listenerModule struct {
	recordingListener
}

func (m *listenerModule) Commands() []*command.Descriptor {
	return []*command.Descriptor{{Invoker: "noop", Handler: func(context.Context, *command.Invocation) error { return nil }}}
}

func TestListeners(t *testing.T) {
	f := newFixture(t)
	m := &listenerModule{}
	require.NoError(t, f.engine.Use(m))
	f.engine.AddListener(&recordingListener{panics: true})

	f.send(memberID, guildText, "hello there")
	f.send(memberID, guildText, "!noop")
	f.engine.HandleMessage(context.Background(), chat.Message{Author: chat.User{ID: 5, Bot: true}, Channel: guildText, Content: "beep"})
	f.engine.HandleTyping(context.Background(), memberID, channelID)

	assert.Equal(t, []string{"hello there", "!noop"}, m.messages)
	assert.Equal(t, []uint64{memberID}, m.typing)
	assert.Contains(t, f.logs.String(), "listener bug")

	_, ok := f.engine.Registry().Find("noop", "")
	assert.True(t, ok)
	assert.Error(t, f.engine.Use(m), "registering the same module twice conflicts")
}
