package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicebartender/claudio-bot/chat"
	"github.com/nicebartender/claudio-bot/chat/chattest"
	"github.com/nicebartender/claudio-bot/command"
	"github.com/nicebartender/claudio-bot/dispatch"
	"github.com/nicebartender/claudio-bot/matcher"
	"github.com/nicebartender/claudio-bot/settings"
	"github.com/nicebartender/claudio-bot/task"
)

const (
	alice   = 10
	bob     = 11
	carol   = 12
	guild   = 500
	general = 600
	other   = 601
)

type fixture struct {
	t        *testing.T
	engine   *dispatch.Engine
	module   *Module
	store    *settings.Store
	platform *chattest.Platform
	nextID   uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, settings.NewMemoryBackend())
}

func newFixtureWith(t *testing.T, backend settings.Backend) *fixture {
	t.Helper()
	platform := chattest.New()
	store := settings.New(backend, nil, nil)
	tasks := task.NewGroup(nil)

	module := New(store, platform, tasks, time.Millisecond)
	engine := dispatch.New(dispatch.Config{Prefix: "!"}, command.NewRegistry(), platform, tasks)
	require.NoError(t, engine.Use(module))

	return &fixture{t: t, engine: engine, module: module, store: store, platform: platform}
}

func (f *fixture) say(author uint64, channelID uint64, text string) uint64 {
	f.nextID++
	f.engine.HandleMessage(context.Background(), chat.Message{
		ID:        f.nextID,
		Author:    chat.User{ID: author, Name: fmt.Sprintf("user%d", author)},
		Channel:   chat.Channel{ID: channelID, Type: chat.ChannelGuildText, GuildID: guild, GuildName: "Dusty"},
		Content:   text,
		CreatedAt: time.Date(2024, 5, 1, 13, 37, 0, 0, time.UTC),
	})
	f.engine.Wait()
	return f.nextID
}

// seed adds keywords without going through commands, whose own messages
// would otherwise trigger notifications for keywords seeded earlier.
func (f *fixture) seed(user uint64, words ...string) {
	err := settings.Modify(context.Background(), f.store, guild, func(s *Settings) error {
		for _, w := range words {
			s.Keywords = append(s.Keywords, Keyword{User: user, Lowered: lower(w), Original: w})
		}
		return nil
	})
	require.NoError(f.t, err)
	f.module.trees.Delete(guild)
}

func (f *fixture) keywords() []Keyword {
	s, err := settings.Find[Settings](context.Background(), f.store, guild)
	require.NoError(f.t, err)
	return s.Keywords
}

func TestNotifiesOnWholeWords(t *testing.T) {
	f := newFixture(t)
	f.say(alice, general, "!notification add hello")
	require.Len(t, f.keywords(), 1)

	f.say(bob, general, "hello there")
	dms := f.platform.Direct(alice)
	require.Len(t, dms, 1)
	assert.Equal(t, "🔔 `user11` mentioned `hello` on `Dusty`:\n> hello there\n\n`13:37 UTC` | <#600>", dms[0])
	assert.Equal(t, 1, f.keywords()[0].Triggers)

	f.say(bob, general, "othello")
	assert.Len(t, f.platform.Direct(alice), 1)
	assert.Equal(t, 1, f.keywords()[0].Triggers)
}

func TestOneNotificationPerUserPerMessage(t *testing.T) {
	f := newFixture(t)
	f.seed(alice, "hello", "world")
	f.seed(carol, "world")

	f.say(bob, general, "HELLO world, hello again")
	assert.Len(t, f.platform.Direct(alice), 1)
	assert.Len(t, f.platform.Direct(carol), 1)

	f.say(alice, general, "hello world")
	assert.Len(t, f.platform.Direct(alice), 1, "no notifications for your own messages")
	assert.Len(t, f.platform.Direct(carol), 2)
}

func TestSkipsUsersWhoCannotViewChannel(t *testing.T) {
	f := newFixture(t)
	f.say(alice, general, "!notification add secret")
	f.platform.Blind[other] = []uint64{alice}

	f.say(bob, other, "the secret plan")
	assert.Empty(t, f.platform.Direct(alice))
	assert.Equal(t, 0, f.keywords()[0].Triggers)
}

func TestRefusedAddKeepsCachedTree(t *testing.T) {
	f := newFixture(t)
	f.seed(carol, "pizza")

	// A scan reads the keywords on a cold cache, and two adds land before it
	// stores its tree: alice's succeeds, carol's duplicate is refused.
	_, err := f.module.trees.LoadOrBuild(guild, func() ([]matcher.Entry[Keyword], error) {
		s, err := settings.Find[Settings](context.Background(), f.store, guild)
		require.NoError(t, err)
		f.say(alice, general, "!notification add hello")
		f.say(carol, general, "!notification add pizza")
		return s.entries(), nil
	})
	require.NoError(t, err)

	_, cached := f.module.trees.Load(guild)
	assert.True(t, cached)
	require.Len(t, f.keywords(), 2)

	f.say(bob, general, "hello there")
	assert.Len(t, f.platform.Direct(alice), 1)
}

type flakyBackend struct {
	*settings.MemoryBackend
	fail bool
}

func (b *flakyBackend) Upsert(ctx context.Context, kind string, id uint64, body []byte) error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.MemoryBackend.Upsert(ctx, kind, id, body)
}

func TestUnsavedAddIsNotMatched(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: settings.NewMemoryBackend()}
	f := newFixtureWith(t, backend)
	f.seed(carol, "pizza")
	f.say(bob, general, "pizza time")
	require.Len(t, f.platform.Direct(carol), 1)

	backend.fail = true
	f.say(alice, general, "!notification add hello")
	backend.fail = false
	assert.Contains(t, f.platform.Channel(general)[0], "Failed to process the command")
	require.Len(t, f.keywords(), 1)

	f.say(bob, general, "hello pizza")
	assert.Empty(t, f.platform.Direct(alice))
	assert.Len(t, f.platform.Direct(carol), 2)
}

func TestAddValidation(t *testing.T) {
	f := newFixture(t)

	f.say(alice, general, "!notification add x")
	f.say(alice, general, "!notification add "+strings.Repeat("a", MaxKeywordLength+1))
	f.say(alice, general, "!notification add")
	sent := f.platform.Channel(general)
	require.Len(t, sent, 3)
	assert.Equal(t, "❌ A notification has to be at least 2 characters long.", sent[0])
	assert.Equal(t, "❌ A notification can't be longer than 50 characters.", sent[1])
	assert.Contains(t, sent[2], "Incorrect parameters")

	f.say(alice, general, "!notification add Ice Cream")
	f.say(alice, general, "!notification add ice cream")
	sent = f.platform.Channel(general)
	assert.Equal(t, "✅ You will now be notified when this word is mentioned.", sent[3])
	assert.Equal(t, "❌ You are already being notified for this word.", sent[4])
	assert.Equal(t, []Keyword{{User: alice, Lowered: "ice cream", Original: "Ice Cream"}}, f.keywords())

	for i := 1; i < MaxKeywordsPerUser; i++ {
		f.say(alice, general, fmt.Sprintf("!notification word%d", i))
	}
	assert.Len(t, f.keywords(), MaxKeywordsPerUser)
	f.say(alice, general, "!notification one too many")
	assert.Len(t, f.keywords(), MaxKeywordsPerUser)
	sent = f.platform.Channel(general)
	assert.Contains(t, sent[len(sent)-1], "You cannot have more notifications on this server")

	assert.NotEmpty(t, f.platform.Deleted(), "the command message is deleted so the word stays private")
}

func TestRemoveAndList(t *testing.T) {
	f := newFixture(t)
	f.say(alice, general, "!notification list")
	assert.Equal(t, "You don't have any notified words on this server. Use `!notification add` to add some.", f.platform.Channel(general)[0])

	f.say(alice, general, "!notification add Pizza")
	f.say(alice, general, "!notification add pasta")
	f.say(bob, general, "pizza time")

	f.say(alice, general, "!notification list")
	dms := f.platform.Direct(alice)
	require.Len(t, dms, 2)
	assert.Equal(t, "Your notified words on `Dusty`:\n`Pizza` - notified `1` times\n`pasta` - notified `0` times\n", dms[1])

	f.say(alice, general, "!notification remove PIZZA")
	f.say(alice, general, "!notification remove pizza")
	sent := f.platform.Channel(general)
	assert.Equal(t, "✅ You will no longer be notified when this word is mentioned.", sent[len(sent)-2])
	assert.Contains(t, sent[len(sent)-1], "You don't have this word set as a notification")

	f.say(bob, general, "pizza again")
	assert.Len(t, f.platform.Direct(alice), 2)
}

func TestHelp(t *testing.T) {
	f := newFixture(t)
	f.say(alice, general, "!notif help me")
	sent := f.platform.Channel(general)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "`!notification add Word...` - Adds a word")
	assert.NotContains(t, sent[0], "Shows help")
}

func TestIgnoreActiveChannel(t *testing.T) {
	f := newFixture(t)
	fire := make(chan time.Time)
	waiting := make(chan struct{}, 4)
	f.module.after = func(time.Duration) <-chan time.Time {
		waiting <- struct{}{}
		return fire
	}

	f.say(alice, general, "!notification add hello")
	f.say(alice, general, "!notification ignore active channel")
	assert.Contains(t, f.platform.Channel(general)[1], "You won't be notified")

	// Typing in the channel cancels the pending notification.
	f.engine.HandleMessage(context.Background(), chat.Message{
		ID:      100,
		Author:  chat.User{ID: bob},
		Channel: chat.Channel{ID: general, Type: chat.ChannelGuildText, GuildID: guild},
		Content: "hello",
	})
	<-waiting
	f.engine.HandleTyping(context.Background(), alice, general)
	fire <- time.Time{}
	f.engine.Wait()
	assert.Empty(t, f.platform.Direct(alice))
	assert.Equal(t, 1, f.keywords()[0].Triggers, "the trigger still counts")

	// Activity in another channel does not.
	f.engine.HandleMessage(context.Background(), chat.Message{
		ID:      101,
		Author:  chat.User{ID: bob},
		Channel: chat.Channel{ID: general, Type: chat.ChannelGuildText, GuildID: guild},
		Content: "hello",
	})
	<-waiting
	f.engine.HandleTyping(context.Background(), alice, other)
	fire <- time.Time{}
	f.engine.Wait()
	assert.Len(t, f.platform.Direct(alice), 1)
	assert.Equal(t, 0, f.module.pending.Len())

	f.say(alice, general, "!notification ignore active channel")
	sent := f.platform.Channel(general)
	assert.Equal(t, "✅ You will now be notified for every message instantly.", sent[len(sent)-1])
}

func TestPending(t *testing.T) {
	p := newPending()
	key := pendingKey{user: 1, channel: 2}

	assert.False(t, p.Claim(key, 7))
	p.Register(key, 7)
	p.Register(key, 8)
	assert.True(t, p.Claim(key, 7))
	assert.False(t, p.Claim(key, 7))

	p.Reset(key)
	assert.False(t, p.Claim(key, 8))
	assert.Equal(t, 0, p.Len())
}

func TestSettingsHelpers(t *testing.T) {
	s := &Settings{Keywords: []Keyword{
		{User: 1, Lowered: "a"},
		{User: 2, Lowered: "a"},
		{User: 1, Lowered: "b"},
	}}
	assert.Len(t, s.ForUser(1), 2)
	assert.True(t, s.RaiseCount(2, "a"))
	assert.False(t, s.RaiseCount(2, "b"))
	assert.Equal(t, 1, s.Keywords[1].Triggers)
	assert.True(t, s.Remove(1, "a"))
	assert.False(t, s.Remove(1, "a"))
	assert.Len(t, s.Keywords, 2)
	assert.Equal(t, "straße", lower("STRAßE"))
}
