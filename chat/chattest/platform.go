// Package chattest provides an in-memory chat.Platform for tests.
package chattest

import (
	"context"
	"sync"

	"github.com/nicebartender/claudio-bot/chat"
)

// Sent is one message delivered through the fake platform.
type Sent struct {
	ChannelID uint64
	UserID    uint64
	Direct    bool
	Text      string
}

// Platform records everything sent through it. Its configuration fields
// must be set before it is shared with other goroutines.
type Platform struct {
	// Members holds each user's guild permissions, regardless of guild.
	Members map[uint64]chat.Permission
	Self    chat.Permission
	Roles   map[string]uint64

	// Blind lists users that cannot view a channel: channel id -> user ids.
	Blind map[uint64][]uint64

	// Err, when set, fails every directory call.
	Err error

	// Forbidden lists channels where Send fails with chat.ErrForbidden.
	Forbidden map[uint64]bool

	mu      sync.Mutex
	sent    []Sent
	deleted []uint64
}

func New() *Platform {
	return &Platform{
		Members:   make(map[uint64]chat.Permission),
		Roles:     make(map[string]uint64),
		Blind:     make(map[uint64][]uint64),
		Forbidden: make(map[uint64]bool),
	}
}

func (p *Platform) Send(_ context.Context, channelID uint64, text string) error {
	if p.Forbidden[channelID] {
		return chat.ErrForbidden
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, Sent{ChannelID: channelID, Text: text})
	return nil
}

func (p *Platform) SendDirect(_ context.Context, userID uint64, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, Sent{UserID: userID, Direct: true, Text: text})
	return nil
}

func (p *Platform) DeleteMessage(_ context.Context, _, messageID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
	return nil
}

func (p *Platform) MemberPermissions(_ context.Context, _, userID uint64) (chat.Permission, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Members[userID], nil
}

func (p *Platform) SelfPermissions(context.Context, uint64) (chat.Permission, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Self, nil
}

func (p *Platform) FindRole(_ context.Context, _ uint64, token string) (uint64, bool, error) {
	if p.Err != nil {
		return 0, false, p.Err
	}
	id, ok := p.Roles[token]
	return id, ok, nil
}

func (p *Platform) CanView(_ context.Context, channelID, userID uint64) (bool, error) {
	if p.Err != nil {
		return false, p.Err
	}
	for _, id := range p.Blind[channelID] {
		if id == userID {
			return false, nil
		}
	}
	return true, nil
}

// Sent returns a copy of every message sent so far.
func (p *Platform) Sent() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sent(nil), p.sent...)
}

// Channel returns the texts sent to channelID.
func (p *Platform) Channel(channelID uint64) []string {
	var out []string
	for _, s := range p.Sent() {
		if !s.Direct && s.ChannelID == channelID {
			out = append(out, s.Text)
		}
	}
	return out
}

// Direct returns the texts sent to userID by direct message.
func (p *Platform) Direct(userID uint64) []string {
	var out []string
	for _, s := range p.Sent() {
		if s.Direct && s.UserID == userID {
			out = append(out, s.Text)
		}
	}
	return out
}

func (p *Platform) Deleted() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.deleted...)
}

var _ chat.Platform = (*Platform)(nil)
