package notify

import "sync"

type pendingKey struct {
	user    uint64
	channel uint64
}

// pending tracks delayed notifications per recipient and channel. Activity
// by the recipient in that channel resets the set, and a notification only
// goes out if it can still claim its message afterwards.
type pending struct {
	mu       sync.Mutex
	messages map[pendingKey]map[uint64]struct{}
}

func newPending() *pending {
	return &pending{messages: make(map[pendingKey]map[uint64]struct{})}
}

func (p *pending) Register(key pendingKey, messageID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.messages[key]
	if !ok {
		set = make(map[uint64]struct{})
		p.messages[key] = set
	}
	set[messageID] = struct{}{}
}

// Claim removes messageID and reports whether it was still pending.
func (p *pending) Claim(key pendingKey, messageID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.messages[key]
	if !ok {
		return false
	}
	if _, ok := set[messageID]; !ok {
		return false
	}
	delete(set, messageID)
	if len(set) == 0 {
		delete(p.messages, key)
	}
	return true
}

func (p *pending) Reset(key pendingKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.messages, key)
}

func (p *pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}
