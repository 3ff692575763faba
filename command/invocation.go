package command

import (
	"context"
	"strings"

	"github.com/nicebartender/claudio-bot/chat"
)

// Resolved is the result of a registry lookup.
type Resolved struct {
	Descriptor *Descriptor
	Input      Input
	// Invoker and Verb are the registered names the input matched, which
	// may be an alias of the descriptor's own.
	Invoker string
	Verb    string
	verbLen int
}

// Invocation is what a handler receives: the message, the matched command,
// and its parameters.
type Invocation struct {
	ID         string
	Message    chat.Message
	Prefix     string
	Descriptor *Descriptor
	Invoker    string
	Verb       string
	// Body is the text after the invoker and verb.
	Body   string
	Params []Param

	Messenger chat.Messenger
}

// NewInvocation builds the invocation for a resolved message. A Remainder
// parameter swallows every argument from its position on: the token values
// joined by the white space that separated them.
func NewInvocation(msg chat.Message, prefix string, r Resolved) *Invocation {
	args := r.Input.Args[r.verbLen:]
	inv := &Invocation{
		Message:    msg,
		Prefix:     prefix,
		Descriptor: r.Descriptor,
		Invoker:    r.Invoker,
		Verb:       r.Verb,
	}
	if len(args) > 0 {
		inv.Body = strings.TrimSpace(r.Input.Body[args[0].Start:])
	}

	for i, tok := range args {
		if i < len(r.Descriptor.Params) && r.Descriptor.Params[i].Flags&Remainder != 0 {
			inv.Params = append(inv.Params, NewParam(remainder(r.Input.Body, args[i:])))
			break
		}
		inv.Params = append(inv.Params, NewParam(tok.Value))
	}
	return inv
}

func remainder(body string, tokens []Token) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			b.WriteString(body[tokens[i-1].End:tok.Start])
		}
		b.WriteString(tok.Value)
	}
	return b.String()
}

// Arg returns the i-th parameter.
func (inv *Invocation) Arg(i int) (Param, bool) {
	if i < 0 || i >= len(inv.Params) {
		return Param{}, false
	}
	return inv.Params[i], true
}

// Param returns the parameter registered under name.
func (inv *Invocation) Param(name string) (Param, bool) {
	return inv.Arg(inv.Descriptor.Param(name))
}

// GuildID is the id of the guild the command was sent in, or 0 for direct messages.
func (inv *Invocation) GuildID() uint64 {
	if !inv.Message.Channel.InGuild() {
		return 0
	}
	return inv.Message.Channel.GuildID
}

// CheckParams validates parameter count and types against the descriptor.
func (inv *Invocation) CheckParams(ctx context.Context, roles RoleFinder) (bool, error) {
	d := inv.Descriptor
	if d.Has(IgnoreParameters) {
		return true, nil
	}

	required := 0
	for _, p := range d.Params {
		if p.Flags&Optional == 0 {
			required++
		}
	}
	if len(inv.Params) < required {
		return false, nil
	}

	for i, want := range d.Params {
		if i >= len(inv.Params) {
			break
		}
		ok, err := inv.Params[i].resolve(ctx, want.Type, inv.GuildID(), roles)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (inv *Invocation) Reply(ctx context.Context, text string) error {
	return inv.Messenger.Send(ctx, inv.Message.Channel.ID, text)
}

func (inv *Invocation) ReplySuccess(ctx context.Context, text string) error {
	return inv.Reply(ctx, "✅ "+text)
}

func (inv *Invocation) ReplyError(ctx context.Context, text string) error {
	return inv.Reply(ctx, "❌ "+text)
}

// ReplyDirect sends text to the author in a direct message.
func (inv *Invocation) ReplyDirect(ctx context.Context, text string) error {
	return inv.Messenger.SendDirect(ctx, inv.Message.Author.ID, text)
}
