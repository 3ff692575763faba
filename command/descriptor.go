// Package command describes registered commands, parses command messages,
// and maps invocations to descriptors.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/nicebartender/claudio-bot/chat"
)

// PrefixPlaceholder is replaced with the live command prefix in usage text.
const PrefixPlaceholder = "{p}"

type Handler func(ctx context.Context, inv *Invocation) error

type Flag uint32

const (
	OwnerOnly Flag = 1 << iota
	Hidden
	// DirectMessageAllow lets the command run in direct messages as well as guilds.
	DirectMessageAllow
	// DirectMessageOnly restricts the command to direct messages.
	DirectMessageOnly
	// RunAsync runs the handler detached from the message that invoked it.
	RunAsync
	// IgnoreParameters skips parameter validation.
	IgnoreParameters
)

type ParamFlag uint32

const (
	// Remainder captures all trailing text; only valid on the last parameter.
	Remainder ParamFlag = 1 << iota
	// Optional parameters may be omitted; they must trail the required ones.
	Optional
)

type Parameter struct {
	Name        string
	Type        ParamType
	Flags       ParamFlag
	Description string
}

// Alias is an alternative invoker/verb pair for a command.
type Alias struct {
	Invoker string
	Verb    string
	Hidden  bool
}

// Descriptor is one registered command variant. It must not be modified
// after registration.
type Descriptor struct {
	Invoker     string
	Verb        string
	Aliases     []Alias
	Description string
	// UsageTemplate may reference PrefixPlaceholder.
	UsageTemplate   string
	Params          []Parameter
	UserPermissions chat.Permission
	BotPermissions  chat.Permission
	Flags           Flag
	Handler         Handler
}

func (d *Descriptor) Has(f Flag) bool {
	return d.Flags&f != 0
}

// Name is the invoker followed by the verb, if any.
func (d *Descriptor) Name() string {
	if d.Verb == "" {
		return d.Invoker
	}
	return d.Invoker + " " + d.Verb
}

// Usage renders the usage text for prefix. Without a template it is built
// from the parameter list.
func (d *Descriptor) Usage(prefix string) string {
	if d.UsageTemplate != "" {
		return strings.ReplaceAll(d.UsageTemplate, PrefixPlaceholder, prefix)
	}

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(d.Name())
	for _, p := range d.Params {
		name := p.Name
		if name == "" {
			name = p.Type.String()
		}
		if p.Flags&Remainder != 0 {
			name += "..."
		}
		if p.Flags&Optional != 0 {
			fmt.Fprintf(&b, " [%s]", name)
		} else {
			fmt.Fprintf(&b, " %s", name)
		}
	}
	return b.String()
}

// Param returns the index of the named parameter, or -1.
func (d *Descriptor) Param(name string) int {
	for i, p := range d.Params {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// validate checks everything that can be checked before traffic starts.
func (d *Descriptor) validate() error {
	if d.Invoker == "" || strings.ContainsFunc(d.Invoker, isSpace) {
		return fmt.Errorf("invalid invoker %q", d.Invoker)
	}
	if d.Handler == nil {
		return fmt.Errorf("%s: no handler", d.Name())
	}
	if d.Has(DirectMessageOnly) && d.UserPermissions != 0 {
		return fmt.Errorf("%s: direct message commands cannot require guild permissions", d.Name())
	}
	if err := validateTemplate(d.UsageTemplate); err != nil {
		return fmt.Errorf("%s: %w", d.Name(), err)
	}

	optional := false
	for i, p := range d.Params {
		if p.Flags&Remainder != 0 && i != len(d.Params)-1 {
			return fmt.Errorf("%s: remainder parameter %q is not last", d.Name(), p.Name)
		}
		if p.Flags&Optional != 0 {
			optional = true
		} else if optional {
			return fmt.Errorf("%s: required parameter %q follows an optional one", d.Name(), p.Name)
		}
	}
	for _, a := range d.Aliases {
		if a.Invoker == "" || strings.ContainsFunc(a.Invoker, isSpace) {
			return fmt.Errorf("%s: invalid alias invoker %q", d.Name(), a.Invoker)
		}
	}
	return nil
}

// validateTemplate accepts only the prefix placeholder inside braces.
func validateTemplate(tmpl string) error {
	rest := strings.ReplaceAll(tmpl, PrefixPlaceholder, "")
	if i := strings.IndexAny(rest, "{}"); i >= 0 {
		return fmt.Errorf("malformed usage template near %q", rest[i:min(len(rest), i+8)])
	}
	return nil
}
