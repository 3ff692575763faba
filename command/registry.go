package command

import (
	"fmt"
	"strings"
)

type entry struct {
	invoker string
	verb    []string
	d       *Descriptor
}

// Registry maps invokers to descriptors. It is filled at startup; Register
// must not be called once messages are being resolved.
type Registry struct {
	commands    map[string][]entry
	seen        map[string]*Descriptor
	descriptors []*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string][]entry),
		seen:     make(map[string]*Descriptor),
	}
}

// Register adds descriptors under their invoker and every alias. An invalid
// descriptor or an invoker/verb pair that is already taken is an error and
// nothing from that call is registered.
func (r *Registry) Register(descriptors ...*Descriptor) error {
	type pending struct {
		key string
		e   entry
	}
	var batch []pending
	keys := make(map[string]bool)

	for _, d := range descriptors {
		if err := d.validate(); err != nil {
			return fmt.Errorf("register: %w", err)
		}

		names := append([]Alias{{Invoker: d.Invoker, Verb: d.Verb}}, d.Aliases...)
		for _, a := range names {
			e := entry{invoker: a.Invoker, verb: strings.Fields(strings.ToLower(a.Verb)), d: d}
			key := strings.ToLower(a.Invoker) + "\x00" + strings.Join(e.verb, " ")
			if other, ok := r.seen[key]; ok || keys[key] {
				name := strings.TrimSpace(a.Invoker + " " + a.Verb)
				if other != nil {
					return fmt.Errorf("register: %q already registered by %q", name, other.Name())
				}
				return fmt.Errorf("register: %q registered twice", name)
			}
			keys[key] = true
			batch = append(batch, pending{key: key, e: e})
		}
	}

	for _, p := range batch {
		invoker := strings.ToLower(p.e.invoker)
		r.commands[invoker] = append(r.commands[invoker], p.e)
		r.seen[p.key] = p.e.d
	}
	r.descriptors = append(r.descriptors, descriptors...)
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(descriptors ...*Descriptor) {
	if err := r.Register(descriptors...); err != nil {
		panic(err)
	}
}

// Resolve finds the descriptor for a command message. When words follow the
// invoker, the descriptor with the longest verb matching them wins;
// otherwise the invoker's verb-less descriptor is used.
func (r *Registry) Resolve(prefix, text string) (Resolved, bool) {
	in, ok := Parse(prefix, text)
	if !ok {
		return Resolved{}, false
	}
	return r.Lookup(in)
}

// Lookup is Resolve for already parsed input.
func (r *Registry) Lookup(in Input) (Resolved, bool) {
	candidates, ok := r.commands[strings.ToLower(in.Invoker)]
	if !ok {
		return Resolved{}, false
	}

	var best *entry
	for i := range candidates {
		c := &candidates[i]
		if len(c.verb) == 0 || len(c.verb) > len(in.Args) {
			continue
		}
		if !verbMatches(c.verb, in.Args) {
			continue
		}
		if best == nil || len(c.verb) > len(best.verb) {
			best = c
		}
	}
	if best == nil {
		for i := range candidates {
			if len(candidates[i].verb) == 0 {
				best = &candidates[i]
				break
			}
		}
	}
	if best == nil {
		return Resolved{}, false
	}

	return Resolved{
		Descriptor: best.d,
		Input:      in,
		Invoker:    best.invoker,
		Verb:       strings.Join(best.verb, " "),
		verbLen:    len(best.verb),
	}, true
}

// Descriptors returns every registered descriptor in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), r.descriptors...)
}

// Find returns the descriptor registered exactly under invoker and verb.
func (r *Registry) Find(invoker, verb string) (*Descriptor, bool) {
	key := strings.ToLower(invoker) + "\x00" + strings.Join(strings.Fields(strings.ToLower(verb)), " ")
	d, ok := r.seen[key]
	return d, ok
}

func verbMatches(verb []string, args []Token) bool {
	for i, w := range verb {
		if !strings.EqualFold(w, args[i].Value) {
			return false
		}
	}
	return true
}
