// Package matcher finds every occurrence of a set of keywords in a text in a
// single forward scan over a rune trie.
package matcher

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Entry is one keyword and the value reported when it is found.
type Entry[T any] struct {
	Pattern string
	Value   T
}

// Hit is one occurrence. Start and Len are rune offsets into Fold(text).
type Hit[T any] struct {
	Start int
	Len   int
	Value T
}

type node[T any] struct {
	children map[rune]*node[T]
	terms    []terminator[T]
}

type terminator[T any] struct {
	length int
	value  T
}

// Tree is immutable once built and safe for concurrent Match calls.
type Tree[T any] struct {
	root    *node[T]
	entries int
}

// New builds a tree over entries. Patterns are folded the same way as the
// text passed to Match; empty patterns are ignored.
func New[T any](entries []Entry[T]) *Tree[T] {
	t := &Tree[T]{root: &node[T]{}}
	for _, e := range entries {
		pattern := Fold(e.Pattern)
		if len(pattern) == 0 {
			continue
		}

		current := t.root
		for _, r := range pattern {
			next, ok := current.children[r]
			if !ok {
				if current.children == nil {
					current.children = make(map[rune]*node[T])
				}
				next = &node[T]{}
				current.children[r] = next
			}
			current = next
		}
		current.terms = append(current.terms, terminator[T]{length: len(pattern), value: e.Value})
		t.entries++
	}
	return t
}

// Len returns the number of patterns in the tree.
func (t *Tree[T]) Len() int {
	return t.entries
}

// Match reports every occurrence of every pattern, including ones embedded
// in longer words.
func (t *Tree[T]) Match(text string) []Hit[T] {
	return t.match(Fold(text))
}

// MatchWords is Match with hits inside a larger word removed.
func (t *Tree[T]) MatchWords(text string) []Hit[T] {
	folded := Fold(text)
	hits := t.match(folded)

	words := hits[:0]
	for _, h := range hits {
		if IsWordBoundary(folded, h.Start, h.Len) {
			words = append(words, h)
		}
	}
	return words
}

func (t *Tree[T]) match(folded []rune) []Hit[T] {
	var hits []Hit[T]
	for i := range folded {
		current := t.root
		for j := i; j < len(folded); j++ {
			next, ok := current.children[folded[j]]
			if !ok {
				break
			}
			current = next
			for _, term := range current.terms {
				hits = append(hits, Hit[T]{Start: i, Len: term.length, Value: term.value})
			}
		}
	}
	return hits
}

// Fold normalises s to NFC and lower-cases it rune by rune, so offsets into
// the result line up with offsets computed on the same input.
func Fold(s string) []rune {
	folded := []rune(norm.NFC.String(s))
	for i, r := range folded {
		folded[i] = unicode.ToLower(r)
	}
	return folded
}

// IsWordBoundary reports whether the occurrence [start, start+length) in a
// folded text stands on its own: the rune before it is not a letter, and the
// rune after it is neither a letter nor a combining mark.
func IsWordBoundary(folded []rune, start, length int) bool {
	if start > 0 && unicode.IsLetter(folded[start-1]) {
		return false
	}
	end := start + length
	if end < len(folded) {
		next := folded[end]
		if unicode.IsLetter(next) || unicode.Is(unicode.M, next) {
			return false
		}
	}
	return true
}
