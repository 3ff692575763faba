package notify

import (
	"github.com/nicebartender/claudio-bot/matcher"
	"github.com/nicebartender/claudio-bot/settings"
)

// Keyword is a word one user wants to be notified about in a guild.
type Keyword struct {
	User     uint64 `json:"user,string"`
	Lowered  string `json:"lowered"`
	Original string `json:"original"`
	Triggers int    `json:"triggers"`
}

// Settings holds every keyword registered in a guild.
type Settings struct {
	settings.GuildDocument
	Keywords []Keyword `json:"keywords"`
}

func (*Settings) Kind() string { return "notifications" }

// ForUser returns the keywords owned by user.
func (s *Settings) ForUser(user uint64) []Keyword {
	var out []Keyword
	for _, k := range s.Keywords {
		if k.User == user {
			out = append(out, k)
		}
	}
	return out
}

func (s *Settings) Has(user uint64, lowered string) bool {
	for _, k := range s.Keywords {
		if k.User == user && k.Lowered == lowered {
			return true
		}
	}
	return false
}

// Remove deletes user's keyword and reports whether it existed.
func (s *Settings) Remove(user uint64, lowered string) bool {
	kept := s.Keywords[:0]
	for _, k := range s.Keywords {
		if k.User != user || k.Lowered != lowered {
			kept = append(kept, k)
		}
	}
	removed := len(kept) != len(s.Keywords)
	s.Keywords = kept
	return removed
}

// RaiseCount increments the trigger counter of user's keyword.
func (s *Settings) RaiseCount(user uint64, lowered string) bool {
	for i := range s.Keywords {
		if s.Keywords[i].User == user && s.Keywords[i].Lowered == lowered {
			s.Keywords[i].Triggers++
			return true
		}
	}
	return false
}

func (s *Settings) entries() []matcher.Entry[Keyword] {
	out := make([]matcher.Entry[Keyword], 0, len(s.Keywords))
	for _, k := range s.Keywords {
		out = append(out, matcher.Entry[Keyword]{Pattern: k.Lowered, Value: k})
	}
	return out
}

// Preferences are a user's notification options, shared across guilds.
type Preferences struct {
	settings.UserDocument
	// IgnoreActiveChannel delays notifications and drops those from a
	// channel the user is typing or writing in.
	IgnoreActiveChannel bool `json:"ignoreActiveChannel"`
}

func (*Preferences) Kind() string { return "notification_preferences" }

func lower(word string) string {
	return string(matcher.Fold(word))
}
