package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one word of a command message. Start and End are byte offsets
// of the token in Input.Body, quotes included.
type Token struct {
	Value string
	Start int
	End   int
}

// Input is a command message split into words.
type Input struct {
	// Invoker is the first word after the prefix.
	Invoker string
	// Args are the words after the invoker.
	Args []Token
	// Body is the message text after the prefix.
	Body string
}

// Parse splits text into an invoker and arguments. It reports false if text
// does not start with prefix immediately followed by a word.
func Parse(prefix, text string) (Input, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Input{}, false
	}
	body := text[len(prefix):]
	if r, _ := utf8.DecodeRuneInString(body); body == "" || isSpace(r) {
		return Input{}, false
	}

	tokens := Tokenize(body)
	if len(tokens) == 0 {
		return Input{}, false
	}
	return Input{Invoker: tokens[0].Value, Args: tokens[1:], Body: body}, true
}

// Tokenize splits s on white space. Text between double quotes or back-ticks
// forms a single token; an unterminated quote runs to the end of s.
func Tokenize(s string) []Token {
	var tokens []Token
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if isSpace(r) {
			i += size
			continue
		}

		start := i
		if r == '"' || r == '`' {
			end := strings.IndexRune(s[i+size:], r)
			if end < 0 {
				tokens = append(tokens, Token{Value: s[i+size:], Start: start, End: len(s)})
				break
			}
			i += size + end + size
			tokens = append(tokens, Token{Value: s[start+size : i-size], Start: start, End: i})
			continue
		}

		end := strings.IndexFunc(s[i:], isSpace)
		if end < 0 {
			end = len(s) - i
		}
		tokens = append(tokens, Token{Value: s[i : i+end], Start: start, End: i + end})
		i += end
	}
	return tokens
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}
