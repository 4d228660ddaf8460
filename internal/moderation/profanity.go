// Package moderation screens user-submitted text before it is stored.
package moderation

import (
	"regexp"
	"strings"
)

// DefaultBadWords is the fixed word set rejected in titles and posts
var DefaultBadWords = []string{"ass", "fuck", "shit", "bitch"}

// Profanity matches whole words case-insensitively. A word only counts when it
// is bounded by the start/end of the text or by a non-word character, so
// "class" and "assessment" pass while "ASS!" does not.
type Profanity struct {
	re *regexp.Regexp
}

// NewProfanity builds a matcher for words; no words means DefaultBadWords
func NewProfanity(words ...string) *Profanity {
	if len(words) == 0 {
		words = DefaultBadWords
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(w))
	}
	pattern := `(?i)(?:^|[^\p{L}\p{N}_])(` + strings.Join(quoted, "|") + `)(?:[^\p{L}\p{N}_]|$)`
	return &Profanity{re: regexp.MustCompile(pattern)}
}

// Check returns the first offending word, lowercased
func (p *Profanity) Check(text string) (string, bool) {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
