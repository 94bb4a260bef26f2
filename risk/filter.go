// Package risk screens transcripts for destructive intent before they are
// injected into the target application.
package risk

import (
	"regexp"
	"strings"

	"github.com/mozhi/agent/internal/util"
)

// DefaultKeywords are the verbs treated as destructive by default.
var DefaultKeywords = []string{
	"delete",
	"remove",
	"overwrite",
	"deploy",
	"execute",
	"run",
	"drop",
	"purge",
}

// Decision is the outcome of screening one transcript.
type Decision struct {
	Allowed           bool
	NeedsConfirmation bool
	// Keyword is the first matched keyword, empty when nothing matched.
	Keyword string
}

// Filter matches whole words case-insensitively against a keyword list.
type Filter struct {
	patterns            []keywordPattern
	requireConfirmation bool
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// NewFilter compiles the keyword list. An empty list disables screening.
func NewFilter(keywords []string, requireConfirmation bool) *Filter {
	patterns := make([]keywordPattern, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		patterns = append(patterns, keywordPattern{
			keyword: kw,
			re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`),
		})
	}
	return &Filter{patterns: patterns, requireConfirmation: requireConfirmation}
}

// Evaluate screens text. A whole-word, case-insensitive keyword hit requires
// confirmation when the filter is configured to ask; otherwise it is
// reported but allowed.
func (f *Filter) Evaluate(text string) Decision {
	lower := strings.ToLower(util.Normalize(text))
	for _, p := range f.patterns {
		if p.re.MatchString(lower) {
			return Decision{
				Allowed:           !f.requireConfirmation,
				NeedsConfirmation: f.requireConfirmation,
				Keyword:           p.keyword,
			}
		}
	}
	return Decision{Allowed: true}
}
