// Package header interprets the column headers of COD population spreadsheets:
// which columns carry administrative codes and names at each level, which carry
// gender × age breakdowns, and which year a file name refers to.
//
// Every lookup returns a Match with an explicit None / One / Many outcome so
// callers can branch on ambiguity instead of guessing.
package header

import (
	"regexp"
	"strings"
)

// Outcome classifies how many headers a lookup matched.
type Outcome int

const (
	None Outcome = iota
	One
	Many
)

func (o Outcome) String() string {
	switch o {
	case None:
		return "none"
	case One:
		return "one"
	default:
		return "many"
	}
}

// Match holds every header a lookup kept, in column order.
type Match struct {
	Headers []string `json:"headers"`
}

// Outcome reports whether the lookup found nothing, exactly one header, or several.
func (m Match) Outcome() Outcome {
	switch len(m.Headers) {
	case 0:
		return None
	case 1:
		return One
	default:
		return Many
	}
}

// Count returns the number of matching headers.
func (m Match) Count() int { return len(m.Headers) }

// Header returns the matched header when the outcome is One, "" otherwise.
func (m Match) Header() string {
	if len(m.Headers) != 1 {
		return ""
	}
	return m.Headers[0]
}

// rule is a single named regex, tried in declaration order.
type rule struct {
	name string
	re   *regexp.Regexp
}

type ruleSet []rule

// first returns the name of the first rule matching h.
func (rs ruleSet) first(h string) (string, bool) {
	for _, r := range rs {
		if r.re.MatchString(h) {
			return r.name, true
		}
	}
	return "", false
}

// filter keeps the headers matched by any rule, preserving column order.
func (rs ruleSet) filter(headers []string) []string {
	var out []string
	for _, h := range headers {
		if _, ok := rs.first(h); ok {
			out = append(out, h)
		}
	}
	return out
}

// narrower is one step of a disambiguation cascade.
type narrower struct {
	name string
	keep func(h string) bool
}

func (n narrower) apply(headers []string) []string {
	var out []string
	for _, h := range headers {
		if n.keep(h) {
			out = append(out, h)
		}
	}
	return out
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
