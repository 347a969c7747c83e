// Package similarity scores prompts against previously answered prompts and
// templates so an earlier structure can be reused.
package similarity

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// DefaultThreshold is the minimum score accepted when none is configured.
const DefaultThreshold = 0.85

// Origin tells where a candidate came from.
type Origin int

const (
	FromTemplate Origin = iota
	FromCache
)

func (o Origin) String() string {
	if o == FromCache {
		return "cache"
	}
	return "template"
}

// Candidate is one prompt that may be reused. Payload carries whatever the
// caller needs to rebuild a result from it.
type Candidate struct {
	Prompt     string
	Origin     Origin
	AccessedAt time.Time
	Payload    any
}

// Match is a scored candidate.
type Match struct {
	Candidate
	Score float64
}

// Tokens splits a prompt into its lowercase token set. A token is a run of
// letters, digits, '+' or '#', so names like "c++" and "c#" survive.
func Tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#')
	}) {
		set[tok] = struct{}{}
	}
	return set
}

// Score returns the Jaccard index of the token sets of a and b. Two prompts
// without any tokens score 1 only when they are the same text.
func Score(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		if sameText(a, b) {
			return 1
		}
		return 0
	}
	return jaccard(ta, tb)
}

func sameText(a, b string) bool {
	return strings.Join(strings.Fields(strings.ToLower(a)), " ") == strings.Join(strings.Fields(strings.ToLower(b)), " ")
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// Matcher picks reusable candidates for a prompt.
type Matcher struct {
	// Threshold is the minimum score for Best to report a match.
	Threshold float64
}

// NewMatcher returns a Matcher with the given threshold.
func NewMatcher(threshold float64) *Matcher {
	return &Matcher{Threshold: threshold}
}

// Best returns the highest scoring candidate if its score reaches the
// threshold. Ties go to cache entries over templates, then to the most
// recently accessed entry.
func (m *Matcher) Best(prompt string, candidates []Candidate) (Match, bool) {
	ranked := rank(prompt, candidates)
	if len(ranked) == 0 || ranked[0].Score < m.Threshold {
		return Match{}, false
	}
	return ranked[0], true
}

// Rank returns up to k candidates ordered as Best would pick them,
// regardless of the threshold. k <= 0 returns all of them.
func (m *Matcher) Rank(prompt string, candidates []Candidate, k int) []Match {
	ranked := rank(prompt, candidates)
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func rank(prompt string, candidates []Candidate) []Match {
	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = Match{Candidate: c, Score: Score(prompt, c.Prompt)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return better(matches[i], matches[j])
	})
	return matches
}

func better(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Origin != b.Origin {
		return a.Origin == FromCache
	}
	return a.AccessedAt.After(b.AccessedAt)
}
