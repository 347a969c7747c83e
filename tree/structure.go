package tree

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source tags where a ProjectStructure came from.
type Source int

const (
	Unset Source = iota
	Generated
	CachedExact
	CachedSimilar
	Template
)

var sourceNames = map[Source]string{
	Unset:         "",
	Generated:     "generated",
	CachedExact:   "cached_exact",
	CachedSimilar: "cached_similar",
	Template:      "template",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(%d)", int(s))
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(text []byte) error {
	for src, name := range sourceNames {
		if name == string(text) {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("unknown source %q", string(text))
}

// ProjectStructure is a proposed tree plus the request it answers.
type ProjectStructure struct {
	ID        string    `json:"id"`
	Root      *Node     `json:"root"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	Source    Source    `json:"source,omitempty"`
	// Score is the similarity score of a reused result.
	Score float64 `json:"score,omitempty"`
}

// NewProjectStructure wraps root with a fresh ID and creation time.
func NewProjectStructure(prompt string, root *Node, source Source) *ProjectStructure {
	return &ProjectStructure{
		ID:        uuid.NewString(),
		Root:      root,
		Prompt:    prompt,
		CreatedAt: time.Now(),
		Source:    source,
	}
}

// Clone returns a deep copy.
func (p *ProjectStructure) Clone() *ProjectStructure {
	if p == nil {
		return nil
	}
	c := *p
	c.Root = p.Root.Clone()
	return &c
}

// Reuse returns a copy of p answering prompt, tagged with source and score.
// The copy gets its own ID so callers can tell deliveries apart.
func (p *ProjectStructure) Reuse(prompt string, source Source, score float64) *ProjectStructure {
	c := NewProjectStructure(prompt, p.Root.Clone(), source)
	c.Score = score
	return c
}
