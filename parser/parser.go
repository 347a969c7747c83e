// Package parser turns raw model output into a tree.
//
// The accepted grammar is an indented listing, one entry per line. A line's
// depth comes from its leading whitespace, where tree connectors such as
// "├── ", "│   ", "|-- " and list bullets count as indentation. Entries ending
// in "/" are directories. When the text holds a fenced code block only the
// first block is read. A JSON document in the {"name", "structure"} schema,
// possibly surrounded by prose, and a flat listing of paths under one root
// are accepted too.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/santiagomed/scaff/tree"
)

const tabWidth = 4

// ParseError points at the line of model output that could not be parsed.
type ParseError struct {
	Line     int
	Fragment string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("parse error: %s", e.Reason)
	}
	return fmt.Sprintf("parse error at line %d (%q): %s", e.Line, e.Fragment, e.Reason)
}

var trailingComment = regexp.MustCompile(`\s{2,}(#|//|<-|←)\s.*$`)

type line struct {
	number int
	text   string
}

// Parse reads raw model text into a tree. It is pure: the same input always
// yields the same tree or the same error.
//
// Duplicate names and illegal characters are kept as-is; catching those is the
// validator's job.
func Parse(raw string) (*tree.Node, error) {
	lines := extractBlock(raw)

	if doc, ok := jsonDocument(lines); ok {
		return parseJSON(doc)
	}
	if root, ok := parsePaths(lines); ok {
		return root, nil
	}

	var (
		root  *tree.Node
		stack []*tree.Node
		base  int
		unit  int
	)
	for _, l := range lines {
		if strings.TrimSpace(l.text) == "" {
			continue
		}
		width, rest := measure(l.text)
		entry := cleanEntry(rest)
		if entry == "" {
			// Connector-only lines such as "│" separate groups of entries.
			continue
		}

		kind := tree.File
		name := entry
		if strings.HasSuffix(name, "/") {
			kind = tree.Directory
			name = strings.TrimSpace(strings.TrimSuffix(name, "/"))
		}
		if name == "" {
			return nil, &ParseError{Line: l.number, Fragment: l.text, Reason: "entry has no name"}
		}
		n := &tree.Node{Name: name, Kind: kind}

		if root == nil {
			root = n
			base = width
			stack = []*tree.Node{n}
			continue
		}

		rel := width - base
		switch {
		case rel < 0:
			return nil, &ParseError{Line: l.number, Fragment: l.text, Reason: "entry is dedented past the root"}
		case rel == 0:
			return nil, &ParseError{Line: l.number, Fragment: l.text, Reason: "more than one top-level entry; expected a single root directory"}
		}
		if unit == 0 {
			unit = rel
		}
		if rel%unit != 0 {
			return nil, &ParseError{
				Line:     l.number,
				Fragment: l.text,
				Reason:   fmt.Sprintf("inconsistent indentation: %d columns is not a multiple of %d", rel, unit),
			}
		}
		depth := rel / unit
		if depth > len(stack) {
			return nil, &ParseError{
				Line:     l.number,
				Fragment: l.text,
				Reason:   fmt.Sprintf("indentation jumps from depth %d to %d", len(stack)-1, depth),
			}
		}

		stack = stack[:depth]
		parent := stack[depth-1]
		// An entry that gains children is a directory even without the
		// trailing slash.
		parent.Kind = tree.Directory
		parent.Children = append(parent.Children, n)
		stack = append(stack, n)
	}

	if root == nil {
		return nil, &ParseError{Reason: "no entries found"}
	}
	return root, nil
}

// extractBlock splits raw into numbered lines. If a fenced code block is
// present only its contents are returned.
func extractBlock(raw string) []line {
	all := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var block []line
	inFence, sawFence := false, false
	for i, text := range all {
		if strings.HasPrefix(strings.TrimSpace(text), "```") {
			if inFence {
				return block
			}
			inFence, sawFence = true, true
			continue
		}
		if inFence {
			block = append(block, line{number: i + 1, text: text})
		}
	}
	if sawFence {
		// Unterminated fence: take everything after it.
		return block
	}

	lines := make([]line, len(all))
	for i, text := range all {
		lines[i] = line{number: i + 1, text: text}
	}
	return lines
}

// measure returns the indentation width of s in columns and the remainder
// after indentation, tree connectors and list bullets.
func measure(s string) (int, string) {
	width := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		switch {
		case r == ' ' || r == '\u00a0':
			width++
			s = s[size:]
		case r == '\t':
			width += tabWidth
			s = s[size:]
		case r == '├' || r == '└' || r == '┣' || r == '┗':
			n, rest := connector(s[size:])
			width += 1 + n
			s = rest
		case r == '|' || r == '`' || r == '+':
			n, rest := connector(s[size:])
			if n == 0 && r != '|' {
				return width, s
			}
			width += 1 + n
			s = rest
		case r == '│' || r == '┃':
			width++
			s = s[size:]
		case (r == '-' || r == '*') && len(s) > size && s[size] == ' ':
			// Markdown list bullet.
			width += 2
			s = s[size+1:]
		default:
			return width, s
		}
	}
	return width, s
}

// connector consumes the horizontal part of a tree connector ("──", "--")
// and reports how many columns it took.
func connector(s string) (int, string) {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r != '─' && r != '-' && r != '━' {
			break
		}
		n++
		s = s[size:]
	}
	return n, s
}

func cleanEntry(s string) string {
	s = trailingComment.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.TrimPrefix(s, "**")
	s = strings.TrimSuffix(s, "**")
	return strings.TrimSpace(s)
}
