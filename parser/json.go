package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santiagomed/scaff/tree"
)

// document is the JSON schema the structure prompt used to ask for:
// {"name": "project", "structure": [{"type": "file", "name": "README.md"}, ...]}.
// A bare node object {"type": "folder", "name": ..., "children": [...]} is
// accepted as well.
type document struct {
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Structure []*tree.Node `json:"structure"`
	Children  []*tree.Node `json:"children"`
}

func jsonDocument(lines []line) (string, bool) {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
	text := strings.TrimSpace(b.String())
	if strings.HasPrefix(text, "{") {
		return text, true
	}
	// Models often wrap the object in prose; take the outermost braces when
	// they hold valid JSON.
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	if obj := text[start : end+1]; json.Valid([]byte(obj)) {
		return obj, true
	}
	return "", false
}

func parseJSON(text string) (*tree.Node, error) {
	var doc document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, jsonError(text, err)
	}
	if strings.TrimSpace(doc.Name) == "" {
		return nil, &ParseError{Line: 1, Fragment: fragment(text, 0), Reason: "JSON document has no name"}
	}

	if doc.Type == "" || doc.Structure != nil {
		children := doc.Structure
		if children == nil {
			children = doc.Children
		}
		return checked(text, &tree.Node{Name: doc.Name, Kind: tree.Directory, Children: children})
	}

	var root tree.Node
	if err := json.Unmarshal([]byte(text), &root); err != nil {
		return nil, jsonError(text, err)
	}
	return checked(text, &root)
}

func checked(text string, root *tree.Node) (*tree.Node, error) {
	if err := checkEntries(text, root); err != nil {
		return nil, err
	}
	return root, nil
}

// checkEntries rejects null entries anywhere in a decoded tree.
func checkEntries(text string, n *tree.Node) error {
	for _, child := range n.Children {
		if child == nil {
			return &ParseError{Line: 1, Fragment: fragment(text, 0), Reason: fmt.Sprintf("null entry under %q", n.Name)}
		}
		if err := checkEntries(text, child); err != nil {
			return err
		}
	}
	return nil
}

func jsonError(text string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset := int(syntaxErr.Offset)
		line := strings.Count(text[:min(offset, len(text))], "\n") + 1
		return &ParseError{Line: line, Fragment: fragment(text, offset), Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return &ParseError{Line: 1, Fragment: fragment(text, 0), Reason: fmt.Sprintf("invalid JSON: %v", err)}
}

func fragment(text string, offset int) string {
	const width = 40
	start := max(0, offset-width/2)
	end := min(len(text), start+width)
	if start > len(text) {
		start = len(text)
	}
	return text[start:end]
}
