package tree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const canonicalIndent = "  "

// Serialize writes the canonical text form of a tree: one entry per line,
// two spaces per level, directories suffixed with "/".
func Serialize(root *Node) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	writeCanonical(&b, root, 0)
	return b.String()
}

func writeCanonical(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat(canonicalIndent, depth))
	b.WriteString(n.Name)
	if n.Kind == Directory {
		b.WriteByte('/')
	}
	b.WriteByte('\n')
	for _, child := range n.Children {
		writeCanonical(b, child, depth+1)
	}
}

// Deserialize is the inverse of Serialize. It only accepts the exact
// canonical form; free-form model output goes through the parser package.
func Deserialize(text string) (*Node, error) {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return nil, &InvalidNodeError{Reason: "empty tree"}
	}

	var root *Node
	var stack []*Node
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		indent := len(line) - len(trimmed)
		if indent%len(canonicalIndent) != 0 {
			return nil, lineError(i, "indentation is not a multiple of two spaces")
		}
		depth := indent / len(canonicalIndent)

		kind := File
		name := trimmed
		if strings.HasSuffix(name, "/") {
			kind = Directory
			name = strings.TrimSuffix(name, "/")
		}
		if err := checkName(name); err != nil {
			return nil, lineError(i, err.Error())
		}
		n := &Node{Name: name, Kind: kind}

		if depth == 0 {
			if root != nil {
				return nil, lineError(i, "more than one root entry")
			}
			root = n
			stack = []*Node{n}
			continue
		}
		if depth > len(stack) {
			return nil, lineError(i, "indentation skips a level")
		}
		stack = stack[:depth]
		parent := stack[depth-1]
		if parent.Kind != Directory {
			return nil, lineError(i, fmt.Sprintf("%q is nested under file %q", name, parent.Name))
		}
		parent.Children = append(parent.Children, n)
		stack = append(stack, n)
	}

	if root == nil {
		return nil, &InvalidNodeError{Reason: "no root entry"}
	}
	if err := root.Check(); err != nil {
		return nil, err
	}
	return root, nil
}

func lineError(i int, reason string) error {
	return &InvalidNodeError{Reason: fmt.Sprintf("line %d: %s", i+1, reason)}
}

// Fingerprint hashes the canonical form of a tree.
func Fingerprint(root *Node) string {
	sum := sha256.Sum256([]byte(Serialize(root)))
	return hex.EncodeToString(sum[:])
}

// Render draws a tree with box-drawing connectors, the way `tree` prints a
// directory listing.
func Render(root *Node) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(displayName(root))
	b.WriteByte('\n')
	renderChildren(&b, root.Children, "")
	return b.String()
}

func renderChildren(b *strings.Builder, children []*Node, indent string) {
	for i, child := range children {
		last := i == len(children)-1
		connector, next := "├── ", "│   "
		if last {
			connector, next = "└── ", "    "
		}
		b.WriteString(indent)
		b.WriteString(connector)
		b.WriteString(displayName(child))
		b.WriteByte('\n')
		renderChildren(b, child.Children, indent+next)
	}
}

func displayName(n *Node) string {
	if n.Kind == Directory {
		return n.Name + "/"
	}
	return n.Name
}
