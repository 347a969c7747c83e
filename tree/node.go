// Package tree defines the directory/file node model used for proposed
// project structures, along with its canonical text and JSON forms.
package tree

import (
	"fmt"
	"strings"
)

// Kind tells a file from a directory.
type Kind int

const (
	File Kind = iota
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is one entry of a proposed tree. Children keep the order in which
// they were declared.
//
// Nodes built with NewNode always satisfy the tree invariants. The struct can
// also be assembled field by field, which is how the parser represents a
// model response that still has to go through validation.
type Node struct {
	Name     string
	Kind     Kind
	Children []*Node
}

// InvalidNodeError reports a node that breaks the tree invariants.
type InvalidNodeError struct {
	Path   string
	Reason string
}

func (e *InvalidNodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid node: %s", e.Reason)
	}
	return fmt.Sprintf("invalid node %q: %s", e.Path, e.Reason)
}

// NewNode builds a node and checks its invariants.
func NewNode(name string, kind Kind, children ...*Node) (*Node, error) {
	if err := checkName(name); err != nil {
		return nil, &InvalidNodeError{Path: name, Reason: err.Error()}
	}
	if kind != File && kind != Directory {
		return nil, &InvalidNodeError{Path: name, Reason: fmt.Sprintf("unknown kind %d", int(kind))}
	}
	if kind == File && len(children) > 0 {
		return nil, &InvalidNodeError{Path: name, Reason: "a file cannot have children"}
	}

	seen := make(map[string]struct{}, len(children))
	for _, child := range children {
		if child == nil {
			return nil, &InvalidNodeError{Path: name, Reason: "nil child"}
		}
		if _, dup := seen[child.Name]; dup {
			return nil, &InvalidNodeError{Path: name + "/" + child.Name, Reason: "duplicate sibling name"}
		}
		seen[child.Name] = struct{}{}
	}

	n := &Node{Name: name, Kind: kind}
	if kind == Directory {
		n.Children = append([]*Node{}, children...)
	}
	return n, nil
}

// MustNode is NewNode for trees known to be well formed, such as literals in
// tests and built-in templates.
func MustNode(name string, kind Kind, children ...*Node) *Node {
	n, err := NewNode(name, kind, children...)
	if err != nil {
		panic(err)
	}
	return n
}

// Dir and FileNode are shorthands for MustNode.
func Dir(name string, children ...*Node) *Node { return MustNode(name, Directory, children...) }
func FileNode(name string) *Node               { return MustNode(name, File) }

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n != nil && n.Kind == Directory }

// Check verifies the invariants for the whole subtree rooted at n.
func (n *Node) Check() error {
	if n == nil {
		return &InvalidNodeError{Reason: "nil node"}
	}
	return check(n, n.Name)
}

func check(n *Node, path string) error {
	if err := checkName(n.Name); err != nil {
		return &InvalidNodeError{Path: path, Reason: err.Error()}
	}
	if n.Kind == File && len(n.Children) > 0 {
		return &InvalidNodeError{Path: path, Reason: "a file cannot have children"}
	}
	seen := make(map[string]struct{}, len(n.Children))
	for _, child := range n.Children {
		if child == nil {
			return &InvalidNodeError{Path: path, Reason: "nil child"}
		}
		childPath := path + "/" + child.Name
		if _, dup := seen[child.Name]; dup {
			return &InvalidNodeError{Path: childPath, Reason: "duplicate sibling name"}
		}
		seen[child.Name] = struct{}{}
		if err := check(child, childPath); err != nil {
			return err
		}
	}
	return nil
}

func checkName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("name %q contains a path separator", name)
	case strings.ContainsAny(name, "\r\n"):
		return fmt.Errorf("name %q contains a line break", name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("name %q has surrounding whitespace", name)
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Name: n.Name, Kind: n.Kind}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Equal reports structural equality: same names, kinds and child order.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || a.Kind != b.Kind || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Child returns the direct child with the given name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child != nil && child.Name == name {
			return child
		}
	}
	return nil
}

// Walk visits every node depth-first. path is slash-joined from the root and
// depth starts at 1 for the root.
func Walk(root *Node, fn func(path string, depth int, n *Node)) {
	if root == nil {
		return
	}
	walk(root, root.Name, 1, fn)
}

func walk(n *Node, path string, depth int, fn func(string, int, *Node)) {
	fn(path, depth, n)
	for _, child := range n.Children {
		if child == nil {
			continue
		}
		walk(child, path+"/"+child.Name, depth+1, fn)
	}
}

// Depth returns the number of levels in the tree; a lone root has depth 1.
func Depth(root *Node) int {
	max := 0
	Walk(root, func(_ string, depth int, _ *Node) {
		if depth > max {
			max = depth
		}
	})
	return max
}

// CountNodes counts all nodes in a tree.
func CountNodes(root *Node) int {
	count := 0
	Walk(root, func(string, int, *Node) { count++ })
	return count
}

// Flatten returns all nodes keyed by slash-joined path.
func Flatten(root *Node) map[string]*Node {
	result := make(map[string]*Node)
	Walk(root, func(path string, _ int, n *Node) {
		result[path] = n
	})
	return result
}
