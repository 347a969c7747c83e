package tree

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsonNode struct {
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Children []*Node `json:"children,omitempty"`
}

// MarshalJSON encodes a node as {"type": "file"|"folder", "name": ..., "children": [...]}.
// Folders always carry a children array, even when empty.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.Kind != Directory {
		return json.Marshal(jsonNode{Type: "file", Name: n.Name})
	}
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(struct {
		Type     string  `json:"type"`
		Name     string  `json:"name"`
		Children []*Node `json:"children"`
	}{Type: "folder", Name: n.Name, Children: children})
}

// UnmarshalJSON accepts "file" and "folder" (or "dir"/"directory") types.
// Structural invariants are left to Check and the validator.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in jsonNode
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	kind, err := parseKind(in.Type)
	if err != nil {
		return err
	}
	n.Name = in.Name
	n.Kind = kind
	// Children of a file are kept so the defect stays visible to validation.
	n.Children = in.Children
	return nil
}

func parseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return File, nil
	case "folder", "dir", "directory":
		return Directory, nil
	default:
		return File, fmt.Errorf("unknown node type %q", s)
	}
}
