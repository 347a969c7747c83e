package parser

import (
	"strings"

	"github.com/santiagomed/scaff/tree"
)

// parsePaths reads a flat listing of slash-separated paths under one shared
// root, such as "app/", "app/main.py", "app/src/util.py". It reports false
// when the lines are not in that form.
func parsePaths(lines []line) (*tree.Node, bool) {
	var entries []string
	nested := false
	for _, l := range lines {
		if strings.TrimSpace(l.text) == "" {
			continue
		}
		width, rest := measure(l.text)
		if width != 0 {
			return nil, false
		}
		entry := strings.TrimPrefix(cleanEntry(rest), "./")
		entry = strings.TrimPrefix(entry, "/")
		if entry == "" {
			continue
		}
		if strings.Contains(strings.TrimSuffix(entry, "/"), "/") {
			nested = true
		}
		entries = append(entries, entry)
	}
	if len(entries) < 2 || !nested {
		return nil, false
	}

	rootName := firstSegment(entries[0])
	for _, e := range entries {
		if firstSegment(e) != rootName {
			return nil, false
		}
	}

	root := &tree.Node{Name: rootName, Kind: tree.Directory}
	for _, e := range entries {
		isDir := strings.HasSuffix(e, "/")
		segments := strings.Split(strings.TrimSuffix(e, "/"), "/")
		n := root
		for i, seg := range segments[1:] {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				return nil, false
			}
			// Segments before the last one are directories.
			n.Kind = tree.Directory
			child := n.Child(seg)
			if child == nil {
				child = &tree.Node{Name: seg, Kind: tree.File}
				n.Children = append(n.Children, child)
			}
			if isDir && i == len(segments)-2 {
				child.Kind = tree.Directory
			}
			n = child
		}
	}
	return root, true
}

func firstSegment(path string) string {
	if i := strings.Index(path, "/"); i >= 0 {
		return strings.TrimSpace(path[:i])
	}
	return strings.TrimSpace(path)
}
