// Package validate checks parsed project structures for structural
// well-formedness before they are cached or returned.
package validate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/santiagomed/scaff/tree"
)

// DefaultMaxDepth bounds nesting when no limit is configured.
const DefaultMaxDepth = 12

// Rule names the check a violation comes from.
type Rule string

const (
	RuleRoot         Rule = "root"
	RuleKind         Rule = "kind"
	RuleDuplicate    Rule = "duplicate"
	RuleName         Rule = "name"
	RuleDepth        Rule = "depth"
	RuleRequiredFile Rule = "required_file"
)

// Violation is one defect found in a tree.
type Violation struct {
	Rule    Rule   `json:"rule"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return fmt.Sprintf("[%s] %s", v.Rule, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Rule, v.Path, v.Message)
}

// ValidationError lists every violation found in one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("structure has %d violation(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// Has reports whether any violation comes from rule.
func (e *ValidationError) Has(rule Rule) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// Validator runs the structural checks. The zero value uses DefaultMaxDepth
// and requires no files.
type Validator struct {
	MaxDepth      int
	RequiredFiles []string
}

// New returns a Validator with the given depth limit and required root files.
func New(maxDepth int, requiredFiles ...string) *Validator {
	return &Validator{MaxDepth: maxDepth, RequiredFiles: requiredFiles}
}

// Validate checks, in order: the root is a directory, sibling names are
// unique, names are legal, depth is within the limit and required files are
// present. It does not stop at the first problem.
func (v *Validator) Validate(ps *tree.ProjectStructure) error {
	if ps == nil || ps.Root == nil {
		return &ValidationError{Violations: []Violation{{Rule: RuleRoot, Message: "structure has no root"}}}
	}
	return v.ValidateTree(ps.Root)
}

// ValidateTree runs the same checks on a bare tree.
func (v *Validator) ValidateTree(root *tree.Node) error {
	if root == nil {
		return &ValidationError{Violations: []Violation{{Rule: RuleRoot, Message: "structure has no root"}}}
	}

	var violations []Violation
	add := func(rule Rule, path, format string, args ...any) {
		violations = append(violations, Violation{Rule: rule, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if root.Kind != tree.Directory {
		add(RuleRoot, root.Name, "root must be a directory, got %s", root.Kind)
	}

	tree.Walk(root, func(path string, _ int, n *tree.Node) {
		if n.Kind == tree.File && len(n.Children) > 0 {
			add(RuleKind, path, "file has %d child entries", len(n.Children))
		}
		seen := make(map[string]bool, len(n.Children))
		for i, child := range n.Children {
			if child == nil {
				add(RuleKind, path, "child entry %d is empty", i)
				continue
			}
			if seen[child.Name] {
				add(RuleDuplicate, path+"/"+child.Name, "name appears more than once in %s", path)
				continue
			}
			seen[child.Name] = true
		}
	})

	tree.Walk(root, func(path string, _ int, n *tree.Node) {
		if reason := nameProblem(n.Name); reason != "" {
			add(RuleName, path, "%s", reason)
		}
	})

	maxDepth := v.maxDepth()
	tree.Walk(root, func(path string, depth int, _ *tree.Node) {
		// Only the first node past the limit on each branch is reported.
		if depth == maxDepth+1 {
			add(RuleDepth, path, "depth %d exceeds the maximum of %d", depth, maxDepth)
		}
	})

	for _, name := range v.RequiredFiles {
		child := root.Child(name)
		if child == nil || child.Kind != tree.File {
			add(RuleRequiredFile, root.Name, "missing required file %q", name)
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (v *Validator) maxDepth() int {
	if v.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return v.MaxDepth
}

const reservedChars = `/\:*?"<>|`

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

func nameProblem(name string) string {
	switch {
	case strings.TrimSpace(name) == "":
		return "empty name"
	case name == "." || name == "..":
		return fmt.Sprintf("%q is not a valid entry name", name)
	case strings.TrimSpace(name) != name:
		return "name has leading or trailing whitespace"
	case strings.ContainsAny(name, reservedChars):
		return fmt.Sprintf("name %q contains one of the reserved characters %s", name, reservedChars)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Sprintf("name %q contains a control character", name)
		}
	}
	base := strings.ToUpper(strings.SplitN(name, ".", 2)[0])
	if reservedNames[base] {
		return fmt.Sprintf("name %q is a reserved device name", name)
	}
	return ""
}
