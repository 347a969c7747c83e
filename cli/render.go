package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltree "github.com/charmbracelet/lipgloss/tree"

	"github.com/santiagomed/scaff/templates"
	"github.com/santiagomed/scaff/tree"
)

var (
	dirStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	fileStyle       = lipgloss.NewStyle()
	enumeratorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	faintStyle      = lipgloss.NewStyle().Faint(true)
	nameStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("202"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFBA08"))
	checkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	crossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func styledTree(n *tree.Node) *ltree.Tree {
	t := ltree.Root(dirStyle.Render(n.Name + "/")).EnumeratorStyle(enumeratorStyle)
	for _, c := range n.Children {
		if c.IsDir() {
			t.Child(styledTree(c))
		} else {
			t.Child(fileStyle.Render(c.Name))
		}
	}
	return t
}

// renderStructure prints the tree followed by where it came from.
func renderStructure(ps *tree.ProjectStructure) string {
	var b strings.Builder
	b.WriteString(styledTree(ps.Root).String())
	b.WriteString("\n\n")
	footer := fmt.Sprintf("source: %s", ps.Source)
	if ps.Source == tree.CachedSimilar || ps.Source == tree.Template {
		footer += fmt.Sprintf(" (score %.2f)", ps.Score)
	}
	footer += fmt.Sprintf("  nodes: %d  depth: %d", tree.CountNodes(ps.Root), tree.Depth(ps.Root))
	b.WriteString(faintStyle.Render(footer))
	return b.String()
}

func renderTemplates(set *templates.Set) string {
	var b strings.Builder
	for _, t := range set.All() {
		b.WriteString(nameStyle.Render(t.Name))
		b.WriteString("  ")
		b.WriteString(t.Description)
		b.WriteString("\n")
		if len(t.TechStack) > 0 {
			b.WriteString(faintStyle.Render("  " + strings.Join(t.TechStack, ", ")))
			b.WriteString("\n")
		}
	}
	return b.String()
}
