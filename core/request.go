package core

import (
	"fmt"
	"strings"

	"github.com/santiagomed/scaff/tree"
)

// Preferences are extra layout requirements applied to every generated
// structure.
type Preferences struct {
	IncludeDocs   bool     `mapstructure:"include_docs"`
	IncludeTests  bool     `mapstructure:"include_tests"`
	IncludeDocker bool     `mapstructure:"include_docker"`
	IncludeCI     bool     `mapstructure:"include_ci"`
	CustomFolders []string `mapstructure:"custom_folders"`
}

// DefaultPreferences asks for docs and tests folders only.
func DefaultPreferences() Preferences {
	return Preferences{IncludeDocs: true, IncludeTests: true}
}

var dockerFiles = []string{"Dockerfile", "docker-compose.yml", ".dockerignore"}

// Requirements renders the preferences as prompt lines.
func (p Preferences) Requirements() []string {
	var lines []string
	if p.IncludeDocs {
		lines = append(lines, "Include a docs folder")
	}
	if p.IncludeTests {
		lines = append(lines, "Include a tests folder or the test files the tech stack expects")
	}
	if p.IncludeDocker {
		lines = append(lines, "Include Docker support ("+strings.Join(dockerFiles, ", ")+")")
	}
	if p.IncludeCI {
		lines = append(lines, "Include a GitHub Actions workflow at .github/workflows/ci.yml")
	}
	if len(p.CustomFolders) > 0 {
		lines = append(lines, "Include these top-level folders: "+strings.Join(p.CustomFolders, ", "))
	}
	return lines
}

// Apply adds the entries the preferences demand to the root of a generated
// tree. Entries whose name is already taken at the root are left alone.
func (p Preferences) Apply(root *tree.Node) {
	if root == nil || root.Kind != tree.Directory {
		return
	}
	add := func(n *tree.Node) {
		if root.Child(n.Name) == nil {
			root.Children = append(root.Children, n)
		}
	}
	for _, name := range p.CustomFolders {
		name = strings.TrimSpace(name)
		if name != "" {
			add(&tree.Node{Name: name, Kind: tree.Directory})
		}
	}
	if p.IncludeDocker {
		for _, name := range dockerFiles {
			add(&tree.Node{Name: name, Kind: tree.File})
		}
	}
	if p.IncludeCI {
		add(&tree.Node{Name: ".github", Kind: tree.Directory, Children: []*tree.Node{
			{Name: "workflows", Kind: tree.Directory, Children: []*tree.Node{
				{Name: "ci.yml", Kind: tree.File},
			}},
		}})
	}
}

func (p Preferences) String() string {
	return fmt.Sprintf("docs=%t tests=%t docker=%t ci=%t folders=%v",
		p.IncludeDocs, p.IncludeTests, p.IncludeDocker, p.IncludeCI, p.CustomFolders)
}

// ParsePreferences reads free-form preference text such as
// "docker, github actions\nfolder: scripts". Lines starting with "folder:"
// or "custom:" name extra top-level folders.
func ParsePreferences(text string) Preferences {
	var p Preferences
	if strings.TrimSpace(text) == "" {
		return DefaultPreferences()
	}

	lower := strings.ToLower(text)
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '/')
	}) {
		words[w] = true
	}

	p.IncludeDocs = strings.Contains(lower, "docs") || strings.Contains(lower, "documentation")
	p.IncludeTests = strings.Contains(lower, "test")
	p.IncludeDocker = strings.Contains(lower, "docker")
	p.IncludeCI = words["ci"] || words["ci/cd"] || strings.Contains(lower, "github actions")

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"folder:", "custom:"} {
			if strings.HasPrefix(strings.ToLower(line), prefix) {
				if name := strings.TrimSpace(line[len(prefix):]); name != "" {
					p.CustomFolders = append(p.CustomFolders, name)
				}
			}
		}
	}
	return p
}
