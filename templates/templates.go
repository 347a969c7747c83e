// Package templates holds the example project structures used as a
// fallback reference set when no cached answer is close enough.
package templates

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/santiagomed/scaff/tree"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaults embed.FS

// Template is a pre-baked structure with the text it is matched on.
type Template struct {
	Name        string
	Description string
	TechStack   []string
	Root        *tree.Node
}

// Prompt is the text similarity matching compares against.
func (t Template) Prompt() string {
	if len(t.TechStack) == 0 {
		return t.Description
	}
	return t.Description + " " + strings.Join(t.TechStack, " ")
}

// Structure returns a fresh ProjectStructure answering prompt with this
// template's tree.
func (t Template) Structure(prompt string, score float64) *tree.ProjectStructure {
	ps := tree.NewProjectStructure(prompt, t.Root.Clone(), tree.Template)
	ps.Score = score
	return ps
}

func (t Template) clone() Template {
	t.TechStack = append([]string(nil), t.TechStack...)
	t.Root = t.Root.Clone()
	return t
}

type templateFile struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	TechStack   []string `yaml:"tech_stack"`
	Tree        string   `yaml:"tree"`
}

// Set is an immutable collection of templates, ordered by name.
type Set struct {
	templates []Template
}

// NewSet builds a set from already constructed templates.
func NewSet(templates ...Template) (*Set, error) {
	s := &Set{}
	seen := make(map[string]bool, len(templates))
	for _, t := range templates {
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate template %q", t.Name)
		}
		seen[t.Name] = true
		if err := t.Root.Check(); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		s.templates = append(s.templates, t.clone())
	}
	sort.Slice(s.templates, func(i, j int) bool { return s.templates[i].Name < s.templates[j].Name })
	return s, nil
}

// Default loads the templates compiled into the binary.
func Default() (*Set, error) {
	return Load(afero.FromIOFS{FS: defaults}, "defaults")
}

// LoadDir loads every template file in a directory on the host filesystem.
func LoadDir(dir string) (*Set, error) {
	return Load(afero.NewBasePathFs(afero.NewOsFs(), dir), "/")
}

// Load reads every .yaml/.yml file directly under dir.
func Load(fsys afero.Fs, dir string) (*Set, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("error reading template directory: %w", err)
	}

	var templates []Template
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ext := path.Ext(info.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		t, err := loadFile(fsys, path.Join(dir, info.Name()))
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return NewSet(templates...)
}

func loadFile(fsys afero.Fs, name string) (Template, error) {
	data, err := afero.ReadFile(fsys, name)
	if err != nil {
		return Template{}, fmt.Errorf("error reading template %s: %w", name, err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return Template{}, fmt.Errorf("error decoding template %s: %w", name, err)
	}
	if tf.Name == "" {
		tf.Name = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}

	root, err := tree.Deserialize(tf.Tree)
	if err != nil {
		return Template{}, fmt.Errorf("error in tree of template %s: %w", name, err)
	}
	if !root.IsDir() {
		return Template{}, fmt.Errorf("template %s: root %q is not a directory", name, root.Name)
	}

	return Template{
		Name:        tf.Name,
		Description: tf.Description,
		TechStack:   tf.TechStack,
		Root:        root,
	}, nil
}

// All returns copies of every template.
func (s *Set) All() []Template {
	if s == nil {
		return nil
	}
	out := make([]Template, len(s.templates))
	for i, t := range s.templates {
		out[i] = t.clone()
	}
	return out
}

// Get returns a copy of the named template.
func (s *Set) Get(name string) (Template, bool) {
	if s == nil {
		return Template{}, false
	}
	for _, t := range s.templates {
		if t.Name == name {
			return t.clone(), true
		}
	}
	return Template{}, false
}

// Len returns the number of templates.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.templates)
}
