package parser

import (
	"errors"
	"testing"

	"github.com/santiagomed/scaff/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONStructureDocument(t *testing.T) {
	raw := `{
  "name": "django-api",
  "structure": [
    {"type": "file", "name": "README.md"},
    {"type": "file", "name": "manage.py"},
    {"type": "folder", "name": "api", "children": [
      {"type": "file", "name": "views.py"}
    ]},
    {"type": "folder", "name": "tests", "children": []}
  ]
}`
	root, err := Parse(raw)
	require.NoError(t, err)

	expected := tree.Dir("django-api",
		tree.FileNode("README.md"),
		tree.FileNode("manage.py"),
		tree.Dir("api", tree.FileNode("views.py")),
		tree.Dir("tests"),
	)
	assert.True(t, tree.Equal(expected, root), tree.Serialize(root))
}

func TestParseJSONNodeInFence(t *testing.T) {
	raw := "```json\n{\"type\": \"folder\", \"name\": \"app\", \"children\": [{\"type\": \"file\", \"name\": \"main.py\"}]}\n```"
	root, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, tree.Equal(tree.Dir("app", tree.FileNode("main.py")), root))
}

func TestParseJSONErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":       "{\n  \"name\": \"app\",\n  \"structure\": [\n}",
		"missing name": `{"structure": []}`,
		"unknown type": `{"name": "app", "structure": [{"type": "link", "name": "x"}]}`,
		"null entry":   `{"name":"app","structure":[{"type":"file","name":"main.py"},null]}`,
		"nested null":  `{"type":"folder","name":"app","children":[{"type":"folder","name":"src","children":[null]}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			var parseErr *ParseError
			assert.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
		})
	}
}

func TestParseJSONInsideProse(t *testing.T) {
	raw := "Here is the structure:\n" +
		`{"name": "app", "structure": [{"type": "file", "name": "main.py"}]}` +
		"\nLet me know if you want changes."
	root, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, tree.Equal(tree.Dir("app", tree.FileNode("main.py")), root))
}
