package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/santiagomed/scaff/config"
	"github.com/santiagomed/scaff/core"
	"github.com/santiagomed/scaff/logger"
	"github.com/santiagomed/scaff/templates"
	"github.com/santiagomed/scaff/tree"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateStructure(ctx context.Context, prompt string) (*tree.ProjectStructure, error) {
	args := m.Called(ctx, prompt)
	ps, _ := args.Get(0).(*tree.ProjectStructure)
	return ps, args.Error(1)
}

func sampleStructure() *tree.ProjectStructure {
	root := tree.Dir("app", tree.FileNode("main.py"), tree.Dir("tests", tree.FileNode("test_main.py")))
	ps := tree.NewProjectStructure("python app", root, tree.Template)
	ps.Score = 0.9
	return ps
}

func TestPublisherDeliversStates(t *testing.T) {
	p := NewCliStatePublisher(logger.NewNullLogger())
	p.PublishState(core.Received)
	p.Error(core.Generate, errors.New("boom"))

	assert.Equal(t, core.Received, <-p.stateChan)
	se := <-p.errorChan
	assert.Equal(t, core.Generate, se.state)
	assert.EqualError(t, se.err, "boom")
}

func TestPublisherNeverBlocks(t *testing.T) {
	p := NewCliStatePublisher(logger.NewNullLogger())
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(p.stateChan)+10; i++ {
			p.PublishState(core.Retry)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishState blocked on a full channel")
	}
	assert.Len(t, p.stateChan, cap(p.stateChan))
}

func TestEngineRunsRequests(t *testing.T) {
	gen := new(MockGenerator)
	ps := sampleStructure()
	gen.On("GenerateStructure", mock.Anything, "python app").Return(ps, nil)
	gen.On("GenerateStructure", mock.Anything, "bad").Return(nil, errors.New("failed"))

	e := NewEngine(gen, nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	ok := <-e.AddRequest("python app")
	require.NoError(t, ok.Err)
	assert.Same(t, ps, ok.Structure)

	bad := <-e.AddRequest("bad")
	assert.EqualError(t, bad.Err, "failed")
	assert.Nil(t, bad.Structure)

	e.Shutdown(time.Second)
	e.Shutdown(time.Second)
	gen.AssertExpectations(t)
}

func TestGenerateModelStates(t *testing.T) {
	pub := NewCliStatePublisher(logger.NewNullLogger())
	m := newGenerateModel(NewEngine(new(MockGenerator), nil, 1), pub, logger.NewNullLogger(), "python app")
	assert.Equal(t, Processing, m.phase)

	next, cmd := m.Update(core.Received)
	m = next.(generateCmdModel)
	assert.NotNil(t, cmd)

	next, _ = m.Update(core.Generate)
	m = next.(generateCmdModel)
	view := m.View()
	assert.Contains(t, view, "Prompt received.")
	assert.Contains(t, view, "Asking the model.")
	assert.Contains(t, view, "✓")

	next, cmd = m.Update(core.Done)
	m = next.(generateCmdModel)
	assert.Nil(t, cmd)
	assert.Equal(t, []core.State{core.Received, core.Generate, core.Done}, m.states)

	ps := sampleStructure()
	next, cmd = m.Update(resultMsg{Structure: ps})
	m = next.(generateCmdModel)
	assert.Equal(t, Finished, m.phase)
	assert.Same(t, ps, m.result)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestGenerateModelFailureView(t *testing.T) {
	pub := NewCliStatePublisher(logger.NewNullLogger())
	m := newGenerateModel(NewEngine(new(MockGenerator), nil, 1), pub, logger.NewNullLogger(), "python app")

	next, _ := m.Update(core.Generate)
	next, _ = next.Update(stateError{state: core.Generate, err: errors.New("rate limited")})
	next, _ = next.Update(core.Failed)
	view := next.View()
	assert.Contains(t, view, "✗")
	assert.Contains(t, view, "Generate: rate limited")
}

func TestGenerateModelInput(t *testing.T) {
	pub := NewCliStatePublisher(logger.NewNullLogger())
	engine := NewEngine(new(MockGenerator), nil, 1)

	m := newGenerateModel(engine, pub, logger.NewNullLogger(), "")
	assert.Equal(t, Input, m.phase)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, errNoPrompt, next.(generateCmdModel).err)
	assert.NotNil(t, cmd)

	m = newGenerateModel(engine, pub, logger.NewNullLogger(), "")
	m.textInput.SetValue("go service")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := next.(generateCmdModel)
	assert.Equal(t, Processing, got.phase)
	assert.Equal(t, "go service", got.prompt)
	assert.NotNil(t, cmd)
	require.Len(t, engine.requests, 1)
	assert.Equal(t, "go service", (<-engine.requests).Prompt)

	next, _ = got.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, errInterrupted, next.(generateCmdModel).err)
}

func TestRenderStructure(t *testing.T) {
	out := renderStructure(sampleStructure())
	assert.Contains(t, out, "app/")
	assert.Contains(t, out, "main.py")
	assert.Contains(t, out, "tests/")
	assert.Contains(t, out, "test_main.py")
	assert.Contains(t, out, "source: template (score 0.90)")
	assert.Contains(t, out, "nodes: 4")
	assert.Contains(t, out, "depth: 3")
}

func TestRenderTemplates(t *testing.T) {
	set, err := templates.Default()
	require.NoError(t, err)
	out := renderTemplates(set)
	for _, tmpl := range set.All() {
		assert.Contains(t, out, tmpl.Name)
	}
}

func TestWriteStructure(t *testing.T) {
	ps := sampleStructure()

	var text bytes.Buffer
	require.NoError(t, writeStructure(&text, ps, formatText))
	assert.Contains(t, text.String(), "test_main.py")

	var js bytes.Buffer
	require.NoError(t, writeStructure(&js, ps, formatJSON))
	var decoded tree.ProjectStructure
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, ps.ID, decoded.ID)
	assert.True(t, tree.Equal(ps.Root, decoded.Root))

	var zipped bytes.Buffer
	require.NoError(t, writeStructure(&zipped, ps, formatZip))
	zr, err := zip.NewReader(bytes.NewReader(zipped.Bytes()), int64(zipped.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "app/main.py")
	assert.Contains(t, names, "app/tests/test_main.py")
}

func TestApplyGenOverrides(t *testing.T) {
	cmd := &cobra.Command{Use: "gen"}
	addGenFlags(cmd)
	require.NoError(t, cmd.Flags().Set("model", "gpt-4o"))
	require.NoError(t, cmd.Flags().Set("retries", "0"))
	require.NoError(t, cmd.Flags().Set("prefs", "docker, ci"))

	cfg := config.DefaultConfig()
	require.NoError(t, applyGenOverrides(cmd, cfg))
	assert.Equal(t, "gpt-4o", cfg.ModelName)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, config.DefaultConfig().SimilarityThreshold, cfg.SimilarityThreshold)
	assert.True(t, cfg.Preferences.IncludeDocker)
	assert.True(t, cfg.Preferences.IncludeCI)
	assert.False(t, cfg.Preferences.IncludeDocs)
}

func TestApplyGenOverridesRejectsBadValues(t *testing.T) {
	cmd := &cobra.Command{Use: "gen"}
	addGenFlags(cmd)
	require.NoError(t, cmd.Flags().Set("threshold", "1.5"))

	assert.Error(t, applyGenOverrides(cmd, config.DefaultConfig()))
}
