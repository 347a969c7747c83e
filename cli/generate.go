package cli

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/list"

	"github.com/santiagomed/scaff/core"
	"github.com/santiagomed/scaff/logger"
	"github.com/santiagomed/scaff/tree"
)

type phase int

const (
	Input phase = iota
	Processing
	Finished
)

type resultMsg Result

var stateLabels = map[core.State]string{
	core.Received:        "Prompt received.",
	core.CacheCheck:      "Checking the cache.",
	core.CacheHit:        "Found an identical request.",
	core.SimilarityCheck: "Looking for a similar structure.",
	core.Reuse:           "Reusing a similar structure.",
	core.Generate:        "Asking the model.",
	core.Parse:           "Parsing the response.",
	core.Validate:        "Validating the structure.",
	core.Retry:           "Retrying.",
	core.Done:            "Done.",
	core.Failed:          "Failed.",
}

type generateCmdModel struct {
	textInput textinput.Model
	spinner   spinner.Model
	phase     phase
	prompt    string
	states    []core.State
	failedAt  *stateError
	engine    *Engine
	publisher *CliStatePublisher
	logger    logger.Logger

	result *tree.ProjectStructure
	err    error
}

func newGenerateModel(engine *Engine, publisher *CliStatePublisher, log logger.Logger, prompt string) generateCmdModel {
	ti := textinput.New()
	ti.Placeholder = "Describe your project..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 80

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("202"))

	m := generateCmdModel{
		textInput: ti,
		spinner:   s,
		phase:     Input,
		prompt:    prompt,
		engine:    engine,
		publisher: publisher,
		logger:    log,
	}
	if prompt != "" {
		m.phase = Processing
	}
	return m
}

func (m generateCmdModel) Init() tea.Cmd {
	if m.phase == Processing {
		return m.startGeneration()
	}
	return textinput.Blink
}

func (m generateCmdModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.logger.Debug("User exited the application")
			m.err = errInterrupted
			return m, tea.Quit
		}
		if m.phase == Input && msg.Type == tea.KeyEnter {
			return m.handleKeyEnter()
		}
	case core.State:
		return m.handleState(msg)
	case stateError:
		m.failedAt = &msg
		return m, m.listenForNextState
	case resultMsg:
		m.phase = Finished
		m.result, m.err = msg.Structure, msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		if m.phase == Processing {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.phase == Input {
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return m, cmd
}

func (m generateCmdModel) View() string {
	switch m.phase {
	case Input:
		return fmt.Sprintf("%s\n%s", m.textInput.View(), faintStyle.Render("(press enter to generate or esc to quit)"))
	case Processing, Finished:
		enumerator := func(l list.Items, i int) string {
			switch {
			case i < len(m.states)-1:
				return checkStyle.Render("✓")
			case m.states[i] == core.Done:
				return checkStyle.Render("✓")
			case m.states[i] == core.Failed:
				return crossStyle.Render("✗")
			}
			return m.spinner.View()
		}

		l := list.New().Enumerator(enumerator)
		for _, s := range m.states {
			l.Item(stateLabels[s])
		}
		if len(m.states) == 0 {
			return fmt.Sprintf("%s Starting", m.spinner.View())
		}
		out := l.String()
		if m.failedAt != nil {
			out += "\n" + errorStyle.Render(fmt.Sprintf("%v: %v", m.failedAt.state, m.failedAt.err))
		}
		return out + "\n"
	}
	return ""
}

func (m generateCmdModel) handleKeyEnter() (tea.Model, tea.Cmd) {
	v := m.textInput.Value()
	if v == "" {
		m.err = errNoPrompt
		return m, tea.Quit
	}
	m.textInput.SetValue("")
	m.prompt = v
	m.phase = Processing
	return m, tea.Sequence(tea.Printf("%s", faintStyle.Width(80).Render("> "+v)), m.startGeneration())
}

func (m generateCmdModel) startGeneration() tea.Cmd {
	resultChan := m.engine.AddRequest(m.prompt)
	waitForResult := func() tea.Msg {
		return resultMsg(<-resultChan)
	}
	return tea.Batch(m.spinner.Tick, m.listenForNextState, waitForResult)
}

func (m generateCmdModel) listenForNextState() tea.Msg {
	select {
	case state := <-m.publisher.stateChan:
		return state
	case se := <-m.publisher.errorChan:
		m.logger.Error(fmt.Sprintf("Error received in state %v: %v", se.state, se.err))
		return se
	}
}

func (m generateCmdModel) handleState(state core.State) (tea.Model, tea.Cmd) {
	m.logger.Debug(fmt.Sprintf("Received state: %v", state))
	m.states = append(m.states, state)
	if state.Terminal() {
		return m, nil
	}
	return m, m.listenForNextState
}
