package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/mmgwasm/mmgwasm/binding"
	"github.com/mmgwasm/mmgwasm/mesh"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2D7D56")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type panelState int

const (
	stateLoading panelState = iota
	stateEditOptions
	stateRunning
	stateShowResult
)

type panelModel struct {
	err      error
	filename string
	ses      *mesh.Session
	m        *mesh.Mesh
	counts   binding.Sizes
	quality  float64
	result   *mesh.Result
	inputs   []textinput.Model
	focusIdx int
	state    panelState
}

type meshLoadedMsg struct {
	err     error
	ses     *mesh.Session
	m       *mesh.Mesh
	counts  binding.Sizes
	quality float64
}

type remeshDoneMsg struct {
	err    error
	result *mesh.Result
}

var optionFields = []string{"hmax", "hmin", "hausd", "hgrad"}

func newPanelModel(filename string) *panelModel {
	m := &panelModel{filename: filename, state: stateLoading}
	m.inputs = make([]textinput.Model, len(optionFields))
	for i, name := range optionFields {
		ti := textinput.New()
		ti.Prompt = name + ": "
		ti.Placeholder = "engine default"
		ti.Width = 24
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	return m
}

func (m *panelModel) Init() tea.Cmd {
	return m.loadMesh
}

func (m *panelModel) loadMesh() tea.Msg {
	ctx := context.Background()

	ses, err := openSession(ctx)
	if err != nil {
		return meshLoadedMsg{err: err}
	}

	buf, err := os.ReadFile(m.filename)
	if err != nil {
		ses.Close(ctx)
		return meshLoadedMsg{err: err}
	}
	msh, err := mesh.LoadMesh(ctx, ses, buf)
	if err != nil {
		ses.Close(ctx)
		return meshLoadedMsg{err: err}
	}

	counts, err := msh.Counts(ctx)
	if err != nil {
		ses.Close(ctx)
		return meshLoadedMsg{err: err}
	}
	quals, err := msh.Quality(ctx)
	if err != nil {
		ses.Close(ctx)
		return meshLoadedMsg{err: err}
	}
	return meshLoadedMsg{ses: ses, m: msh, counts: counts, quality: meanOf(quals)}
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func (m *panelModel) runRemesh() tea.Msg {
	opts := &mesh.Options{}
	targets := []*float64{&opts.Hmax, &opts.Hmin, &opts.Hausd, &opts.Hgrad}
	for i, input := range m.inputs {
		text := strings.TrimSpace(input.Value())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return remeshDoneMsg{err: fmt.Errorf("bad %s value %q", optionFields[i], text)}
		}
		*targets[i] = v
	}

	res, err := m.m.Remesh(context.Background(), opts)
	return remeshDoneMsg{err: err, result: res}
}

func (m *panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.ses != nil {
				m.ses.Close(context.Background())
			}
			return m, tea.Quit

		case "tab", "down":
			if m.state == stateEditOptions {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "shift+tab", "up":
			if m.state == stateEditOptions {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + len(m.inputs) - 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "enter":
			switch m.state {
			case stateEditOptions:
				m.state = stateRunning
				return m, m.runRemesh
			case stateShowResult:
				if m.result != nil && m.result.Mesh != nil {
					// Continue from the adapted mesh.
					m.m.Dispose(context.Background())
					m.m = m.result.Mesh
					m.counts = m.result.Counts
					m.quality = m.result.QualityAfter
				}
				m.result = nil
				m.err = nil
				m.state = stateEditOptions
			}
		}

	case meshLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.ses = msg.ses
		m.m = msg.m
		m.counts = msg.counts
		m.quality = msg.quality
		m.state = stateEditOptions

	case remeshDoneMsg:
		m.err = msg.err
		m.result = msg.result
		m.state = stateShowResult
	}

	if m.state == stateEditOptions {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *panelModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Remesh Panel"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateLoading:
		b.WriteString("Loading mesh...")

	case stateEditOptions:
		b.WriteString(m.statsLine())
		b.WriteString("\n\n")
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter remesh • q quit"))

	case stateRunning:
		b.WriteString("Remeshing...")

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			r := m.result
			b.WriteString(resultStyle.Render(fmt.Sprintf(
				"vertices %d -> %d, cells %d, quality %.3f -> %.3f (%s)",
				m.counts.Vertices, r.Counts.Vertices, r.Counts.Cells,
				r.QualityBefore, r.QualityAfter, r.Elapsed.Round(0))))
			for _, w := range r.Warnings {
				b.WriteString("\n")
				b.WriteString(errorStyle.Render("warning: " + w))
			}
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *panelModel) statsLine() string {
	return fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("kind"), valueStyle.Render(m.m.Kind().String()),
		labelStyle.Render("vertices"), valueStyle.Render(strconv.Itoa(m.counts.Vertices)),
		labelStyle.Render("cells"), valueStyle.Render(strconv.Itoa(m.counts.Cells)),
		labelStyle.Render("quality"), valueStyle.Render(fmt.Sprintf("%.3f", m.quality)))
}

func runInteractive(filename string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	p := tea.NewProgram(newPanelModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
