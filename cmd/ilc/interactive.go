package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/ilemit/compiler"
	"github.com/wippyai/ilemit/irfile"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	methodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectMethod modelState = iota
	stateFilter
	stateListing
)

type interactiveModel struct {
	err      error
	file     *irfile.File
	opts     options
	listing  viewport.Model
	filter   textinput.Model
	visible  []int
	selected int
	height   int
	width    int
	state    modelState
}

func newInteractiveModel(opts options) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "method name"
	ti.Width = 40
	return &interactiveModel{
		opts:    opts,
		filter:  ti,
		listing: viewport.New(80, 20),
		state:   stateSelectMethod,
	}
}

type loadedMsg struct {
	err  error
	file *irfile.File
}

type compiledMsg struct {
	err  error
	text string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	f, err := irfile.Load(m.opts.file)
	return loadedMsg{file: f, err: err}
}

func (m *interactiveModel) compile() tea.Msg {
	if len(m.visible) == 0 {
		return compiledMsg{err: fmt.Errorf("no method selected")}
	}
	meth := m.file.Methods[m.visible[m.selected]]
	c, err := compiler.Compile(meth, m.opts.config(m.file))
	if err != nil {
		return compiledMsg{err: err}
	}
	text := render(c, colorStyles())
	if m.opts.stats {
		text += renderStats(c.Stats, colorStyles())
	}
	return compiledMsg{text: text}
}

func (m *interactiveModel) applyFilter() {
	m.visible = m.visible[:0]
	q := m.filter.Value()
	for i, meth := range m.file.Methods {
		if q == "" || strings.Contains(meth.Name(), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.listing.Width = msg.Width
		m.listing.Height = max(msg.Height-4, 1)
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.file = msg.file
		m.applyFilter()
		return m, nil

	case compiledMsg:
		m.err = msg.err
		m.listing.SetContent(msg.text)
		m.listing.GotoTop()
		m.state = stateListing
		return m, nil

	case tea.KeyMsg:
		if m.state == stateFilter {
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
				m.state = stateSelectMethod
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectMethod && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMethod && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateSelectMethod {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "o":
			m.opts.optimize = !m.opts.optimize
			if m.state == stateListing {
				return m, m.compile
			}

		case "s":
			m.opts.short = !m.opts.short
			if m.state == stateListing {
				return m, m.compile
			}

		case "enter":
			if m.state == stateSelectMethod && m.file != nil {
				return m, m.compile
			}

		case "esc":
			if m.state == stateListing {
				m.state = stateSelectMethod
				m.err = nil
			}
		}
	}

	if m.state == stateListing {
		var cmd tea.Cmd
		m.listing, cmd = m.listing.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) flags() string {
	on := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	return fmt.Sprintf("optimize %s • short branches %s", on(m.opts.optimize), on(m.opts.short))
}

func (m *interactiveModel) View() string {
	if m.file == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Loading IR file..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("IL Emitter"))
	b.WriteString(" ")
	b.WriteString(m.opts.file)
	b.WriteString(" ")
	b.WriteString(helpStyle.Render(m.flags()))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMethod, stateFilter:
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		for i, idx := range m.visible {
			name := m.file.Methods[idx].Signature.String()
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + name))
			} else {
				b.WriteString("  " + methodStyle.Render(name))
			}
			b.WriteString("\n")
		}
		if len(m.visible) == 0 {
			b.WriteString(helpStyle.Render("no matching methods"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • / filter • enter compile • o optimize • s short • q quit"))

	case stateListing:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		} else {
			b.WriteString(m.listing.View())
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ scroll • o optimize • s short • esc back • q quit"))
	}
	return b.String()
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
