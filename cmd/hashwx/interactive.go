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

	"github.com/wippyai/hashwx"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	modeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var modeChoices = []string{"interpreted", "compiled", "both"}

const (
	fieldSeed = iota
	fieldNonce
	fieldCount
)

type interactiveModel struct {
	ctx      context.Context
	manager  *hashwx.Manager
	err      error
	rows     []hashRow
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type hashRow struct {
	nonce  uint64
	hashes []uint64
}

type modelState int

const (
	stateSelectMode modelState = iota
	stateInputArgs
	stateShowResult
)

type hashResultMsg struct {
	err  error
	rows []hashRow
}

func newInteractiveModel(ctx context.Context, m *hashwx.Manager) *interactiveModel {
	return &interactiveModel{
		ctx:     ctx,
		manager: m,
		state:   stateSelectMode,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectMode && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMode && m.selected < len(modeChoices)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectMode:
				m.prepareInputs()
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.hash

			case stateShowResult:
				m.state = stateInputArgs
				m.rows = nil
				m.err = nil
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectMode
				m.inputs = nil
			case stateShowResult:
				m.state = stateInputArgs
				m.rows = nil
				m.err = nil
			}
			return m, nil
		}

	case hashResultMsg:
		m.rows = msg.rows
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	fields := []struct {
		prompt      string
		placeholder string
		value       string
		limit       int
	}{
		{"seed: ", "text, or 0x followed by 64 hex digits", "", 66},
		{"nonce: ", "first nonce", "0", 20},
		{"count: ", "nonces to hash", "8", 6},
	}
	m.inputs = make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = f.prompt
		ti.Placeholder = f.placeholder
		ti.CharLimit = f.limit
		ti.Width = 66
		ti.SetValue(f.value)
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) modes() []hashwx.Mode {
	modes, _ := parseModes(modeChoices[m.selected])
	return modes
}

func (m *interactiveModel) hash() tea.Msg {
	raw := m.inputs[fieldSeed].Value()
	var seed []byte
	var err error
	if hexSeed, ok := strings.CutPrefix(raw, "0x"); ok {
		seed, err = parseSeed("", hexSeed)
	} else {
		seed, err = parseSeed(raw, "")
	}
	if err != nil {
		return hashResultMsg{err: err}
	}

	nonce, err := strconv.ParseUint(m.inputs[fieldNonce].Value(), 10, 64)
	if err != nil {
		return hashResultMsg{err: fmt.Errorf("nonce: %w", err)}
	}
	count, err := strconv.Atoi(m.inputs[fieldCount].Value())
	if err != nil || count < 1 {
		return hashResultMsg{err: fmt.Errorf("count must be a positive integer")}
	}

	modes := m.modes()
	rows := make([]hashRow, count)
	for i := range rows {
		rows[i] = hashRow{nonce: nonce + uint64(i), hashes: make([]uint64, len(modes))}
	}
	for j, mode := range modes {
		out, err := hashRange(m.ctx, m.manager, mode, seed, nonce, count)
		if err != nil {
			return hashResultMsg{err: fmt.Errorf("%s: %w", mode, err)}
		}
		for i, v := range out {
			rows[i].hashes[j] = v
		}
	}
	return hashResultMsg{rows: rows}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hashwx"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%d live contexts", m.manager.Len()))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMode:
		b.WriteString("Select a context mode:\n\n")
		for i, name := range modeChoices {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + name))
			} else {
				b.WriteString("  " + name)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputArgs:
		b.WriteString(fmt.Sprintf("Hashing in %s mode\n\n", modeStyle.Render(modeChoices[m.selected])))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render(fmt.Sprintf("text seeds are zero padded to %d bytes", hashwx.SeedSize)))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter hash • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			modes := m.modes()
			for _, row := range m.rows {
				b.WriteString(fmt.Sprintf("%10d", row.nonce))
				for j, v := range row.hashes {
					b.WriteString("  ")
					b.WriteString(modeStyle.Render(modes[j].String()))
					b.WriteString(" ")
					b.WriteString(resultStyle.Render(fmt.Sprintf("%016x", v)))
				}
				if len(row.hashes) > 1 && row.hashes[0] != row.hashes[1] {
					b.WriteString(" ")
					b.WriteString(errorStyle.Render("mismatch"))
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • esc edit • q quit"))
	}

	return b.String()
}

func runInteractive(ctx context.Context, m *hashwx.Manager) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}
	p := tea.NewProgram(newInteractiveModel(ctx, m), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
