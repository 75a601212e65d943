// Package ui renders build progress as an interactive terminal status table.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ZacxDev/mirrortex/target"
)

type startedMsg struct {
	source    string
	targetDir string
	at        time.Time
}

type finishedMsg struct {
	outcome target.Outcome
}

type doneMsg struct {
	summary target.Summary
	err     error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type fileRow struct {
	source      string
	status      target.Status
	start       time.Time
	duration    time.Duration
	diagnostics []string
	tailOnly    bool
}

func (r *fileRow) elapsed() time.Duration {
	if r.status == target.StatusCompiling && !r.start.IsZero() {
		return time.Since(r.start)
	}
	return r.duration
}

type model struct {
	root        string
	rows        []*fileRow
	index       map[string]int
	selectedIdx int
	viewport    viewport.Model
	logView     viewport.Model
	showingLogs bool
	done        bool
	aborted     bool
	summary     target.Summary
	err         error
}

func newModel(root string) *model {
	return &model{
		root:     root,
		index:    make(map[string]int),
		viewport: viewport.New(160, 40),
		logView:  viewport.New(160, 20),
	}
}

func (m *model) Init() tea.Cmd {
	return tickCmd()
}

func (m *model) row(source string) *fileRow {
	if i, ok := m.index[source]; ok {
		return m.rows[i]
	}
	r := &fileRow{source: source, status: target.StatusDiscovered}
	m.index[source] = len(m.rows)
	m.rows = append(m.rows, r)
	return r
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.aborted = !m.done
			return m, tea.Quit
		case "up", "k":
			if m.showingLogs {
				m.logView, cmd = m.logView.Update(msg)
				cmds = append(cmds, cmd)
			} else if len(m.rows) > 0 {
				m.selectedIdx = (m.selectedIdx - 1 + len(m.rows)) % len(m.rows)
			}
		case "down", "j":
			if m.showingLogs {
				m.logView, cmd = m.logView.Update(msg)
				cmds = append(cmds, cmd)
			} else if len(m.rows) > 0 {
				m.selectedIdx = (m.selectedIdx + 1) % len(m.rows)
			}
		case "enter", " ":
			m.showingLogs = !m.showingLogs
		case "esc":
			m.showingLogs = false
		}
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 1
		m.logView.Width = msg.Width
		m.logView.Height = msg.Height / 2
	case startedMsg:
		r := m.row(msg.source)
		r.status = target.StatusCompiling
		r.start = msg.at
	case finishedMsg:
		r := m.row(msg.outcome.Source)
		r.status = msg.outcome.Status
		r.duration = msg.outcome.Duration
		r.diagnostics = msg.outcome.Diagnostics
		r.tailOnly = msg.outcome.TailOnly
	case doneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		m.viewport.SetContent(m.statusView())
		return m, tea.Quit
	case tickMsg:
		if !m.done {
			cmds = append(cmds, tickCmd())
		}
	}

	m.viewport.SetContent(m.statusView())
	if m.showingLogs {
		m.updateLogView()
	}
	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	var sb strings.Builder
	sb.WriteString(m.viewport.View())
	if m.done || m.aborted {
		sb.WriteString("\n")
		return sb.String()
	}
	if m.showingLogs {
		sb.WriteString("\n\nOutput:\n")
		sb.WriteString(m.logView.View())
	}
	sb.WriteString("\n\033[1mPress q to quit, enter/space to toggle output, up/down or j/k to navigate\033[0m")
	return sb.String()
}

func statusStyle(status target.Status) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	switch status {
	case target.StatusSucceeded:
		style = style.Foreground(lipgloss.Color("82"))
	case target.StatusFailed:
		style = style.Foreground(lipgloss.Color("160"))
	case target.StatusSkipped:
		style = style.Foreground(lipgloss.Color("243"))
	}
	return style
}

func (m *model) displayName(source string) string {
	if rel, err := filepath.Rel(m.root, source); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return source
}

func (m *model) statusView() string {
	var sb strings.Builder
	sb.WriteString("mirrortex build\n\n")

	if len(m.rows) == 0 {
		sb.WriteString("  Looking for sources...\n")
	}

	for i, r := range m.rows {
		prefix := "  "
		if i == m.selectedIdx {
			prefix = "> "
		}
		sb.WriteString(fmt.Sprintf(
			"%s%-40s | %-10s | %s\n",
			prefix,
			m.displayName(r.source),
			statusStyle(r.status).Render(string(r.status)),
			r.elapsed().Round(time.Millisecond),
		))
	}
	return sb.String()
}

func (m *model) updateLogView() {
	m.logView.SetContent("")
	if m.selectedIdx >= len(m.rows) {
		return
	}
	r := m.rows[m.selectedIdx]
	switch {
	case len(r.diagnostics) > 0:
		header := "Captured Errors:"
		if r.tailOnly {
			header = "Tail of output:"
		}
		m.logView.SetContent(header + "\n" + strings.Join(r.diagnostics, "\n"))
		m.logView.GotoBottom()
	case r.status == target.StatusCompiling:
		m.logView.SetContent("This file is still compiling")
	default:
		m.logView.SetContent("No output captured")
	}
}
