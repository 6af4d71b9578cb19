package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dream-ai/paperqa/internal/rag"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	busyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	docStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	badgeStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

func stateBadge(s rag.State) string {
	color := lipgloss.Color("214")
	switch s {
	case rag.StateReady:
		color = lipgloss.Color("42")
	case rag.StateFailed:
		color = lipgloss.Color("196")
	case rag.StateEmpty:
		color = lipgloss.Color("240")
	}
	return badgeStyle.Background(color).Foreground(lipgloss.Color("0")).Render(s.String())
}

// View renders the shell
func (m Model) View() string {
	var lines []string

	header := titleStyle.Render("paperqa") + "  " + stateBadge(m.state)
	if m.docName != "" {
		header += "  " + docStyle.Render(m.docName)
	}
	lines = append(lines, header, "")
	lines = append(lines, inputBoxStyle.Render(m.input.View()))

	if m.errKind != "" {
		lines = append(lines, errorStyle.Render(m.errKind+": "+m.errText))
	}

	body := m.answer
	if m.ready {
		body = m.viewport.View()
	}
	if strings.TrimSpace(body) == "" {
		body = helpStyle.Render("No answer yet.")
	}
	lines = append(lines, answerBoxStyle.Render(body))

	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	lines = append(lines, status)
	lines = append(lines, helpStyle.Render("Enter: load PDF | Ctrl+G: generate | PgUp/PgDn: scroll | Esc: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
