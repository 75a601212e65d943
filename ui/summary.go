package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ZacxDev/mirrortex/target"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
)

// RenderSummary formats the end of run report printed after the status view
// closes.
func RenderSummary(summary target.Summary) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("Build complete. Found %d source files.", summary.Discovered)))
	sb.WriteString("\n")

	processed := fmt.Sprintf("Successfully processed: %d/%d", summary.Processed(), summary.Discovered)
	if summary.Failed > 0 {
		sb.WriteString(failStyle.Render(processed))
	} else {
		sb.WriteString(okStyle.Render(processed))
	}
	sb.WriteString("\n")

	for _, source := range summary.FailedSources {
		sb.WriteString(failStyle.Render("  FAILED: " + source))
		sb.WriteString("\n")
	}
	return sb.String()
}
