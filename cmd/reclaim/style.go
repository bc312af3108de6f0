package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"

	"github.com/lyallcooper/reclaim/internal/types"
)

var (
	clrGreen  = lipgloss.AdaptiveColor{Light: "#16a34a", Dark: "#4ade80"}
	clrYellow = lipgloss.AdaptiveColor{Light: "#ca8a04", Dark: "#facc15"}
	clrRed    = lipgloss.AdaptiveColor{Light: "#dc2626", Dark: "#f87171"}
	clrCyan   = lipgloss.AdaptiveColor{Light: "#0891b2", Dark: "#22d3ee"}
	clrMuted  = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}

	mutedStyle = lipgloss.NewStyle().Foreground(clrMuted)
	sizeStyle  = lipgloss.NewStyle().Foreground(clrCyan).Width(10).Align(lipgloss.Right)
	titleStyle = lipgloss.NewStyle().Bold(true)
)

func humanSize(n int64) string {
	return units.BytesSize(float64(n))
}

func riskStyle(r types.Risk) lipgloss.Style {
	switch r {
	case types.RiskLow:
		return lipgloss.NewStyle().Foreground(clrGreen)
	case types.RiskMedium:
		return lipgloss.NewStyle().Foreground(clrYellow)
	default:
		return lipgloss.NewStyle().Foreground(clrRed)
	}
}

// renderItem formats one recommendation as a single line.
func renderItem(item types.DeletableItem) string {
	line := sizeStyle.Render(humanSize(item.Size)) + "  " + item.Path
	if item.Purpose != "" {
		line += mutedStyle.Render("  " + item.Purpose)
	}
	return line + "  " + riskStyle(item.Risk).Render(string(item.Risk))
}

func statusStyle(s types.Status) lipgloss.Style {
	switch s {
	case types.StatusDone:
		return lipgloss.NewStyle().Bold(true).Foreground(clrGreen)
	case types.StatusStopped:
		return lipgloss.NewStyle().Bold(true).Foreground(clrYellow)
	default:
		return lipgloss.NewStyle().Bold(true).Foreground(clrRed)
	}
}

// renderSummary draws the final state of a scan in a bordered card.
func renderSummary(s types.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Scan "+s.TargetPath) + "  " + statusStyle(s.Status).Render(string(s.Status)) + "\n\n")

	row := func(label, value string) {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%-12s", label)) + value + "\n")
	}
	row("Found", fmt.Sprintf("%s of %s in %d items", humanSize(s.TotalCleanable), targetLabel(s.TargetSize), s.DeletableCount))
	row("Processed", fmt.Sprintf("%d of %d entries", s.ProcessedEntries, s.TotalEntries))
	row("Tokens", fmt.Sprintf("%d (prompt %d, completion %d)", s.TokenUsage.Total, s.TokenUsage.Prompt, s.TokenUsage.Completion))
	if s.Volume != nil {
		row("Disk free", fmt.Sprintf("%s of %s", humanSize(int64(s.Volume.Free)), humanSize(int64(s.Volume.Total))))
	}
	if s.FinishedAt != nil {
		row("Duration", s.FinishedAt.Sub(s.StartedAt).Round(100*time.Millisecond).String())
	}
	if s.Error != "" {
		row("Error", lipgloss.NewStyle().Foreground(clrRed).Render(s.Error))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(clrMuted).
		Padding(0, 1).
		Render(strings.TrimRight(b.String(), "\n"))
}

func targetLabel(n int64) string {
	if n <= 0 || n == 1<<63-1 {
		return "unbounded"
	}
	return humanSize(n)
}
