package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jaxxstorm/dhtingest/internal/model"
)

func RenderPretty(summary model.RunSummary) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render("dhtingest")
	rowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	totalStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))

	lines := []string{title}
	if summary.RunID != "" {
		lines = append(lines, rowStyle.Render("run "+summary.RunID))
	}
	lines = append(lines, "")

	for _, exp := range summary.Experiments {
		lines = append(lines, rowStyle.Render(fmt.Sprintf("exp %02d %s %s", exp.ID, exp.Dir, counts(exp))))
		if len(exp.FailedNodes) > 0 {
			lines = append(lines, warnStyle.Render("       failed: "+strings.Join(exp.FailedNodes, ", ")))
		}
		if skipped := skips(exp.Skipped); skipped != "" {
			lines = append(lines, warnStyle.Render("       skipped: "+skipped))
		}
	}

	total := summary.Totals()
	lines = append(lines, "", totalStyle.Render(fmt.Sprintf("total %d experiments %s", len(summary.Experiments), counts(total))))
	if skipped := skips(total.Skipped); skipped != "" {
		lines = append(lines, warnStyle.Render("skipped: "+skipped))
	}
	return strings.Join(lines, "\n")
}

func counts(exp model.ExperimentSummary) string {
	return fmt.Sprintf("nodes=%d failed=%d cids=%d lookups=%d snapshots=%d publishes=%d",
		exp.Nodes, len(exp.FailedNodes), exp.CIDs, exp.Lookups, exp.Snapshots, exp.Publishes)
}

func skips(skipped map[model.SkipReason]int) string {
	if len(skipped) == 0 {
		return ""
	}
	parts := make([]string, 0, len(skipped))
	for reason, n := range skipped {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
