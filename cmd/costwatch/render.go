package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/janekbaraniewski/costwatch/internal/engine"
	"github.com/janekbaraniewski/costwatch/internal/quota"
	"github.com/janekbaraniewski/costwatch/internal/usage"
)

// Catppuccin Mocha accents.
var (
	colorLavender = lipgloss.Color("#B4BEFE")
	colorBlue     = lipgloss.Color("#89B4FA")
	colorTeal     = lipgloss.Color("#94E2D5")
	colorSubtext  = lipgloss.Color("#A6ADC8")
	colorDim      = lipgloss.Color("#585B70")
	colorGreen    = lipgloss.Color("#A6E3A1")
	colorYellow   = lipgloss.Color("#F9E2AF")
	colorRed      = lipgloss.Color("#F38BA8")

	titleStyle   = lipgloss.NewStyle().Foreground(colorLavender).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(colorSubtext).Width(12)
	costStyle    = lipgloss.NewStyle().Foreground(colorTeal).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

func formatUSD(n float64) string {
	if n == 0 {
		return "-"
	}
	if n >= 1000 {
		return fmt.Sprintf("$%.0f", n)
	}
	return fmt.Sprintf("$%.2f", n)
}

func formatTokens(n uint64) string {
	f := float64(n)
	switch {
	case n == 0:
		return "-"
	case f >= 1_000_000:
		return fmt.Sprintf("%.1fM", f/1_000_000)
	case f >= 10_000:
		return fmt.Sprintf("%.1fK", f/1_000)
	default:
		return fmt.Sprintf("%.0f", f)
	}
}

func severityStyle(s quota.Severity) lipgloss.Style {
	switch s {
	case quota.SeverityCritical:
		return lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	case quota.SeverityWarning:
		return lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorGreen)
	}
}

func renderStatus(snap engine.Snapshot) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("costwatch") + "\n\n")

	period := func(label string, t engine.PeriodTotals) {
		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			labelStyle.Render(label),
			costStyle.Render(formatUSD(t.Cost)),
			dimStyle.Render(formatTokens(t.Tokens)+" tokens")))
	}
	period("Today", snap.Today)
	period("This week", snap.Week)
	period("This month", snap.Month)
	period("All time", snap.AllTime)

	if snap.BurnRatePerHour > 0 {
		sb.WriteString(fmt.Sprintf("  %s %s\n",
			labelStyle.Render("Burn rate"),
			costStyle.Render(formatUSD(snap.BurnRatePerHour)+"/h")))
	}

	if len(snap.CostByModel) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("  By model") + "\n")
		variants := make([]usage.ModelVariant, 0, len(snap.CostByModel))
		for v := range snap.CostByModel {
			variants = append(variants, v)
		}
		sort.Slice(variants, func(i, j int) bool {
			return snap.CostByModel[variants[i]] > snap.CostByModel[variants[j]]
		})
		for _, v := range variants {
			sb.WriteString(fmt.Sprintf("  %s %s\n",
				labelStyle.Render(string(v)),
				costStyle.Render(formatUSD(snap.CostByModel[v]))))
		}
	}

	if projects := snap.Projects[usage.WindowWeek]; len(projects) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("  Projects (7d)") + "\n")
		shown := projects
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, p := range shown {
			sb.WriteString(fmt.Sprintf("  %s %s\n",
				lipgloss.NewStyle().Foreground(colorSubtext).Width(32).Render(shortenProject(p.Project)),
				costStyle.Render(formatUSD(p.Cost))))
		}
	}

	if snap.CacheHitPercent > 0 {
		savings := formatUSD(math.Abs(snap.CacheSavings))
		verb := "saved"
		if snap.CacheSavings < 0 {
			verb = "overhead"
		}
		sb.WriteString(fmt.Sprintf("\n  %s %s %s\n",
			labelStyle.Render("Cache"),
			costStyle.Render(fmt.Sprintf("%.1f%% hit", snap.CacheHitPercent)),
			dimStyle.Render(savings+" "+verb)))
	}

	for _, a := range snap.Advice {
		sb.WriteString(fmt.Sprintf("\n  %s %s\n",
			lipgloss.NewStyle().Foreground(colorYellow).Render("tip:"),
			fmt.Sprintf("%d %s tasks (%s) could run on %s",
				a.Requests, a.Size, formatUSD(a.Spend), a.Recommended)))
	}

	sb.WriteString("\n" + renderQuota(snap))

	if !snap.LastUpdated.IsZero() {
		sb.WriteString(dimStyle.Render("  updated "+snap.LastUpdated.Format(time.Kitchen)) + "\n")
	}
	return sb.String()
}

func renderQuota(snap engine.Snapshot) string {
	if snap.QuotaStatus != "" {
		return dimStyle.Render("  "+snap.QuotaStatus) + "\n"
	}
	if len(snap.Quota) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(sectionStyle.Render("  Quota") + "\n")
	order := []struct {
		kind  quota.Kind
		label string
	}{
		{quota.KindSession, "Session (5h)"},
		{quota.KindWeekly, "Weekly"},
		{quota.KindWeeklySonnet, "Weekly sonnet"},
		{quota.KindWeeklyOpus, "Weekly opus"},
	}
	for _, row := range order {
		bucket, ok := snap.Quota[row.kind]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			lipgloss.NewStyle().Foreground(colorSubtext).Width(14).Render(row.label),
			renderBar(bucket.UtilizationPercent),
			dimStyle.Render(resetIn(bucket.ResetAt))))
	}

	if p := snap.Pacing; p != nil && p.Severity != quota.SeveritySafe {
		sb.WriteString("  " + severityStyle(p.Severity).Render(p.Message) + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func renderBar(pct float64) string {
	const width = 20
	filled := int(pct / 100 * width)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	color := colorGreen
	switch {
	case pct >= 90:
		color = colorRed
	case pct >= 70:
		color = colorYellow
	}
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	track := dimStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s%s %s", bar, track,
		lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%3.0f%%", pct)))
}

func resetIn(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	d := time.Until(at)
	if d <= 0 {
		return "resets now"
	}
	if d >= 24*time.Hour {
		return fmt.Sprintf("resets in %dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
	return fmt.Sprintf("resets in %dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

func shortenProject(p string) string {
	if len(p) <= 32 {
		return p
	}
	return "…" + p[len(p)-31:]
}
