package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sopimagenta/ganworker/cli/reader"
)

// barWidth is the width of a bar at 100% variance share.
const barWidth = 30

func field(label, value string) string {
	return LabelStyle.Render(label+":") + " " + value
}

func title(s string) string {
	return TitleStyle.Render(s)
}

func pcaView(data any) ([]string, bool) {
	s, ok := data.(*reader.ArchiveSummary)
	if !ok {
		return nil, false
	}

	lines := []string{
		title("PCA Archive"),
		field("Path", ValueStyle.Render(s.Path)),
		field("Scheme", StatusStyle(s.Scheme).Render(fmt.Sprintf("%s (v%d)", s.Scheme, s.Version))),
		field("Layer", ValueStyle.Render(s.Layer)),
		field("Components", ValueStyle.Render(fmt.Sprint(s.Components))),
		field("Comp Shape", ValueStyle.Render(fmt.Sprint(s.CompShape))),
		field("Variance", ValueStyle.Render(fmt.Sprintf("%.4f", s.TotalVariance))),
	}
	if s.ZMeanNorm != nil {
		lines = append(lines, field("Mean |z|", ValueStyle.Render(fmt.Sprintf("%.4f", *s.ZMeanNorm))))
	}

	if len(s.Rows) > 0 {
		lines = append(lines, "", title("Variance Share"))
		for _, row := range s.Rows {
			lines = append(lines, componentLine(row))
		}
	}
	return lines, true
}

// componentLine draws one component as a share bar with its stdev and,
// for latent archives, the norm of its direction.
func componentLine(row reader.ComponentRow) string {
	n := min(max(int(row.Share*barWidth+0.5), 0), barWidth)
	bar := strings.Repeat("█", n) + strings.Repeat("·", barWidth-n)
	detail := fmt.Sprintf("%5.1f%%  σ=%.3f", row.Share*100, row.StdDev)
	if row.DirectionNorm != nil {
		detail += fmt.Sprintf("  |d|=%.3f", *row.DirectionNorm)
	}
	return fmt.Sprintf("%s %s %s",
		MutedStyle.Render(fmt.Sprintf("#%-3d", row.Index)),
		BarStyle.Render(bar),
		ValueStyle.Render(detail))
}

func probeView(data any) ([]string, bool) {
	p, ok := data.(*reader.ProbeResponse)
	if !ok {
		return nil, false
	}

	exit := SuccessStyle
	if p.ExitCode != 0 {
		exit = ErrorStyle
	}
	lines := []string{
		title("Worker Probe"),
		field("Command", ValueStyle.Render(p.Command)),
		field("PID", ValueStyle.Render(fmt.Sprint(p.PID))),
		field("Sample Rate", ValueStyle.Render(fmt.Sprintf("%d Hz", p.SampleRate))),
		field("Note Length", ValueStyle.Render(fmt.Sprintf("%d samples (%.2fs)", p.AudioLength, p.NoteSeconds))),
		field("Handshake", ValueStyle.Render(fmt.Sprintf("%dms", p.HandshakeMs))),
	}
	if p.Components != nil {
		lines = append(lines, field("Components", ValueStyle.Render(fmt.Sprint(*p.Components))))
	}
	if p.ZMeanNorm != nil {
		lines = append(lines, field("Mean |z|", ValueStyle.Render(fmt.Sprintf("%.4f", *p.ZMeanNorm))))
	}
	lines = append(lines, field("Exit Code", exit.Render(fmt.Sprint(p.ExitCode))))
	return lines, true
}

func notesStatsView(data any) ([]string, bool) {
	s, ok := data.(*reader.NoteStats)
	if !ok {
		return nil, false
	}

	boxes := lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Notes", s.Total, highlightColor),
		statBox("OK", s.OK, successColor),
		statBox("Untrained Pitch", s.PitchUnsupported, warningColor),
		statBox("Failed", s.Failed, errorColor),
	)

	lines := []string{title("Session " + s.Session)}
	lines = append(lines, strings.Split(boxes, "\n")...)
	lines = append(lines,
		field("Checkpoint", ValueStyle.Render(s.Checkpoint)),
		field("Pitches", ValueStyle.Render(fmt.Sprint(s.Pitches))),
		field("Audio", ValueStyle.Render(fmt.Sprintf("%.2fs, %d bytes", s.AudioSeconds, s.Bytes))),
	)
	return lines, true
}

func statBox(label string, value int, color lipgloss.Color) string {
	v := StatValueStyle.Foreground(color).Render(fmt.Sprint(value))
	return StatBoxStyle.BorderForeground(color).Render(
		lipgloss.JoinVertical(lipgloss.Center, v, StatLabelStyle.Render(label)))
}
