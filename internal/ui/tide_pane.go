package ui

import (
	"fmt"
	"strings"

	"github.com/ngmaloney/dive-relay/internal/models"
)

// renderTidePane renders today's entries of the last tide reply
func (m Model) renderTidePane(width int) string {
	var content strings.Builder

	content.WriteString(titleStyle.Render("Tides"))
	content.WriteString("\n\n")

	if m.tide == nil {
		content.WriteString(mutedStyle.Render("No tide reply yet"))
		return paneStyle.Width(width).Render(content.String())
	}

	day := m.tide
	header := day.Date
	if day.Name != "" {
		header += " · " + day.Name
	}
	if day.Mul != "" {
		header += " (" + day.Mul + ")"
	}
	content.WriteString(labelStyle.Render(header))
	content.WriteString("\n")

	events := day.Events(m.now())
	if len(events) == 0 {
		content.WriteString(mutedStyle.Render("No tide times"))
	}
	for _, event := range events {
		typeStr := "Low "
		if event.High {
			typeStr = "High"
		}
		content.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			valueStyle.Render(event.Time.Format("15:04")),
			labelStyle.Render(typeStr),
			mutedStyle.Render(tideDetail(event))))
	}

	return paneStyle.Width(width).Render(strings.TrimRight(content.String(), "\n"))
}

// tideDetail is the part of a raw entry after its time, e.g. "(81) ▲+54"
func tideDetail(event models.TideEvent) string {
	fields := strings.Fields(event.Raw)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}
