package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"github.com/ngmaloney/dive-relay/internal/alerts"
)

// alertEntry is the last alert of one kind seen on the channel
type alertEntry struct {
	kind string
	text string
	at   time.Time
}

// alertKinds maps alert paths to kinds, in display order
var alertKinds = []struct {
	path string
	kind string
}{
	{alerts.PathTyphoonAlert, alerts.KindTyphoon},
	{alerts.PathAccidentAlert, alerts.KindAccident},
	{alerts.PathSlopeAlert, alerts.KindSlope},
	{alerts.PathWeatherAlert, alerts.KindWeather},
	{alerts.PathTideAlert, alerts.KindTide},
}

// parseAlert turns an alert message into a display entry. ok is false for other paths.
func parseAlert(path, data string, at time.Time) (alertEntry, bool) {
	kind := ""
	for _, k := range alertKinds {
		if k.path == path {
			kind = k.kind
		}
	}
	if kind == "" {
		return alertEntry{}, false
	}

	r := gjson.Parse(data)
	var text string
	switch kind {
	case alerts.KindTide:
		text = r.Get("tide_alert").String()
	case alerts.KindTyphoon:
		text = fmt.Sprintf("%s (%.1f km)", r.Get("typhoon").String(), r.Get("distance").Float())
	case alerts.KindAccident:
		text = fmt.Sprintf("%s\n%s · %d건", r.Get("message").String(), r.Get("region").String(), r.Get("accidents").Int())
	default:
		text = r.Get("message").String()
	}
	return alertEntry{kind: kind, text: text, at: at}, true
}

// getAlertStyle returns the appropriate style for an alert kind
func getAlertStyle(kind string) lipgloss.Style {
	switch kind {
	case alerts.KindTyphoon, alerts.KindAccident:
		return alertDangerStyle
	case alerts.KindSlope:
		return alertSevereStyle
	case alerts.KindWeather:
		return alertModerateStyle
	case alerts.KindTide:
		return alertMinorStyle
	default:
		return valueStyle
	}
}

// renderAlertPane lists the last alert of every kind, most urgent first
func (m Model) renderAlertPane(width int) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("Alerts"))
	content.WriteString("\n\n")

	shown := 0
	for _, k := range alertKinds {
		entry, ok := m.alerts[k.kind]
		if !ok {
			continue
		}
		shown++
		header := fmt.Sprintf("%s  %s", strings.ToUpper(entry.kind), mutedStyle.Render(entry.at.Format("15:04:05")))
		content.WriteString(getAlertStyle(entry.kind).Render(header))
		content.WriteString("\n")
		content.WriteString(valueStyle.Render(entry.text))
		content.WriteString("\n\n")
	}
	if shown == 0 {
		content.WriteString(mutedStyle.Render("No alerts sent yet"))
	}
	return paneStyle.Width(width).Render(strings.TrimRight(content.String(), "\n"))
}
