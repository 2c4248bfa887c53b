package ui

import (
	"strings"

	"github.com/ngmaloney/dive-relay/internal/models"
)

// renderWeatherPane renders the last weather reply sent to the watch
func (m Model) renderWeatherPane(width int) string {
	var content strings.Builder

	content.WriteString(titleStyle.Render("Weather"))
	content.WriteString("\n\n")

	if m.weather == nil {
		content.WriteString(mutedStyle.Render("No weather reply yet"))
		return paneStyle.Width(width).Render(content.String())
	}

	w := m.weather
	rows := []struct{ label, value string }{
		{"Sky", w.Sky},
		{"Temperature", withUnit(w.Temp, "℃")},
		{"Humidity", withUnit(w.Humidity, "%")},
		{"Wind", formatWind(*w)},
		{"Rain", w.Rain},
		{"Waves", formatWaves(*w)},
		{"Water", withUnit(w.WaterTemp, "℃")},
	}
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		content.WriteString(labelStyle.Width(12).Render(row.label))
		content.WriteString(valueStyle.Render(row.value))
		content.WriteString("\n")
	}

	return paneStyle.Width(width).Render(strings.TrimRight(content.String(), "\n"))
}

// withUnit appends unit unless v is empty or already carries it
func withUnit(v, unit string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasSuffix(v, unit) {
		return v
	}
	return v + unit
}

// formatWind formats wind data for display
func formatWind(w models.WeatherSummary) string {
	speed := withUnit(w.WindSpeed, "m/s")
	if w.WindDir == "" {
		return speed
	}
	if speed == "" {
		return w.WindDir
	}
	return w.WindDir + " " + speed
}

// formatWaves formats sea state for display
func formatWaves(w models.WeatherSummary) string {
	height := withUnit(w.WaveHeight, "m")
	if w.WaveDir == "" || height == "" {
		return height
	}
	return w.WaveDir + " " + height
}
