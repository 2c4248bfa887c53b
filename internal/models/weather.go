package models

import (
	"strconv"
	"strings"
)

// CurrentWeather is the first entry of the BADA current-weather response.
// BADA returns numbers as strings, so every field is kept as received.
type CurrentWeather struct {
	Sky        string `json:"sky"`
	Temp       string `json:"temp"`
	Humidity   string `json:"humidity"`
	WindSpeed  string `json:"windspd"`
	Rain       string `json:"rain"`
	WindDir    string `json:"winddir"`
	WaveHeight string `json:"pago"`
}

// SeaTemp is the nearest sea-water temperature observation
type SeaTemp struct {
	ObservedWaterTemp string `json:"obs_wt"`
}

// SeaForecast is the first period of the marine forecast
type SeaForecast struct {
	WaveHeight string `json:"waveHt"`
	WaveDir    string `json:"waveDir"`
}

// WeatherSummary is the condensed weather reply sent to the watch
type WeatherSummary struct {
	Sky        string `json:"sky"`
	Temp       string `json:"temp"`
	Humidity   string `json:"humidity"`
	WindSpeed  string `json:"windspd"`
	Rain       string `json:"rain"`
	WindDir    string `json:"winddir"`
	WaveHeight string `json:"waveHt"`
	WaveDir    string `json:"waveDir"`
	WaterTemp  string `json:"obsWt"`
}

// NewWeatherSummary merges the three BADA responses. Nil sea parts leave their fields empty.
func NewWeatherSummary(cur CurrentWeather, sea *SeaForecast, temp *SeaTemp) *WeatherSummary {
	s := &WeatherSummary{
		Sky:       cur.Sky,
		Temp:      cur.Temp,
		Humidity:  cur.Humidity,
		WindSpeed: cur.WindSpeed,
		Rain:      cur.Rain,
		WindDir:   cur.WindDir,
	}
	if sea != nil {
		s.WaveHeight = sea.WaveHeight
		s.WaveDir = sea.WaveDir
	}
	if temp != nil {
		s.WaterTemp = temp.ObservedWaterTemp
	}
	return s
}

// ParseNumber reads a loosely formatted number such as "27", "3.2m/s" or "0.5m".
// Unparseable input yields 0, matching how the upstream data treats blanks.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || ((c == '-' || c == '+') && end == 0) {
			end++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}
