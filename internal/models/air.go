package models

// AirQuality is the AirKorea realtime measurement reduced for the watch
type AirQuality struct {
	PM10Value string `json:"pm10Value"`
	PM10Grade string `json:"pm10Grade"`
	PM25Value string `json:"pm25Value"`
	PM25Grade string `json:"pm25Grade"`
	O3Value   string `json:"o3Value"`
	O3Grade   string `json:"o3Grade"`
	NO2Value  string `json:"no2Value"`
	NO2Grade  string `json:"no2Grade"`
}
