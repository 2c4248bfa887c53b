package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngmaloney/dive-relay/internal/coastal"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "relay.db"))
	t.Setenv("ACCIDENT_CSV", filepath.Join("..", "..", "internal", "coastal", "testdata", "accidents.csv"))
	t.Setenv("SLOPE_CSV", filepath.Join("..", "..", "internal", "coastal", "testdata", "slopes.csv"))
	t.Setenv("REDIS_ADDR", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAccidentsCommand(t *testing.T) {
	out, err := execute(t, "accidents", "--region", "해운대", "--type", "갯바위")
	require.NoError(t, err)

	var report coastal.AccidentReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Items, 1)
	assert.Equal(t, "부산 해운대구 청사포", report.Items[0].PlaceName)
	assert.Equal(t, 9, report.Summary.Total)

	out, err = execute(t, "accidents", "--region", "해운대", "--type", "", "--top", "1")
	require.NoError(t, err)

	var top []coastal.TypeTotal
	require.NoError(t, json.Unmarshal([]byte(out), &top))
	assert.Equal(t, []coastal.TypeTotal{{PlaceType: "해수욕장", Accidents: 14}}, top)
}

func TestSlopesCommand(t *testing.T) {
	out, err := execute(t, "slopes", "--min-gradient", "50")
	require.NoError(t, err)

	var slopes []coastal.Slope
	require.NoError(t, json.Unmarshal([]byte(out), &slopes))
	require.Len(t, slopes, 1)
	assert.Equal(t, "울릉군", slopes[0].District)
	assert.Equal(t, "도동, 행남", slopes[0].Station)
}

func TestTestAlertUnknownKind(t *testing.T) {
	_, err := execute(t, "test-alert", "tsunami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown alert kind "tsunami"`)
}

func TestCheckUnknownJob(t *testing.T) {
	_, err := execute(t, "check", "tsunami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
}

func TestWatchEndpoint(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "ws://localhost:8080/watch"},
		{"0.0.0.0:9000", "ws://0.0.0.0:9000/watch"},
		{"relay.local:80", "ws://relay.local:80/watch"},
	}
	for _, tt := range tests {
		if got := watchEndpoint(tt.addr); got != tt.want {
			t.Errorf("watchEndpoint(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestPrintJSONKeepsHangul(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]string{"region": "삼척시 <갯바위>"}))
	assert.Contains(t, buf.String(), `"삼척시 <갯바위>"`)
}
