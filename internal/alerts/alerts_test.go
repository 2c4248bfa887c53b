package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ngmaloney/dive-relay/internal/bada"
	"github.com/ngmaloney/dive-relay/internal/coastal"
	"github.com/ngmaloney/dive-relay/internal/cooldown"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/geocoding"
	"github.com/ngmaloney/dive-relay/internal/models"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

type sentMessage struct {
	Path string
	Data string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (f *fakeSender) Send(_ context.Context, path string, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sentMessage{path, string(data)})
	return 1, nil
}

func (f *fakeSender) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.msgs...)
}

func decode[T any](t *testing.T, data string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(data), &v))
	return v
}

func TestWithTopicParticle(t *testing.T) {
	tests := map[string]string{
		"갯바위":  "갯바위는",
		"해수욕장": "해수욕장은",
		"항포구":  "항포구는",
		"암벽":   "암벽은",
		"":     "는",
		"ABC":  "ABC는",
	}
	for in, want := range tests {
		assert.Equal(t, want, withTopicParticle(in), in)
	}
}

func TestFormatDouble(t *testing.T) {
	assert.Equal(t, "34.0", formatDouble(34))
	assert.Equal(t, "2.5", formatDouble(2.5))
	assert.Equal(t, "-5.0", formatDouble(-5))
}

func TestWeatherWarnings(t *testing.T) {
	tests := []struct {
		name string
		cur  models.CurrentWeather
		want []string
	}{
		{
			name: "all clear",
			cur:  models.CurrentWeather{Sky: "맑음", Temp: "27", WindSpeed: "3.2", WaveHeight: "0.5"},
		},
		{
			name: "heat, waves, wind and rain",
			cur:  models.CurrentWeather{Sky: "흐리고 비", Temp: "34", WindSpeed: "11", WaveHeight: "2.5"},
			want: []string{"폭염 주의 (기온 34.0℃)", "높은 파고 주의 (2.5m)", "강풍 주의 (풍속 11.0m/s)", "강수 주의"},
		},
		{
			name: "cold at the boundary",
			cur:  models.CurrentWeather{Temp: "-5"},
			want: []string{"한파 주의 (기온 -5.0℃)"},
		},
		{
			name: "heat at the boundary",
			cur:  models.CurrentWeather{Temp: "33", WaveHeight: "1.99"},
			want: []string{"폭염 주의 (기온 33.0℃)"},
		},
		{
			name: "unit suffixes keep their leading number",
			cur:  models.CurrentWeather{Temp: "35℃", WindSpeed: "12m/s", WaveHeight: "3.0m"},
			want: []string{"폭염 주의 (기온 35.0℃)", "높은 파고 주의 (3.0m)", "강풍 주의 (풍속 12.0m/s)"},
		},
		{
			name: "unreadable values count as zero",
			cur:  models.CurrentWeather{Temp: "n/a", WindSpeed: "-", WaveHeight: "m"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeatherWarnings(tt.cur))
		})
	}
}

type fakeWeather struct {
	cur *models.CurrentWeather
	err error
}

func (f fakeWeather) FetchBaseWeather(context.Context, float64, float64) (*models.CurrentWeather, error) {
	return f.cur, f.err
}

func (f fakeWeather) FetchWeather(context.Context, float64, float64) (*models.WeatherSummary, error) {
	return nil, f.err
}

func TestWeatherManager(t *testing.T) {
	ctx := context.Background()

	sender := &fakeSender{}
	m := NewWeatherManager(fakeWeather{cur: &models.CurrentWeather{Temp: "35", Sky: "비"}}, sender, zaptest.NewLogger(t))
	res, err := m.Check(ctx, geo.DefaultPoint)
	require.NoError(t, err)
	assert.True(t, res.Sent)

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, PathWeatherAlert, msgs[0].Path)
	assert.Equal(t, WeatherAlert{Title: "기상 경고", Message: "폭염 주의 (기온 35.0℃)\n강수 주의"}, decode[WeatherAlert](t, msgs[0].Data))

	sender = &fakeSender{}
	m = NewWeatherManager(fakeWeather{cur: &models.CurrentWeather{Temp: "20", Sky: "맑음"}}, sender, zaptest.NewLogger(t))
	res, err = m.Check(ctx, geo.DefaultPoint)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Empty(t, sender.sent())

	m = NewWeatherManager(fakeWeather{err: bada.ErrNoData}, sender, zaptest.NewLogger(t))
	res, err = m.Check(ctx, geo.DefaultPoint)
	require.NoError(t, err)
	assert.False(t, res.Sent)

	_, err = m.SendTest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "폭염 주의 (기온 34℃)\n강풍 주의 (풍속 11m/s)", decode[WeatherAlert](t, sender.sent()[0].Data).Message)
}

type fakeTides struct{ days []json.RawMessage }

func (f fakeTides) FetchTide(context.Context, float64, float64) ([]json.RawMessage, error) {
	return f.days, nil
}

func TestTideManager(t *testing.T) {
	today := json.RawMessage(`{"pThisDate":"2025-08-19","pTime1":"06:00 (140) ▲+110","pTime2":"07:06 (81) ▲+54","pTime3":"07:20 (20) ▼-61","pTime4":"07:32 (150) ▲+130"}`)
	tomorrow := json.RawMessage(`{"pThisDate":"2025-08-20","pTime1":"07:10 (140) ▲+110"}`)

	sender := &fakeSender{}
	m := NewTideManager(fakeTides{days: []json.RawMessage{today, tomorrow}}, sender, zaptest.NewLogger(t))
	m.now = func() time.Time { return time.Date(2025, 8, 19, 6, 30, 15, 0, Seoul) }

	res, err := m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	assert.True(t, res.Sent)

	msgs := sender.sent()
	require.Len(t, msgs, 1, "past, low and over-an-hour tides are ignored")
	assert.Equal(t, PathTideAlert, msgs[0].Path)
	assert.JSONEq(t, `{"tide_alert":"만조 임박: 07:06 (81) ▲+54"}`, msgs[0].Data)
}

func TestTideWindowBoundaries(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		tide string
		want bool
	}{
		{"exactly 60 minutes ahead", time.Date(2025, 8, 19, 6, 0, 0, 0, Seoul), "07:00 (140) ▲+110", true},
		{"61 minutes ahead", time.Date(2025, 8, 19, 6, 0, 0, 0, Seoul), "07:01 (140) ▲+110", false},
		{"60m59s truncates to 60", time.Date(2025, 8, 19, 5, 59, 1, 0, Seoul), "07:00 (140) ▲+110", true},
		{"30 seconds past truncates to 0", time.Date(2025, 8, 19, 6, 0, 30, 0, Seoul), "06:00 (140) ▲+110", true},
		{"one minute past", time.Date(2025, 8, 19, 6, 1, 0, 0, Seoul), "06:00 (140) ▲+110", false},
		{"low tide inside the window", time.Date(2025, 8, 19, 6, 0, 0, 0, Seoul), "06:30 (20) ▼-61", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day := json.RawMessage(`{"pThisDate":"2025-08-19","pTime1":"` + tt.tide + `"}`)
			sender := &fakeSender{}
			m := NewTideManager(fakeTides{days: []json.RawMessage{day}}, sender, zaptest.NewLogger(t))
			m.now = func() time.Time { return tt.now }

			res, err := m.Check(context.Background(), geo.DefaultPoint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Sent)
			if tt.want {
				require.Len(t, sender.sent(), 1)
				assert.JSONEq(t, `{"tide_alert":"만조 임박: `+tt.tide+`"}`, sender.sent()[0].Data)
			} else {
				assert.Empty(t, sender.sent())
			}
		})
	}
}

func TestTideManagerNothingDue(t *testing.T) {
	sender := &fakeSender{}
	m := NewTideManager(fakeTides{}, sender, zaptest.NewLogger(t))
	res, err := m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	assert.False(t, res.Sent)

	_, err = m.SendTest(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"tide_alert":"테스트 물때 알림 - 만조 임박"}`, sender.sent()[0].Data)
}

type fakeTyphoons struct {
	positions []models.TyphoonPosition
	days      int
}

func (f *fakeTyphoons) FetchTyphoonInfo(context.Context, time.Time, time.Time) ([]models.TyphoonPosition, error) {
	return f.positions, nil
}

func (f *fakeTyphoons) FetchRecent(_ context.Context, days int) ([]models.TyphoonPosition, error) {
	f.days = days
	return f.positions, nil
}

func TestTyphoonManager(t *testing.T) {
	busan := geo.Point{Lat: 35.1796, Lon: 129.0756}
	client := &fakeTyphoons{positions: []models.TyphoonPosition{
		{Name: "무효", Valid: false},
		{Name: "카눈", Lat: 33.5, Lon: 128.5, Valid: true},
		{Name: "먼태풍", Lat: 25.0, Lon: 125.0, Valid: true},
	}}

	sender := &fakeSender{}
	m := NewTyphoonManager(client, sender, 0, 0, zaptest.NewLogger(t))
	res, err := m.Check(context.Background(), busan)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, 60, client.days)

	alert := decode[TyphoonAlert](t, sender.sent()[0].Data)
	assert.Equal(t, "카눈", alert.Typhoon)
	assert.InDelta(t, geo.HaversineKm(busan.Lat, busan.Lon, 33.5, 128.5), alert.Distance, 1e-9)

	// outside a 100 km radius
	sender = &fakeSender{}
	m = NewTyphoonManager(client, sender, 100, 30, zaptest.NewLogger(t))
	res, err = m.Check(context.Background(), busan)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Empty(t, sender.sent())

	_, err = m.SendTest(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"typhoon":"태풍 테스트 알림","distance":123.4}`, sender.sent()[0].Data)
}

func TestNearestSkipsInvalid(t *testing.T) {
	_, _, ok := Nearest([]models.TyphoonPosition{{Name: "x"}}, geo.DefaultPoint)
	assert.False(t, ok)
}

type fakeResolver struct{ region geocoding.Region }

func (f fakeResolver) Resolve(context.Context, float64, float64) (geocoding.Region, error) {
	if f.region.IsZero() {
		return geocoding.Region{}, geocoding.ErrNotFound
	}
	return f.region, nil
}

var samcheok = geocoding.Region{AdminArea: "강원특별자치도", Locality: "삼척시", SubLocality: "원덕읍"}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSlopeManager(t *testing.T) {
	path := writeCSV(t, "slopes.csv", "SE_NM,SGG_NM,SPOT_NM,STA_NM,GRDNT_VAL,SLANT_GRD_CD\n"+
		"해안,삼척시,원덕읍,갈남해수욕장,45.0,A\n"+
		"해안,삼척시,근덕면,장호항,28.5,B\n"+
		"해안,강릉시,주문진읍,소돌,12,C\n")
	repo := coastal.NewSlopeRepo(path, zaptest.NewLogger(t))
	store := cooldown.NewMemory()
	now := time.Date(2025, 8, 19, 9, 0, 0, 0, Seoul)

	sender := &fakeSender{}
	m := NewSlopeManager(repo, fakeResolver{region: samcheok}, store, sender, DefaultSlopeOptions, zaptest.NewLogger(t))
	m.now = func() time.Time { return now }

	res, err := m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	require.True(t, res.Sent, res.Reason)

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, PathSlopeAlert, msgs[0].Path)
	assert.Equal(t, SlopeAlert{
		Title:   "급경사지 위험 알림",
		Message: "강원특별자치도 삼척시 원덕읍 · 갈남해수욕장 (경사도 45.0°)\n안전에 주의하세요.",
	}, decode[SlopeAlert](t, msgs[0].Data))

	// same spot inside the cooldown
	now = now.Add(time.Hour)
	res, err = m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, "cooldown active", res.Reason)

	// after the cooldown
	now = now.Add(time.Hour)
	res, err = m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Len(t, sender.sent(), 2)
}

func TestSlopeManagerSkips(t *testing.T) {
	path := writeCSV(t, "slopes.csv", "SE_NM,SGG_NM,SPOT_NM,STA_NM,GRDNT_VAL,SLANT_GRD_CD\n해안,강릉시,주문진읍,소돌,12,C\n")
	repo := coastal.NewSlopeRepo(path, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		region geocoding.Region
	}{
		{"no region", geocoding.Region{}},
		{"no rows", samcheok},
		{"below threshold", geocoding.Region{AdminArea: "강원특별자치도", Locality: "강릉시"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			m := NewSlopeManager(repo, fakeResolver{region: tt.region}, cooldown.NewMemory(), sender, DefaultSlopeOptions, zaptest.NewLogger(t))
			res, err := m.Check(context.Background(), geo.DefaultPoint)
			require.NoError(t, err)
			assert.False(t, res.Sent)
			assert.NotEmpty(t, res.Reason)
			assert.Empty(t, sender.sent())
		})
	}
}

func TestSlopeSendTest(t *testing.T) {
	sender := &fakeSender{}
	m := NewSlopeManager(nil, nil, cooldown.NewMemory(), sender, DefaultSlopeOptions, zaptest.NewLogger(t))
	_, err := m.SendTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "삼척시 · 갈남해수욕장 (경사도 45.0°)\n안전에 주의하세요.", decode[SlopeAlert](t, sender.sent()[0].Data).Message)
}

func accidentRepo(t *testing.T) *coastal.AccidentRepo {
	path := writeCSV(t, "accidents.csv", "PLACE_NM,PLACE_SE_NM,ACC_CQT_SUM\n"+
		"강원 삼척시 임원항,항포구,6\n"+
		"강원 삼척시 갈남리,갯바위,8\n"+
		"강원 삼척시 장호리,갯바위,5\n"+
		"부산 해운대구 우동,해수욕장,3\n")
	return coastal.NewAccidentRepo(path, zaptest.NewLogger(t))
}

func TestAccidentManager(t *testing.T) {
	sender := &fakeSender{}
	now := time.Date(2025, 8, 19, 0, 30, 5, 0, time.UTC)
	m := NewAccidentManager(accidentRepo(t), fakeResolver{region: samcheok}, cooldown.NewMemory(), sender, DefaultAccidentOptions, zaptest.NewLogger(t))
	m.now = func() time.Time { return now }

	res, err := m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	require.True(t, res.Sent, res.Reason)

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, PathAccidentAlert, msgs[0].Path)
	assert.Equal(t, AccidentAlert{
		Type:      "accident",
		Region:    "강원특별자치도 삼척시 원덕읍",
		PlaceType: "갯바위",
		Accidents: 13,
		Message:   "⚠️ 갯바위는 위험한 지역입니다",
		Timestamp: "2025-08-19 09:30:05",
	}, decode[AccidentAlert](t, msgs[0].Data))

	res, err = m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	assert.Equal(t, "cooldown active", res.Reason)
}

func TestAccidentManagerOptions(t *testing.T) {
	sender := &fakeSender{}
	m := NewAccidentManager(accidentRepo(t), fakeResolver{}, cooldown.NewMemory(), sender, DefaultAccidentOptions, zaptest.NewLogger(t))

	// geocoder has nothing
	res, err := m.Check(context.Background(), geo.DefaultPoint)
	require.NoError(t, err)
	assert.Equal(t, ErrNoRegion.Error(), res.Reason)

	// region override below threshold
	res, err = m.CheckWith(context.Background(), geo.DefaultPoint, AccidentOptions{Threshold: 10, Region: "해운대"})
	require.NoError(t, err)
	assert.Equal(t, "below threshold 3 < 10", res.Reason)

	// dry run logs instead of sending
	res, err = m.CheckWith(context.Background(), geo.DefaultPoint, AccidentOptions{Threshold: 2, Region: "해운대", DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.False(t, res.Sent)
	assert.Equal(t, "해수욕장", res.Payload.(AccidentAlert).PlaceType)
	assert.Equal(t, "⚠️ 해수욕장은 위험한 지역입니다", res.Payload.(AccidentAlert).Message)
	assert.Empty(t, sender.sent())
}

func TestAccidentSendTest(t *testing.T) {
	sender := &fakeSender{}
	m := NewAccidentManager(nil, nil, cooldown.NewMemory(), sender, DefaultAccidentOptions, zaptest.NewLogger(t))

	res, err := m.SendTest(context.Background())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Empty(t, sender.sent())
	alert := res.Payload.(AccidentAlert)
	assert.Equal(t, "accident_test", alert.Type)
	assert.Equal(t, "테스트 지역", alert.Region)
	assert.Equal(t, 12, alert.Accidents)
	assert.Equal(t, "테스트 사고 알림 - 갯바위는 위험 주의", alert.Message)

	live := false
	res, err = m.SendTestWith(context.Background(), AccidentTestOptions{Region: "부산", PlaceType: "방파제", Accidents: 20, DryRun: &live})
	require.NoError(t, err)
	assert.True(t, res.Sent)
	got := decode[AccidentAlert](t, sender.sent()[0].Data)
	assert.Equal(t, "부산", got.Region)
	assert.Equal(t, "테스트 사고 알림 - 방파제는 위험 주의", got.Message)
}

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, string, []byte) (int, error) { return 0, f.err }

func TestDeliveryFailures(t *testing.T) {
	ctx := context.Background()
	hot := fakeWeather{cur: &models.CurrentWeather{Temp: "35"}}

	// nobody to tell: skipped, so the worker does not retry
	m := NewWeatherManager(hot, failingSender{err: watch.ErrNoWatch}, zaptest.NewLogger(t))
	res, err := m.Check(ctx, geo.DefaultPoint)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, "no connected watch", res.Reason)
	assert.Equal(t, WeatherAlert{Title: "기상 경고", Message: "폭염 주의 (기온 35.0℃)"}, res.Payload)

	// broken writes are errors
	broken := errors.New("watch: sending /weather_alert: node n1: closed")
	m = NewWeatherManager(hot, failingSender{err: broken}, zaptest.NewLogger(t))
	_, err = m.Check(ctx, geo.DefaultPoint)
	require.ErrorIs(t, err, broken)

	tide := NewTideManager(fakeTides{}, failingSender{err: watch.ErrNoWatch}, zaptest.NewLogger(t))
	res, err = tide.SendTest(ctx)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, "no connected watch", res.Reason)
}

func TestRegistry(t *testing.T) {
	sender := &fakeSender{}
	r := NewRegistry(
		NewTyphoonManager(&fakeTyphoons{}, sender, 0, 0, nil),
		NewWeatherManager(fakeWeather{}, sender, nil),
		nil,
	)
	assert.Equal(t, []string{KindWeather, KindTyphoon}, r.Kinds())
	assert.Contains(t, r, KindWeather)
}
