package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/geocoding"
	"github.com/ngmaloney/dive-relay/internal/heartrate"
	"github.com/ngmaloney/dive-relay/internal/location"
	"github.com/ngmaloney/dive-relay/internal/models"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

type sent struct {
	Path string
	Data string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) Send(_ context.Context, path string, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{path, string(data)})
	return 1, nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

type fakeWeather struct {
	lat, lon float64
	err      error
}

func (f *fakeWeather) FetchBaseWeather(context.Context, float64, float64) (*models.CurrentWeather, error) {
	return nil, errors.New("unused")
}

func (f *fakeWeather) FetchWeather(_ context.Context, lat, lon float64) (*models.WeatherSummary, error) {
	f.lat, f.lon = lat, lon
	if f.err != nil {
		return nil, f.err
	}
	return &models.WeatherSummary{Sky: "맑음", Temp: "27", WaveHeight: "0.5"}, nil
}

type fakeTides struct{}

func (fakeTides) FetchTide(context.Context, float64, float64) ([]json.RawMessage, error) {
	return []json.RawMessage{json.RawMessage(`{"pThisDate":"2025-08-19","pTime1":"07:06 (81) ▲+54"}`)}, nil
}

type fakePoints struct{}

func (fakePoints) FetchFishingPoints(context.Context, float64, float64) (*models.FishingPoints, error) {
	return &models.FishingPoints{Points: []models.FishingPoint{{Name: "부산광역시", PointNm: "다대포"}}}, nil
}

type fakeAir struct{ adminArea string }

func (f *fakeAir) AirQualitySummary(_ context.Context, adminArea string) (*models.AirQuality, error) {
	f.adminArea = adminArea
	return &models.AirQuality{PM10Value: "31", PM10Grade: "2"}, nil
}

type fakeResolver struct{ region geocoding.Region }

func (f fakeResolver) Resolve(context.Context, float64, float64) (geocoding.Region, error) {
	return f.region, nil
}

type fakeSink struct{ readings []heartrate.Reading }

func (f *fakeSink) Record(_ context.Context, r heartrate.Reading) error {
	f.readings = append(f.readings, r)
	return nil
}

type fixture struct {
	relay   *Relay
	sender  *fakeSender
	tracker *location.Tracker
	weather *fakeWeather
	air     *fakeAir
	sink    *fakeSink
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		sender:  &fakeSender{},
		tracker: location.NewTracker(geo.DefaultPoint),
		weather: &fakeWeather{},
		air:     &fakeAir{},
		sink:    &fakeSink{},
	}
	f.relay = New(Deps{
		Sender:    f.sender,
		Tracker:   f.tracker,
		Weather:   f.weather,
		Tides:     fakeTides{},
		Points:    fakePoints{},
		Air:       f.air,
		Geocoder:  fakeResolver{region: geocoding.Region{AdminArea: "부산광역시", Locality: "해운대구"}},
		HeartRate: f.sink,
		Logger:    zaptest.NewLogger(t),
	})
	return f
}

var node = watch.NodeInfo{ID: "node-1", Role: watch.RoleWatch}

func TestNodeConnectedRequestsHeartRate(t *testing.T) {
	f := newFixture(t)
	f.relay.NodeConnected(context.Background(), node)
	assert.Equal(t, []sent{{PathRequestHeartRate, "request"}}, f.sender.all())
}

func TestHandleMessageReplies(t *testing.T) {
	tests := []struct {
		path string
		want sent
	}{
		{PathRequestWeather, sent{PathResponseWeather, `{"sky":"맑음","temp":"27","humidity":"","windspd":"","rain":"","winddir":"","waveHt":"0.5","waveDir":"","obsWt":""}`}},
		{PathRequestTide, sent{PathResponseTide, `{"tides":[{"pThisDate":"2025-08-19","pTime1":"07:06 (81) ▲+54"}]}`}},
		{PathRequestPoint, sent{PathResponsePoint, `{"points":[{"name":"부산광역시","point_nm":"다대포","dpwt":"","material":"","tide_time":"","target":"","lat":"","lon":"","point_dt":""}]}`}},
		{PathRequestAir, sent{PathResponseAir, `{"pm10Value":"31","pm10Grade":"2","pm25Value":"","pm25Grade":"","o3Value":"","o3Grade":"","no2Value":"","no2Grade":""}`}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := newFixture(t)
			f.relay.HandleMessage(context.Background(), node, watch.Message{Path: tt.path})
			got := f.sender.all()
			require.Len(t, got, 1)
			assert.Equal(t, tt.want.Path, got[0].Path)
			assert.JSONEq(t, tt.want.Data, got[0].Data)
		})
	}
}

func TestWeatherUsesDefaultLocation(t *testing.T) {
	f := newFixture(t)
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathRequestWeather})
	assert.Equal(t, geo.DefaultPoint.Lat, f.weather.lat)
	assert.Equal(t, geo.DefaultPoint.Lon, f.weather.lon)
}

func TestAirUsesResolvedProvince(t *testing.T) {
	f := newFixture(t)
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathRequestAir})
	assert.Equal(t, "부산광역시", f.air.adminArea)
}

func TestWeatherFailureSkipsReply(t *testing.T) {
	f := newFixture(t)
	f.weather.err = errors.New("timeout")
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathRequestWeather})
	assert.Empty(t, f.sender.all())
}

func TestLocationRequest(t *testing.T) {
	f := newFixture(t)

	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathRequestLocation})
	assert.Empty(t, f.sender.all(), "no reply without a known location")

	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathUpdateLocation, Data: `{"lat":35.1587,"lon":129.1604}`})
	fix, ok := f.tracker.LastFix()
	require.True(t, ok)
	assert.Equal(t, "watch:node-1", fix.Source)

	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathRequestLocation})
	got := f.sender.all()
	require.Len(t, got, 1)
	assert.Equal(t, PathResponseLocation, got[0].Path)
	assert.JSONEq(t, `{"lat":35.1587,"lon":129.1604}`, got[0].Data)
}

func TestUpdateLocationRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathUpdateLocation, Data: `{"lat":"x"}`})
	_, ok := f.tracker.Last()
	assert.False(t, ok)

	fix := geo.Point{Lat: 35.1587, Lon: 129.1604}
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathUpdateLocation, Data: `{"lat":35.1587,"lon":129.1604}`})

	for _, data := range []string{
		`{"lat":"x","lon":null}`,
		`{"lat":null,"lon":null}`,
		`{"lat":{},"lon":[]}`,
		`{"lat":true,"lon":129.1}`,
		`{"lat":"","lon":"129.1"}`,
	} {
		f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathUpdateLocation, Data: data})
		got, ok := f.tracker.Last()
		require.True(t, ok, data)
		assert.Equal(t, fix, got, "fix replaced by %s", data)
	}
}

func TestUpdateLocationNumericStrings(t *testing.T) {
	f := newFixture(t)
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathUpdateLocation, Data: `{"lat":"37.4","lon":" 129.2 "}`})
	got, ok := f.tracker.Last()
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lat: 37.4, Lon: 129.2}, got)
}

func TestHeartRateForwarded(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2025, 8, 19, 6, 30, 0, 0, time.UTC)
	f.relay.now = func() time.Time { return fixed }

	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathResponseHeartRate, Data: "72"})
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: PathResponseHeartRate, Data: "not a number"})

	require.Len(t, f.sink.readings, 1)
	assert.Equal(t, heartrate.Reading{NodeID: "node-1", BPM: 72, At: fixed}, f.sink.readings[0])
	assert.Empty(t, f.sender.all(), "heart rate is never answered")
}

func TestUnknownPathIgnored(t *testing.T) {
	f := newFixture(t)
	f.relay.HandleMessage(context.Background(), node, watch.Message{Path: "/request_moon", Data: "?"})
	assert.Empty(t, f.sender.all())
}

func TestMissingClientSkipsReply(t *testing.T) {
	sender := &fakeSender{}
	r := New(Deps{Sender: sender, Tracker: location.NewTracker(geo.DefaultPoint)})
	for _, p := range []string{PathRequestWeather, PathRequestTide, PathRequestPoint, PathRequestAir} {
		r.HandleMessage(context.Background(), node, watch.Message{Path: p})
	}
	assert.Empty(t, sender.all())
}
