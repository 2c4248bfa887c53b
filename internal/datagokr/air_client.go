package datagokr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/models"
)

const airKoreaPath = "/B552584/ArpltnInforInqireSvc/getCtprvnRltmMesureDnsty"

// AirKoreaClient implements AirClient
type AirKoreaClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAirKoreaClient creates an AirKorea client
func NewAirKoreaClient(baseURL, serviceKey string, logger *zap.Logger) *AirKoreaClient {
	if baseURL == "" {
		baseURL = "https://apis.data.go.kr"
	}
	return &AirKoreaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.OrNop(logger).Named("airkorea"),
	}
}

// FetchAirQuality retrieves the raw realtime measurement response for a province short name (e.g. "부산")
func (c *AirKoreaClient) FetchAirQuality(ctx context.Context, sidoName string) (gjson.Result, error) {
	params := url.Values{}
	params.Add("serviceKey", c.serviceKey)
	params.Add("returnType", "json")
	params.Add("sidoName", sidoName)
	params.Add("numOfRows", "1")
	params.Add("pageNo", "1")
	params.Add("ver", "1.3")

	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, airKoreaPath, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to fetch air quality: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read air quality response: %w", err)
	}
	c.logger.Debug("raw response", zap.String("sido", sidoName), zap.ByteString("body", body))

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if apiErr := parseXMLError(body); apiErr != nil {
		return gjson.Result{}, apiErr
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("failed to decode air quality response: invalid JSON")
	}
	return gjson.ParseBytes(body), nil
}

// AirQualitySummary normalizes adminArea, fetches its measurement and keeps the first item
func (c *AirKoreaClient) AirQualitySummary(ctx context.Context, adminArea string) (*models.AirQuality, error) {
	sido := NormalizeRegion(adminArea)

	raw, err := c.FetchAirQuality(ctx, sido)
	if err != nil {
		return nil, err
	}

	items := raw.Get("response.body.items")
	if !items.Exists() {
		return nil, fmt.Errorf("failed to decode air quality response: missing response.body.items")
	}
	first := items.Get("0")
	if !first.Exists() {
		return nil, ErrNoData
	}

	return &models.AirQuality{
		PM10Value: first.Get("pm10Value").String(),
		PM10Grade: first.Get("pm10Grade1h").String(),
		PM25Value: first.Get("pm25Value").String(),
		PM25Grade: first.Get("pm25Grade1h").String(),
		O3Value:   first.Get("o3Value").String(),
		O3Grade:   first.Get("o3Grade").String(),
		NO2Value:  first.Get("no2Value").String(),
		NO2Grade:  first.Get("no2Grade").String(),
	}, nil
}

// provinces lists the AirKorea sidoName values in match order
var provinces = []string{
	"서울", "부산", "대구", "인천", "광주", "대전", "울산", "세종",
	"경기", "강원", "충북", "충남", "전북", "전남", "경북", "경남", "제주",
}

// fullProvinceNames maps the long forms a geocoder returns for the two-part provinces
var fullProvinceNames = map[string]string{
	"충청북": "충북",
	"충청남": "충남",
	"전라북": "전북",
	"전라남": "전남",
	"경상북": "경북",
	"경상남": "경남",
}

// NormalizeRegion reduces a geocoder admin area ("부산광역시", "경상남도") to the AirKorea
// sidoName. Unknown areas fall back to 서울.
func NormalizeRegion(adminArea string) string {
	s := adminArea
	for _, suffix := range []string{"특별시", "광역시", "특별자치도", "특별자치시", "도"} {
		s = strings.ReplaceAll(s, suffix, "")
	}
	s = strings.TrimSpace(s)

	for long, short := range fullProvinceNames {
		if strings.Contains(s, long) {
			return short
		}
	}
	for _, p := range provinces {
		if strings.Contains(s, p) {
			return p
		}
	}
	return "서울"
}
