package datagokr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/models"
)

const (
	typhoonPath     = "/1360000/TyphoonInfoService/getTyphoonInfo"
	typhoonPageSize = 50
	ymd             = "20060102"
)

var (
	resultCodeRe = regexp.MustCompile(`<resultCode>(.*?)</resultCode>`)
	resultMsgRe  = regexp.MustCompile(`<resultMsg>(.*?)</resultMsg>`)
)

// KMATyphoonClient implements TyphoonClient against the KMA typhoon information service
type KMATyphoonClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewTyphoonClient creates a typhoon client with a 15s connect and 20s read budget
func NewTyphoonClient(baseURL, serviceKey string, logger *zap.Logger) *KMATyphoonClient {
	if baseURL == "" {
		baseURL = "http://apis.data.go.kr"
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 15 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = 20 * time.Second

	return &KMATyphoonClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout:   35 * time.Second,
			Transport: transport,
		},
		logger: logging.OrNop(logger).Named("typhoon"),
		now:    time.Now,
	}
}

// FetchTyphoonInfo retrieves advisories issued between from and to (inclusive)
func (c *KMATyphoonClient) FetchTyphoonInfo(ctx context.Context, from, to time.Time) ([]models.TyphoonPosition, error) {
	// The key is appended by hand: data.go.kr keys are often distributed pre-encoded
	// and must not be encoded twice.
	key := c.serviceKey
	if !looksEncoded(key) {
		key = url.QueryEscape(key)
	}

	params := url.Values{}
	params.Add("pageNo", "1")
	params.Add("numOfRows", strconv.Itoa(typhoonPageSize))
	params.Add("dataType", "JSON")
	params.Add("fromTmFc", from.Format(ymd))
	params.Add("toTmFc", to.Format(ymd))

	requestURL := fmt.Sprintf("%s%s?ServiceKey=%s&%s", c.baseURL, typhoonPath, key, params.Encode())
	c.logger.Debug("requesting typhoon info", zap.String("from", from.Format(ymd)), zap.String("to", to.Format(ymd)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch typhoon info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read typhoon response: %w", err)
	}
	c.logger.Debug("typhoon response", zap.Int("status", resp.StatusCode), zap.Int("len", len(body)))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("typhoon API HTTP %d: %s", resp.StatusCode, body)
	}
	if apiErr := parseXMLError(body); apiErr != nil {
		c.logger.Error("API XML error", zap.String("code", apiErr.Code), zap.String("msg", apiErr.Msg))
		return nil, apiErr
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("failed to decode typhoon response: invalid JSON")
	}

	item := gjson.GetBytes(body, "response.body.items.item")
	var items []gjson.Result
	switch {
	case item.IsArray():
		items = item.Array()
	case item.IsObject():
		items = []gjson.Result{item}
	}

	positions := make([]models.TyphoonPosition, 0, len(items))
	for _, it := range items {
		positions = append(positions, parsePosition(it))
	}
	return positions, nil
}

// FetchRecent retrieves advisories of the last days (60 when days <= 0)
func (c *KMATyphoonClient) FetchRecent(ctx context.Context, days int) ([]models.TyphoonPosition, error) {
	if days <= 0 {
		days = 60
	}
	today := c.now()
	return c.FetchTyphoonInfo(ctx, today.AddDate(0, 0, -days), today)
}

func parsePosition(it gjson.Result) models.TyphoonPosition {
	name := it.Get("typName").String()
	if name == "" {
		name = "태풍"
	}
	lat, latOK := number(it.Get("typLat"))
	lon, lonOK := number(it.Get("typLon"))
	return models.TyphoonPosition{
		Name:  name,
		Lat:   lat,
		Lon:   lon,
		Valid: latOK && lonOK,
		Raw:   it.Raw,
	}
}

// number accepts both JSON numbers and numeric strings
func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		return v, err == nil
	}
	return 0, false
}

// parseXMLError detects the XML error envelope data.go.kr sends even when JSON was requested
func parseXMLError(body []byte) *APIError {
	if !bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("<")) {
		return nil
	}
	apiErr := &APIError{Code: "UNKNOWN", Msg: "UNKNOWN"}
	if m := resultCodeRe.FindSubmatch(body); m != nil {
		apiErr.Code = string(m[1])
	}
	if m := resultMsgRe.FindSubmatch(body); m != nil {
		apiErr.Msg = string(m[1])
	}
	return apiErr
}

// looksEncoded reports whether a service key is already percent-encoded
func looksEncoded(key string) bool {
	return strings.Contains(key, "%")
}
