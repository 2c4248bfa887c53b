package bada

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
)

// Client implements WeatherClient, TideClient and PointClient against one BADA base URL
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a BADA client
func NewClient(baseURL, serviceKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.OrNop(logger).Named("bada"),
	}
}

// get performs GET {base}/{endpoint}?lat=..&lon=..&key=.. and returns the body
func (c *Client) get(ctx context.Context, endpoint string, lat, lon float64) ([]byte, error) {
	params := url.Values{}
	params.Add("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Add("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Add("key", c.serviceKey)

	requestURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d for %s", resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	c.logger.Debug("raw response", zap.String("endpoint", endpoint), zap.ByteString("body", body))
	return body, nil
}

// stripInvisible removes the BOM and zero-width characters the forecast endpoint prepends
func stripInvisible(body []byte) []byte {
	return []byte(strings.Map(func(r rune) rune {
		switch r {
		case '\uFEFF', '\u200B', '\u200C', '\u200D':
			return -1
		}
		return r
	}, string(body)))
}

// stripControl removes the BOM and ASCII control characters the point endpoint leaves in strings
func stripControl(body []byte) []byte {
	return []byte(strings.Map(func(r rune) rune {
		if r == '\uFEFF' || r <= 0x1F || r == 0x7F {
			return -1
		}
		return r
	}, string(body)))
}
