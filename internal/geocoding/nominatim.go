package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const userAgent = "DiveRelay/1.0" // Required by Nominatim ToS

// NominatimResolver reverse geocodes through OpenStreetMap Nominatim
type NominatimResolver struct {
	baseURL    string
	httpClient *http.Client
	lastCall   time.Time
	minGap     time.Duration
	mu         sync.Mutex
}

// NewNominatimResolver creates a resolver; baseURL defaults to the public instance
func NewNominatimResolver(baseURL string) *NominatimResolver {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &NominatimResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		minGap: time.Second,
	}
}

// nominatimReverse represents the Nominatim reverse response
type nominatimReverse struct {
	Error   string `json:"error"`
	Address struct {
		Province     string `json:"province"`
		State        string `json:"state"`
		City         string `json:"city"`
		County       string `json:"county"`
		Town         string `json:"town"`
		Borough      string `json:"borough"`
		CityDistrict string `json:"city_district"`
		Suburb       string `json:"suburb"`
		Quarter      string `json:"quarter"`
		Village      string `json:"village"`
	} `json:"address"`
}

// Resolve converts coordinates to a region
func (n *NominatimResolver) Resolve(ctx context.Context, lat, lon float64) (Region, error) {
	params := url.Values{}
	params.Add("format", "jsonv2")
	params.Add("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Add("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Add("zoom", "16")
	params.Add("accept-language", "ko")

	reqURL := fmt.Sprintf("%s/reverse?%s", n.baseURL, params.Encode())

	// Rate limiting: Nominatim requires 1 req/sec max
	n.mu.Lock()
	if !n.lastCall.IsZero() {
		if wait := n.minGap - time.Since(n.lastCall); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				n.mu.Unlock()
				return Region{}, ctx.Err()
			}
		}
	}
	n.lastCall = time.Now()
	n.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Region{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Region{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Region{}, fmt.Errorf("nominatim API returned status %d", resp.StatusCode)
	}

	var result nominatimReverse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Region{}, fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return Region{}, fmt.Errorf("%w: %s", ErrNotFound, result.Error)
	}

	a := result.Address
	region := Region{
		AdminArea:   firstNonEmpty(a.Province, a.State),
		Locality:    firstNonEmpty(a.City, a.County, a.Town),
		SubLocality: firstNonEmpty(a.Borough, a.CityDistrict, a.Suburb, a.Quarter, a.Village),
	}
	// Metropolitan cities (특별시/광역시) have no province above them
	if region.AdminArea == "" {
		region.AdminArea = region.Locality
		region.Locality = firstNonEmpty(a.Borough, a.CityDistrict, a.County)
		region.SubLocality = firstNonEmpty(a.Suburb, a.Quarter, a.Village, a.Town)
	}
	return region, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
