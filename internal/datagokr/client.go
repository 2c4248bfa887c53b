// Package datagokr wraps the data.go.kr open-data services: AirKorea air quality and KMA typhoon advisories
package datagokr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ngmaloney/dive-relay/internal/models"
)

// ErrNoData is returned when a service answered with an empty item list
var ErrNoData = errors.New("datagokr: no data")

// APIError is the resultCode/resultMsg envelope data.go.kr returns (as XML) on failures
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAPI %s: %s", e.Code, e.Msg)
}

// AirClient defines the AirKorea lookups
type AirClient interface {
	// AirQualitySummary retrieves the realtime measurement for the province containing adminArea
	AirQualitySummary(ctx context.Context, adminArea string) (*models.AirQuality, error)
}

// TyphoonClient defines the typhoon advisory lookups
type TyphoonClient interface {
	// FetchTyphoonInfo retrieves advisories issued between from and to (inclusive)
	FetchTyphoonInfo(ctx context.Context, from, to time.Time) ([]models.TyphoonPosition, error)

	// FetchRecent retrieves advisories of the last days
	FetchRecent(ctx context.Context, days int) ([]models.TyphoonPosition, error)
}
