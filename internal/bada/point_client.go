package bada

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ngmaloney/dive-relay/internal/models"
)

// FetchFishingPoints retrieves fishing points near a location, keeping only the fields the watch shows.
// A response without a fishing_point list yields an empty list.
func (c *Client) FetchFishingPoints(ctx context.Context, lat, lon float64) (*models.FishingPoints, error) {
	body, err := c.get(ctx, "point", lat, lon)
	if err != nil {
		return nil, err
	}

	clean := stripControl(body)
	if !gjson.ValidBytes(clean) {
		return nil, errors.New("failed to decode fishing points: invalid JSON")
	}

	result := &models.FishingPoints{Points: make([]models.FishingPoint, 0)}
	list := gjson.GetBytes(clean, "fishing_point")
	if list.Exists() && !list.IsArray() {
		return nil, fmt.Errorf("failed to decode fishing points: fishing_point is %s", list.Type)
	}

	for _, p := range list.Array() {
		result.Points = append(result.Points, models.FishingPoint{
			Name:     p.Get("name").String(),
			PointNm:  p.Get("point_nm").String(),
			Depth:    p.Get("dpwt").String(),
			Material: p.Get("material").String(),
			TideTime: p.Get("tide_time").String(),
			Target:   p.Get("target").String(),
			Lat:      p.Get("lat").String(),
			Lon:      p.Get("lon").String(),
			Distance: p.Get("point_dt").String(),
		})
	}
	return result, nil
}
