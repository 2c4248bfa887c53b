package bada

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ngmaloney/dive-relay/internal/models"
)

// FetchTide retrieves the tide table around a location. Entries are returned
// untouched so the watch receives every field BADA provides.
func (c *Client) FetchTide(ctx context.Context, lat, lon float64) ([]json.RawMessage, error) {
	body, err := c.get(ctx, "tide", lat, lon)
	if err != nil {
		return nil, err
	}

	var days []json.RawMessage
	if err := json.Unmarshal(stripInvisible(body), &days); err != nil {
		return nil, fmt.Errorf("failed to decode tide response: %w", err)
	}
	return days, nil
}

// ParseTideDay extracts the typed fields of one tide entry
func ParseTideDay(raw json.RawMessage) models.TideDay {
	r := gjson.ParseBytes(raw)
	day := models.TideDay{
		Date: r.Get("pThisDate").String(),
		Name: r.Get("pName").String(),
		Mul:  r.Get("pMul").String(),
		Sun:  r.Get("pSun").String(),
		Moon: r.Get("pMoon").String(),
	}
	for i := range day.PTime {
		day.PTime[i] = r.Get(fmt.Sprintf("pTime%d", i+1)).String()
	}
	return day
}
