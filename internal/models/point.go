package models

// FishingPoint is a BADA fishing/diving point reduced to the fields the watch shows
type FishingPoint struct {
	Name     string `json:"name"`
	PointNm  string `json:"point_nm"`
	Depth    string `json:"dpwt"`
	Material string `json:"material"`
	TideTime string `json:"tide_time"`
	Target   string `json:"target"`
	Lat      string `json:"lat"`
	Lon      string `json:"lon"`
	Distance string `json:"point_dt"`
}

// FishingPoints is the /response_point payload
type FishingPoints struct {
	Points []FishingPoint `json:"points"`
}
