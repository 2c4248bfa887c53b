package models

// TyphoonPosition is one advisory position from the KMA typhoon service
type TyphoonPosition struct {
	Name string
	Lat  float64
	Lon  float64
	// Valid is false when the advisory has no usable coordinates
	Valid bool
	Raw   string
}
