package geocoding

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
)

// ShapeFields names the DBF columns holding each administrative level
type ShapeFields struct {
	AdminArea   string
	Locality    string
	SubLocality string
}

// DefaultShapeFields matches the 행정구역 boundary files published by the Ministry of the Interior
var DefaultShapeFields = ShapeFields{
	AdminArea:   "SIDO_NM",
	Locality:    "SGG_NM",
	SubLocality: "EMD_NM",
}

type boundary struct {
	region Region
	box    shp.Box
	rings  [][]shp.Point
}

// ShapeResolver answers lookups offline from a boundary shapefile held in memory
type ShapeResolver struct {
	boundaries []boundary
}

// LoadShapefile reads every polygon of the shapefile at path. Coordinates must be WGS84 lon/lat.
func LoadShapefile(path string, fields ShapeFields) (*ShapeResolver, error) {
	shape, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile: %w", err)
	}
	defer shape.Close()

	index := map[string]int{}
	for i, f := range shape.Fields() {
		index[strings.ToUpper(trimField(string(f.Name[:])))] = i
	}
	attr := func(n int, name string) string {
		i, ok := index[strings.ToUpper(name)]
		if name == "" || !ok {
			return ""
		}
		return trimField(shape.ReadAttribute(n, i))
	}
	if _, ok := index[strings.ToUpper(fields.AdminArea)]; !ok {
		return nil, fmt.Errorf("shapefile %s has no %q field", path, fields.AdminArea)
	}

	r := &ShapeResolver{}
	for shape.Next() {
		n, p := shape.Shape()
		polygon, ok := p.(*shp.Polygon)
		if !ok || len(polygon.Points) == 0 {
			continue
		}
		r.boundaries = append(r.boundaries, boundary{
			region: Region{
				AdminArea:   attr(n, fields.AdminArea),
				Locality:    attr(n, fields.Locality),
				SubLocality: attr(n, fields.SubLocality),
			},
			box:   polygon.BBox(),
			rings: splitParts(polygon),
		})
	}
	if len(r.boundaries) == 0 {
		return nil, fmt.Errorf("shapefile %s has no polygons", path)
	}
	return r, nil
}

// Len returns the number of loaded polygons
func (r *ShapeResolver) Len() int {
	return len(r.boundaries)
}

// Resolve returns the region of the first polygon containing the point
func (r *ShapeResolver) Resolve(_ context.Context, lat, lon float64) (Region, error) {
	for _, b := range r.boundaries {
		if lon < b.box.MinX || lon > b.box.MaxX || lat < b.box.MinY || lat > b.box.MaxY {
			continue
		}
		if contains(b.rings, lon, lat) {
			return b.region, nil
		}
	}
	return Region{}, ErrNotFound
}

func splitParts(polygon *shp.Polygon) [][]shp.Point {
	rings := make([][]shp.Point, 0, len(polygon.Parts))
	for partIdx := 0; partIdx < len(polygon.Parts); partIdx++ {
		startIdx := int(polygon.Parts[partIdx])
		endIdx := len(polygon.Points)
		if partIdx+1 < len(polygon.Parts) {
			endIdx = int(polygon.Parts[partIdx+1])
		}
		if startIdx < endIdx {
			rings = append(rings, polygon.Points[startIdx:endIdx])
		}
	}
	return rings
}

// contains applies the even-odd rule across all rings so holes are excluded
func contains(rings [][]shp.Point, x, y float64) bool {
	inside := false
	for _, ring := range rings {
		for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
			a, b := ring[i], ring[j]
			if (a.Y > y) != (b.Y > y) && x < (b.X-a.X)*(y-a.Y)/(b.Y-a.Y)+a.X {
				inside = !inside
			}
		}
	}
	return inside
}

func trimField(s string) string {
	return strings.Trim(s, "\x00 ")
}
