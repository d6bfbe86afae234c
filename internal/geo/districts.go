package geo

import (
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// DistrictIndex locates the postal district containing a point. Boundaries
// load from a shapefile with one polygon record per district and a DISTRICT
// attribute holding the code.
type DistrictIndex struct {
	districts []district
}

type district struct {
	code  string
	rings [][]geom.Coord
}

// LoadDistricts reads district polygons from a shapefile.
func LoadDistricts(path string) (*DistrictIndex, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open district shapefile %s", path)
	}
	defer r.Close()

	codeField := -1
	for i, f := range r.Fields() {
		if strings.EqualFold(f.String(), "DISTRICT") {
			codeField = i
			break
		}
	}
	if codeField == -1 {
		return nil, eris.Errorf("geo: shapefile %s has no DISTRICT attribute", path)
	}

	idx := &DistrictIndex{}
	for r.Next() {
		n, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		code := strings.TrimSpace(r.ReadAttribute(n, codeField))
		if code == "" {
			continue
		}

		idx.districts = append(idx.districts, district{
			code:  code,
			rings: polygonRings(poly),
		})
	}

	if len(idx.districts) == 0 {
		return nil, eris.Errorf("geo: shapefile %s contains no district polygons", path)
	}
	return idx, nil
}

// polygonRings splits a shapefile polygon's point array into its rings.
func polygonRings(p *shp.Polygon) [][]geom.Coord {
	rings := make([][]geom.Coord, 0, len(p.Parts))
	for i, start := range p.Parts {
		end := len(p.Points)
		if i+1 < len(p.Parts) {
			end = int(p.Parts[i+1])
		}
		ring := make([]geom.Coord, 0, end-int(start))
		for _, pt := range p.Points[start:end] {
			ring = append(ring, geom.Coord{pt.X, pt.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

// Locate returns the district code containing the point, or "" if the point
// is outside every loaded boundary.
func (idx *DistrictIndex) Locate(lat, lng float64) (string, bool) {
	if !ValidPoint(lat, lng) {
		return "", false
	}
	pt := coordToPoint(lat, lng)
	for _, d := range idx.districts {
		for _, ring := range d.rings {
			if xy.IsPointInRing(geom.XY, pt, flattenRing(ring)) {
				return d.code, true
			}
		}
	}
	return "", false
}

// flattenRing converts a coord slice into the flat layout xy expects.
func flattenRing(ring []geom.Coord) []float64 {
	flat := make([]float64, 0, len(ring)*2)
	for _, c := range ring {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
