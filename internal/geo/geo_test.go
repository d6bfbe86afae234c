package geo

import (
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func TestValidPoint(t *testing.T) {
	assert.True(t, ValidPoint(1.3521, 103.8198)) // central Singapore
	assert.False(t, ValidPoint(3.1390, 101.6869)) // KL
	assert.False(t, ValidPoint(0, 0))
}

func TestDistanceM(t *testing.T) {
	// Orchard (1.3048, 103.8318) to Marina Bay (1.2816, 103.8636) is ~4.4km.
	d := DistanceM(1.3048, 103.8318, 1.2816, 103.8636)
	assert.InDelta(t, 4400, d, 400)

	assert.Zero(t, DistanceM(1.3, 103.8, 1.3, 103.8))
	assert.True(t, WithinMeters(1.3048, 103.8318, 1.30485, 103.83185, 50))
}

func TestCoordsFromField(t *testing.T) {
	lat, lng, ok := CoordsFromField(map[string]any{"lat": 1.30, "lng": 103.82})
	assert.True(t, ok)
	assert.Equal(t, 1.30, lat)
	assert.Equal(t, 103.82, lng)

	lat, lng, ok = CoordsFromField(map[string]any{"lat": 1.30, "lon": 103.82})
	assert.True(t, ok)
	assert.Equal(t, 103.82, lng)

	lat, lng, ok = CoordsFromField([]any{1.30, 103.82})
	assert.True(t, ok)
	assert.Equal(t, 1.30, lat)

	_, _, ok = CoordsFromField("1.30,103.82")
	assert.False(t, ok)

	_, _, ok = CoordsFromField(map[string]any{"lat": 1.30})
	assert.False(t, ok)
}

func TestPolygonRings(t *testing.T) {
	poly := &shp.Polygon{
		Parts: []int32{0, 3},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1},
			{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 5, Y: 6},
		},
	}
	rings := polygonRings(poly)
	assert.Len(t, rings, 2)
	assert.Len(t, rings[0], 3)
	assert.Len(t, rings[1], 3)
	assert.Equal(t, geom.Coord{5, 5}, rings[1][0])
}

func TestLocate(t *testing.T) {
	// Square around Orchard, lng/lat order.
	idx := &DistrictIndex{districts: []district{{
		code: "D09",
		rings: [][]geom.Coord{{
			{103.80, 1.29}, {103.85, 1.29}, {103.85, 1.32}, {103.80, 1.32}, {103.80, 1.29},
		}},
	}}}

	code, ok := idx.Locate(1.3048, 103.8318)
	assert.True(t, ok)
	assert.Equal(t, "D09", code)

	_, ok = idx.Locate(1.40, 103.95)
	assert.False(t, ok)

	// Out-of-bounds points never match.
	_, ok = idx.Locate(3.14, 101.69)
	assert.False(t, ok)
}
