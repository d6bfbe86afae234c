package geo

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	shp "github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceDistricts_TruncatesThenCopies(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`TRUNCATE market.districts`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"market", "districts"}, []string{"code", "name", "geom"}).
		WillReturnResult(2)

	rows := [][]any{
		{"D09", "Orchard, River Valley", "SRID=4326;MULTIPOLYGON(((103.82 1.29,103.84 1.29,103.84 1.31,103.82 1.29)))"},
		{"D10", "Tanglin, Bukit Timah", "SRID=4326;MULTIPOLYGON(((103.79 1.30,103.82 1.30,103.82 1.33,103.79 1.30)))"},
	}
	require.NoError(t, replaceDistricts(context.Background(), mock, rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceDistricts_CopyErrorSurfaces(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`TRUNCATE market.districts`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"market", "districts"}, []string{"code", "name", "geom"}).
		WillReturnError(fmt.Errorf("parse error - invalid geometry"))

	err = replaceDistricts(context.Background(), mock, [][]any{{"D09", "Orchard", "SRID=4326;MULTIPOLYGON EMPTY"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geo: load districts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolygonToWKT(t *testing.T) {
	p := &shp.Polygon{
		NumParts:  1,
		NumPoints: 4,
		Parts:     []int32{0},
		Points: []shp.Point{
			{X: 103.82, Y: 1.29},
			{X: 103.84, Y: 1.29},
			{X: 103.84, Y: 1.31},
			{X: 103.82, Y: 1.29},
		},
	}
	wkt := polygonToWKT(p)
	assert.Contains(t, wkt, "MULTIPOLYGON(((")
	assert.Contains(t, wkt, "103.820000 1.290000")

	assert.Empty(t, polygonToWKT(&shp.Polygon{}))
}

func TestLoadDistrictShapefile_MissingFile(t *testing.T) {
	err := LoadDistrictShapefile(context.Background(), nil, "/nonexistent/districts.shp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geo: open shapefile")
}
