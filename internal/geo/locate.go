package geo

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/db"
)

// DistrictRelation describes the spatial relationship between a point and a
// postal district.
type DistrictRelation struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	IsWithin   bool    `json:"is_within"`
	DistanceKM float64 `json:"distance_km"`
	CentroidKM float64 `json:"centroid_km"`
	EdgeKM     float64 `json:"edge_km"`
	Segment    string  `json:"segment"`
}

// Locator resolves coordinates against the district boundaries loaded into
// market.districts. It needs PostGIS; file-based lookups without a database
// go through DistrictIndex instead.
type Locator struct {
	pool db.Pool
}

// NewLocator creates a Locator.
func NewLocator(pool db.Pool) *Locator {
	return &Locator{pool: pool}
}

// NearestDistricts returns the topN districts closest to the point, nearest
// first, each classified into its market segment.
func (l *Locator) NearestDistricts(ctx context.Context, lat, lng float64, topN int) ([]DistrictRelation, error) {
	if topN <= 0 {
		topN = 3
	}

	rows, err := l.pool.Query(ctx, `
		SELECT
			d.code,
			d.name,
			ST_Contains(d.geom, pt) AS is_within,
			CASE WHEN ST_Contains(d.geom, pt) THEN 0
				 ELSE ST_Distance(d.geom::geography, pt::geography) / 1000
			END AS distance_km,
			ST_Distance(ST_Centroid(d.geom)::geography, pt::geography) / 1000 AS centroid_km,
			ST_Distance(ST_Boundary(d.geom)::geography, pt::geography) / 1000 AS edge_km
		FROM market.districts d,
			 ST_SetSRID(ST_MakePoint($1, $2), 4326) AS pt
		ORDER BY d.geom <-> pt
		LIMIT $3`, lng, lat, topN)
	if err != nil {
		return nil, eris.Wrap(err, "geo: nearest districts query")
	}
	defer rows.Close()

	var relations []DistrictRelation
	for rows.Next() {
		var r DistrictRelation
		if err := rows.Scan(&r.Code, &r.Name, &r.IsWithin,
			&r.DistanceKM, &r.CentroidKM, &r.EdgeKM); err != nil {
			return nil, eris.Wrap(err, "geo: scan district relation")
		}
		r.Segment = Segment(r.IsWithin, r.CentroidKM, r.EdgeKM)
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate district rows")
	}
	return relations, nil
}
