// Package glstender syncs the Government Land Sales tender table through the
// bulk diff pipeline. Incoming records arrive as field maps parsed from CSV,
// XLSX, or a tender-list scrape.
package glstender

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/db"
	"github.com/propsight/market-cli/internal/geo"
)

const table = "market.gls_tenders"

// columns is the full column set, in insert order.
var columns = []string{
	"tender_ref", "site_name", "location", "region", "district",
	"site_area_sqm", "gross_plot_ratio", "max_gfa_sqm",
	"launch_date", "close_date", "award_date",
	"successful_tenderer", "awarded_price_sgd", "psm_gfa_sgd", "num_bids",
	"status", "latitude", "longitude",
}

// compareFields is the subset the diff phase inspects. Derived fields
// (psm_gfa_sgd) are excluded; they are recomputed on every write.
var compareFields = []string{
	"site_name", "location", "region", "district",
	"site_area_sqm", "gross_plot_ratio", "max_gfa_sqm",
	"launch_date", "close_date", "award_date",
	"successful_tenderer", "awarded_price_sgd", "num_bids",
	"status", "latitude", "longitude",
}

const dateLayout = "2006-01-02"

// Syncer adapts market.gls_tenders to the bulk diff pipeline. The district
// index is optional; without it rows keep whatever district they came with.
type Syncer struct {
	pool      db.Pool
	districts *geo.DistrictIndex
}

// NewSyncer creates a tender syncer.
func NewSyncer(pool db.Pool, districts *geo.DistrictIndex) *Syncer {
	return &Syncer{pool: pool, districts: districts}
}

func (s *Syncer) EntityType() string      { return "gls_tender" }
func (s *Syncer) KeyField() string        { return "tender_ref" }
func (s *Syncer) CompareFields() []string { return compareFields }

// LoadExisting reads the whole tender table keyed by tender_ref. Dates render
// as ISO date strings so they compare cleanly against parsed file values.
func (s *Syncer) LoadExisting(ctx context.Context) (map[string]map[string]any, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tender_ref, site_name, location, region, district,
		        site_area_sqm, gross_plot_ratio, max_gfa_sqm,
		        launch_date, close_date, award_date,
		        successful_tenderer, awarded_price_sgd, psm_gfa_sgd, num_bids,
		        status, latitude, longitude
		 FROM `+table)
	if err != nil {
		return nil, eris.Wrap(err, "glstender: load existing")
	}
	defer rows.Close()

	out := make(map[string]map[string]any)
	for rows.Next() {
		var (
			ref, siteName, location, region, district, tenderer, status string
			siteArea, plotRatio, maxGFA, price, psm, lat, lng            *float64
			numBids                                                      *int32
			launch, closing, award                                       *time.Time
		)
		if err := rows.Scan(
			&ref, &siteName, &location, &region, &district,
			&siteArea, &plotRatio, &maxGFA,
			&launch, &closing, &award,
			&tenderer, &price, &psm, &numBids,
			&status, &lat, &lng,
		); err != nil {
			return nil, eris.Wrap(err, "glstender: scan tender")
		}

		rec := map[string]any{
			"tender_ref":          ref,
			"site_name":           siteName,
			"location":            location,
			"region":              region,
			"district":            district,
			"successful_tenderer": tenderer,
			"status":              status,
		}
		putFloat(rec, "site_area_sqm", siteArea)
		putFloat(rec, "gross_plot_ratio", plotRatio)
		putFloat(rec, "max_gfa_sqm", maxGFA)
		putFloat(rec, "awarded_price_sgd", price)
		putFloat(rec, "psm_gfa_sgd", psm)
		putFloat(rec, "latitude", lat)
		putFloat(rec, "longitude", lng)
		if numBids != nil {
			rec["num_bids"] = float64(*numBids)
		}
		putDate(rec, "launch_date", launch)
		putDate(rec, "close_date", closing)
		putDate(rec, "award_date", award)

		out[ref] = rec
	}
	return out, rows.Err()
}

// Recompute fills derived fields: GFA from site area and plot ratio, price
// per square metre of GFA, award status, and the postal district from
// coordinates when the source left it blank.
func (s *Syncer) Recompute(rec map[string]any) {
	siteArea := num(rec, "site_area_sqm")
	plotRatio := num(rec, "gross_plot_ratio")
	if num(rec, "max_gfa_sqm") == 0 && siteArea > 0 && plotRatio > 0 {
		rec["max_gfa_sqm"] = siteArea * plotRatio
	}

	price := num(rec, "awarded_price_sgd")
	if gfa := num(rec, "max_gfa_sqm"); price > 0 && gfa > 0 {
		rec["psm_gfa_sgd"] = price / gfa
	}

	if price > 0 {
		rec["status"] = "awarded"
	} else if str(rec, "status") == "" {
		rec["status"] = "launched"
	}

	if s.districts != nil && str(rec, "district") == "" {
		lat, lng := num(rec, "latitude"), num(rec, "longitude")
		if geo.ValidPoint(lat, lng) {
			if d, ok := s.districts.Locate(lat, lng); ok {
				rec["district"] = d
			}
		}
	}
}

// Insert writes new tenders in one COPY-backed batch.
func (s *Syncer) Insert(ctx context.Context, records []map[string]any) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row, err := rowFromRecord(rec)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        table,
		Columns:      columns,
		ConflictKeys: []string{"tender_ref"},
	}, rows)
}

// Update rewrites one tender row.
func (s *Syncer) Update(ctx context.Context, key string, rec map[string]any) error {
	row, err := rowFromRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE `+table+` SET
			site_name = $2, location = $3, region = $4, district = $5,
			site_area_sqm = $6, gross_plot_ratio = $7, max_gfa_sqm = $8,
			launch_date = $9, close_date = $10, award_date = $11,
			successful_tenderer = $12, awarded_price_sgd = $13, psm_gfa_sgd = $14,
			num_bids = $15, status = $16, latitude = $17, longitude = $18,
			updated_at = now()
		 WHERE tender_ref = $1`,
		append([]any{key}, row[1:]...)...,
	)
	if err != nil {
		return eris.Wrapf(err, "glstender: update %s", key)
	}
	return nil
}

// rowFromRecord converts a field map into a column-ordered row with typed
// values for the database.
func rowFromRecord(rec map[string]any) ([]any, error) {
	ref := str(rec, "tender_ref")
	if ref == "" {
		return nil, eris.New("glstender: record missing tender_ref")
	}

	launch, err := dateVal(rec, "launch_date")
	if err != nil {
		return nil, err
	}
	closeDate, err := dateVal(rec, "close_date")
	if err != nil {
		return nil, err
	}
	award, err := dateVal(rec, "award_date")
	if err != nil {
		return nil, err
	}

	return []any{
		ref,
		str(rec, "site_name"),
		str(rec, "location"),
		str(rec, "region"),
		str(rec, "district"),
		numPtr(rec, "site_area_sqm"),
		numPtr(rec, "gross_plot_ratio"),
		numPtr(rec, "max_gfa_sqm"),
		launch,
		closeDate,
		award,
		str(rec, "successful_tenderer"),
		numPtr(rec, "awarded_price_sgd"),
		numPtr(rec, "psm_gfa_sgd"),
		intPtr(rec, "num_bids"),
		str(rec, "status"),
		numPtr(rec, "latitude"),
		numPtr(rec, "longitude"),
	}, nil
}

func putFloat(rec map[string]any, field string, v *float64) {
	if v != nil {
		rec[field] = *v
	}
}

func putDate(rec map[string]any, field string, v *time.Time) {
	if v != nil {
		rec[field] = v.Format(dateLayout)
	}
}

func str(rec map[string]any, field string) string {
	s, _ := rec[field].(string)
	return s
}

func num(rec map[string]any, field string) float64 {
	switch v := rec[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func numPtr(rec map[string]any, field string) *float64 {
	if _, ok := rec[field]; !ok {
		return nil
	}
	v := num(rec, field)
	return &v
}

func intPtr(rec map[string]any, field string) *int32 {
	if _, ok := rec[field]; !ok {
		return nil
	}
	v := int32(num(rec, field))
	return &v
}

func dateVal(rec map[string]any, field string) (*time.Time, error) {
	s := str(rec, field)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, eris.Wrapf(err, "glstender: bad %s %q", field, s)
	}
	return &t, nil
}
