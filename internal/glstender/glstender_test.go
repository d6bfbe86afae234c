package glstender

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecompute_DerivedFields(t *testing.T) {
	s := NewSyncer(nil, nil)

	rec := map[string]any{
		"tender_ref":        "GLS-2025-01",
		"site_area_sqm":     10000.0,
		"gross_plot_ratio":  3.5,
		"awarded_price_sgd": 700000000.0,
	}
	s.Recompute(rec)

	assert.Equal(t, 35000.0, rec["max_gfa_sqm"])
	assert.Equal(t, 20000.0, rec["psm_gfa_sgd"])
	assert.Equal(t, "awarded", rec["status"])
}

func TestRecompute_UnawardedDefaultsToLaunched(t *testing.T) {
	s := NewSyncer(nil, nil)

	rec := map[string]any{"tender_ref": "GLS-2025-02", "site_area_sqm": 5000.0}
	s.Recompute(rec)

	assert.Equal(t, "launched", rec["status"])
	assert.NotContains(t, rec, "psm_gfa_sgd")
}

func TestRecompute_KeepsExplicitGFA(t *testing.T) {
	s := NewSyncer(nil, nil)

	rec := map[string]any{
		"tender_ref":       "GLS-2025-03",
		"site_area_sqm":    10000.0,
		"gross_plot_ratio": 3.5,
		"max_gfa_sqm":      30000.0,
	}
	s.Recompute(rec)
	assert.Equal(t, 30000.0, rec["max_gfa_sqm"])
}

func TestRowFromRecord(t *testing.T) {
	row, err := rowFromRecord(map[string]any{
		"tender_ref":        "GLS-2025-01",
		"site_name":         "Lentor Gardens",
		"award_date":        "2025-03-14",
		"awarded_price_sgd": 486800000.0,
		"num_bids":          float64(4),
	})
	require.NoError(t, err)
	require.Len(t, row, len(columns))

	assert.Equal(t, "GLS-2025-01", row[0])
	assert.Equal(t, "Lentor Gardens", row[1])

	award, ok := row[10].(*time.Time)
	require.True(t, ok)
	assert.Equal(t, "2025-03-14", award.Format("2006-01-02"))

	// Absent numerics stay NULL, present ones are typed.
	assert.Nil(t, row[5])
	price := row[12].(*float64)
	assert.Equal(t, 486800000.0, *price)
	bids := row[14].(*int32)
	assert.Equal(t, int32(4), *bids)
}

func TestRowFromRecord_Invalid(t *testing.T) {
	_, err := rowFromRecord(map[string]any{"site_name": "no ref"})
	require.Error(t, err)

	_, err = rowFromRecord(map[string]any{"tender_ref": "x", "award_date": "14/03/2025"})
	require.Error(t, err)
}

func TestSyncer_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSyncer(mock, nil)

	anyArgs := make([]any, len(columns))
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`UPDATE market.gls_tenders SET`).
		WithArgs(anyArgs...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = s.Update(context.Background(), "GLS-2025-01", map[string]any{
		"tender_ref": "GLS-2025-01",
		"site_name":  "Lentor Gardens",
		"status":     "awarded",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncer_LoadExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSyncer(mock, nil)

	award := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	price := 486800000.0
	bids := int32(4)
	rows := pgxmock.NewRows([]string{
		"tender_ref", "site_name", "location", "region", "district",
		"site_area_sqm", "gross_plot_ratio", "max_gfa_sqm",
		"launch_date", "close_date", "award_date",
		"successful_tenderer", "awarded_price_sgd", "psm_gfa_sgd", "num_bids",
		"status", "latitude", "longitude",
	}).AddRow(
		"GLS-2025-01", "Lentor Gardens", "Lentor Gardens Road", "OCR", "D26",
		(*float64)(nil), (*float64)(nil), (*float64)(nil),
		(*time.Time)(nil), (*time.Time)(nil), &award,
		"GuocoLand", &price, (*float64)(nil), &bids,
		"awarded", (*float64)(nil), (*float64)(nil),
	)
	mock.ExpectQuery(`SELECT .+ FROM market.gls_tenders`).WillReturnRows(rows)

	existing, err := s.LoadExisting(context.Background())
	require.NoError(t, err)
	require.Contains(t, existing, "GLS-2025-01")

	rec := existing["GLS-2025-01"]
	assert.Equal(t, "D26", rec["district"])
	assert.Equal(t, "2025-03-14", rec["award_date"])
	assert.Equal(t, 486800000.0, rec["awarded_price_sgd"])
	assert.Equal(t, 4.0, rec["num_bids"])
	assert.NotContains(t, rec, "site_area_sqm")
}
