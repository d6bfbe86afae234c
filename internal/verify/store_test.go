package verify

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_CreateCandidate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery(`INSERT INTO market.verification_candidates`).
		WithArgs("project", "lentoria", "total_units", pgxmock.AnyArg(), "database",
			pgxmock.AnyArg(), pgxmock.AnyArg(), 2, 3, "unverified", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("vc-1"))

	c := &Candidate{
		EntityType:          "project",
		EntityKey:           "lentoria",
		Field:               "total_units",
		CurrentValue:        1040.0,
		ValueOrigin:         OriginDatabase,
		VerifiedValue:       1040.0,
		AgreeingSourceCount: 2,
		TotalSourceCount:    3,
		VerificationStatus:  StatusUnverified,
	}
	id, err := store.CreateCandidate(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "vc-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCandidate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	rows := pgxmock.NewRows([]string{
		"id", "entity_type", "entity_key", "field", "current_value", "value_origin",
		"verified_value", "sources", "agreeing_source_count", "total_source_count",
		"verification_status", "mismatches", "review_status", "resolution", "created_at", "resolved_at",
	}).AddRow(
		"vc-1", "project", "lentoria", "total_units", []byte(`1040`), "database",
		[]byte(`1050`), []byte(`[{"domain":"99.co","value":1050}]`), 3, 3,
		"mismatch", []byte(`["srx.com.sg reports 1040"]`), "open", (*string)(nil),
		time.Now(), (*time.Time)(nil),
	)
	mock.ExpectQuery(`SELECT .+ FROM market.verification_candidates WHERE id`).
		WithArgs("vc-1").
		WillReturnRows(rows)

	c, err := store.GetCandidate(context.Background(), "vc-1")
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, 1040.0, c.CurrentValue)
	assert.Equal(t, 1050.0, c.VerifiedValue)
	assert.Equal(t, StatusMismatch, c.VerificationStatus)
	require.Len(t, c.Sources, 1)
	assert.Equal(t, "99.co", c.Sources[0].Domain)
	assert.False(t, c.CanAutoConfirm())
}

func TestPostgresStore_AutoConfirm_NotOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectExec(`UPDATE market.verification_candidates`).
		WithArgs("vc-1", "auto_confirmed", "keep_current").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.AutoConfirm(context.Background(), "vc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not open")
}
