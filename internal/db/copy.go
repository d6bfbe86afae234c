// Package db provides the pool contract, embedded migrations, and bulk
// write helpers shared by the stores.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultCopyBatchSize = 10000

// CopyInto bulk-loads rows into a schema-qualified table over the COPY
// protocol, in batches so a failure surfaces with the offending batch
// rather than after the whole load. batchSize 0 means the default.
func CopyInto(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = defaultCopyBatchSize
	}

	log := zap.L().With(
		zap.String("component", "db.copy"),
		zap.String("table", schema+"."+table),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := pool.CopyFrom(ctx, pgx.Identifier{schema, table}, columns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s.%s", schema, table)
		}
		total += n
		log.Debug("copy batch loaded", zap.Int64("rows", n))
	}
	return total, nil
}
