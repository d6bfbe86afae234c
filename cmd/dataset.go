package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/bulkdiff"
	"github.com/propsight/market-cli/internal/fetcher"
)

// blockingFields lists, per entity type, the fields whose conflicts refuse
// a whole batch unless forced. Everything else conflicts as a warning.
var blockingFields = map[string]map[string]bool{
	"gls_tender": {
		"awarded_price_sgd":   true,
		"successful_tenderer": true,
	},
}

// loadRecords reads a tabular upload file into records, dispatching on the
// file extension.
func loadRecords(path string) ([]map[string]any, error) {
	var header []string
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "open %s", path)
		}
		defer f.Close()
		header, rows, err = fetcher.ReadCSV(f)
	case ".xlsx":
		header, rows, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	default:
		return nil, eris.Errorf("unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return fetcher.RecordsFromTable(header, rows), nil
}

// diffDataset diffs incoming records against the entity type's table using
// the authority matrix for conflict grading.
func diffDataset(ctx context.Context, syncer bulkdiff.Syncer, incoming []map[string]any) (*bulkdiff.Report, error) {
	rules, err := loadAuthorityTable()
	if err != nil {
		return nil, err
	}

	existing, err := syncer.LoadExisting(ctx)
	if err != nil {
		return nil, err
	}

	conflict := bulkdiff.AuthorityConflicts(rules, syncer.EntityType(), blockingFields[syncer.EntityType()])
	return bulkdiff.Diff(ctx, syncer.EntityType(), incoming, existing,
		syncer.KeyField(), syncer.CompareFields(), conflict)
}
