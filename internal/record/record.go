// Package record loads input rows into an immutable, identifier-keyed store
// of normalized records.
package record

import (
	"context"
	"fmt"
	"strings"

	"github.com/espin086/IntelliMatch/internal/source"
	"github.com/espin086/IntelliMatch/internal/types"
)

// Store holds all loaded records. Records keeps source order; lookups by
// identifier go through the index. The store is read-only after Load.
type Store struct {
	records []*types.Record
	byID    map[string]*types.Record
}

// Load reads every row from the source and normalizes it into the store.
//
// The identifier column must exist in the header and every row must carry a
// unique, non-blank identifier; violations are DataFormatErrors naming the
// row (1-based, counting the header). Identifiers are kept verbatim; all
// other values go through Normalize, and values that normalize to nothing
// are dropped so downstream comparison sees them as missing.
func Load(ctx context.Context, src source.Source, idColumn string) (*Store, error) {
	table, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}

	idIdx := -1
	for i, col := range table.Header {
		if col == idColumn {
			idIdx = i
			break
		}
	}
	if idIdx == -1 {
		return nil, &types.DataFormatError{
			Path:   src.Name(),
			Reason: fmt.Sprintf("id column %q not found in header %v", idColumn, table.Header),
		}
	}

	s := &Store{
		records: make([]*types.Record, 0, len(table.Rows)),
		byID:    make(map[string]*types.Record, len(table.Rows)),
	}

	for i, row := range table.Rows {
		rowNum := i + 2 // 1-based, header is row 1

		id := row[idIdx]
		if strings.TrimSpace(id) == "" {
			return nil, &types.DataFormatError{
				Path:   src.Name(),
				Row:    rowNum,
				Reason: "blank identifier",
			}
		}
		if _, exists := s.byID[id]; exists {
			return nil, &types.DataFormatError{
				Path:   src.Name(),
				Row:    rowNum,
				Reason: fmt.Sprintf("duplicate identifier %q", id),
			}
		}

		fields := make(map[string]string, len(table.Header)-1)
		for j, col := range table.Header {
			if j == idIdx {
				continue
			}
			if v := Normalize(row[j]); v != "" {
				fields[col] = v
			}
		}

		rec := &types.Record{ID: id, Fields: fields}
		s.records = append(s.records, rec)
		s.byID[id] = rec
	}

	return s, nil
}

// Records returns all records in source order
func (s *Store) Records() []*types.Record {
	return s.records
}

// Get returns the record with the given identifier
func (s *Store) Get(id string) (*types.Record, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Len returns the number of records in the store
func (s *Store) Len() int {
	return len(s.records)
}
