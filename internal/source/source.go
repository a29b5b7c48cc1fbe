// Package source reads tabular input data. The set of backends is closed:
// adding one means adding a Kind constant and a case to Open, deliberately.
package source

import (
	"context"
	"fmt"
)

// Kind selects the input backend
type Kind string

const (
	// KindCSV reads a delimited file with a header row
	KindCSV Kind = "csv"

	// KindSQLite reads a table or query from a SQLite database
	KindSQLite Kind = "sqlite"
)

// IsValid checks if the kind value is valid
func (k Kind) IsValid() bool {
	switch k {
	case KindCSV, KindSQLite:
		return true
	}
	return false
}

// Table is the uniform shape every backend yields: a header and rows
// aligned to it. Values are raw; normalization happens downstream.
type Table struct {
	Header []string
	Rows   [][]string
}

// Source reads tabular data from one backend
type Source interface {
	// Read loads the full table into memory
	Read(ctx context.Context) (*Table, error)

	// Name identifies the source in error messages
	Name() string
}

// Config holds source selection and backend parameters
type Config struct {
	Kind  Kind
	Path  string
	Table string // sqlite only: table to read
	Query string // sqlite only: overrides Table when set
}

// Open returns the source for the configured kind
func Open(cfg Config) (Source, error) {
	switch cfg.Kind {
	case KindCSV:
		if cfg.Path == "" {
			return nil, fmt.Errorf("csv source requires a path")
		}
		return NewCSV(cfg.Path), nil

	case KindSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite source requires a database path")
		}
		return NewSQLite(cfg.Path, cfg.Table, cfg.Query)

	default:
		return nil, fmt.Errorf("unsupported source kind: %s", cfg.Kind)
	}
}
