package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteSource reads rows from a SQLite database
type SQLiteSource struct {
	path  string
	query string
}

// Table names are restricted to plain identifiers so they can be spliced
// into the query without quoting games. Arbitrary SQL goes through Query.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewSQLite creates a SQLite source. Either table or query must be set;
// query wins when both are.
func NewSQLite(path, table, query string) (*SQLiteSource, error) {
	if query == "" {
		if table == "" {
			return nil, fmt.Errorf("sqlite source requires a table or a query")
		}
		if !tableNamePattern.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q (use the query option for anything beyond a plain identifier)", table)
		}
		query = fmt.Sprintf("SELECT * FROM %s", table)
	}
	return &SQLiteSource{path: path, query: query}, nil
}

// Name identifies the source in error messages
func (s *SQLiteSource) Name() string {
	return s.path
}

// Read runs the query and materializes all rows. Column names become the
// header; values of any column type are rendered as strings, with NULL
// becoming the empty string so normalization treats it as missing.
func (s *SQLiteSource) Read(ctx context.Context) (*Table, error) {
	db, err := sql.Open("sqlite3", "file:"+s.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", s.path, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", s.path, err)
	}

	rows, err := db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query failed on %s: %w", s.path, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns from %s: %w", s.path, err)
	}

	var out [][]string
	vals := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", s.path, err)
		}
		row := make([]string, len(header))
		for i, v := range vals {
			row[i] = renderValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows from %s: %w", s.path, err)
	}

	return &Table{Header: header, Rows: out}, nil
}

// renderValue converts a scanned database value to its string form
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
