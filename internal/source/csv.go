package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/espin086/IntelliMatch/internal/types"
)

// CSVSource reads a comma-delimited file with a header row
type CSVSource struct {
	path string
}

// NewCSV creates a CSV source for the given file
func NewCSV(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name identifies the source in error messages
func (s *CSVSource) Name() string {
	return s.path
}

// Read loads the full file. Every row must have as many fields as the
// header; a ragged row is a DataFormatError naming the offending line.
func (s *CSVSource) Read(ctx context.Context) (*Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err == io.EOF {
		return nil, &types.DataFormatError{Path: s.path, Reason: "file is empty"}
	}
	if err != nil {
		return nil, s.wrapParseError(err)
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, s.wrapParseError(err)
		}
		rows = append(rows, row)
	}

	return &Table{Header: header, Rows: rows}, nil
}

// wrapParseError converts csv parse failures into the data-format taxonomy,
// preserving the line number the csv reader tracked
func (s *CSVSource) wrapParseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		reason := pe.Err.Error()
		if errors.Is(pe.Err, csv.ErrFieldCount) {
			reason = "row has a different number of fields than the header"
		}
		return &types.DataFormatError{Path: s.path, Row: pe.Line, Reason: reason}
	}
	return fmt.Errorf("failed to read %s: %w", s.path, err)
}
