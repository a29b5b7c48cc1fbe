// Package output emits the resolution result as a delimited file, one row
// per record with its cluster assignment and confidence.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/espin086/IntelliMatch/internal/types"
)

// header names the three result columns
var header = []string{"id", "cluster_id", "confidence_score"}

// Write emits one row per cluster membership, clusters in id order,
// members in the order the engine produced them. Parent directories are
// created as needed.
//
// Writing is all-or-nothing: rows are staged to a temp file next to path
// and renamed into place only after the final flush succeeds. A failed run
// leaves no partial file at path.
func Write(path string, clusters []types.Cluster) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "create", Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &types.PersistenceIOError{Path: path, Op: "create", Err: err}
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name()) // gone already if the rename happened
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "write", Err: err}
	}
	for _, c := range clusters {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("refusing to emit invalid cluster %d: %w", c.ID, err)
		}
		for _, m := range c.Members {
			row := []string{
				m.RecordID,
				strconv.Itoa(c.ID),
				strconv.FormatFloat(m.Confidence, 'f', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return &types.PersistenceIOError{Path: path, Op: "write", Err: err}
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "write", Err: err}
	}

	if err := tmp.Close(); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "rename", Err: err}
	}
	return nil
}
