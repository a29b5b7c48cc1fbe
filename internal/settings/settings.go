// Package settings persists what a resolution run learns. Two artifacts
// live under the settings directory: the trained model (a gob blob stamped
// with the schema fingerprint it was trained against) and the labeling
// history (JSONL, append-only). A compatible saved model lets later runs
// skip the interactive session entirely; the history seeds sessions that
// do run.
package settings

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/espin086/IntelliMatch/internal/classify"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/types"
)

// modelFormatVersion guards the gob layout. Bump when modelBlob changes
// shape.
const modelFormatVersion = 1

// modelBlob is the on-disk model layout
type modelBlob struct {
	Version     int
	Fingerprint string
	Fields      []schema.Field
	Weights     []float64
	Intercept   float64
}

// SaveModel writes the trained model to path, stamped with the schema it
// was trained against. Parent directories are created as needed.
func SaveModel(path string, m *classify.Model, sch *schema.Schema) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "create", Err: err}
	}

	file, err := os.Create(path)
	if err != nil {
		return &types.PersistenceIOError{Path: path, Op: "create", Err: err}
	}
	defer file.Close()

	blob := modelBlob{
		Version:     modelFormatVersion,
		Fingerprint: sch.Fingerprint(),
		Fields:      sch.Fields(),
		Weights:     m.Weights,
		Intercept:   m.Intercept,
	}
	if err := gob.NewEncoder(file).Encode(blob); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "encode", Err: err}
	}
	return nil
}

// LoadModel reads a previously saved model and checks it against the
// current schema. A missing file is a clean miss (nil, nil). A model saved
// under a different schema fingerprint returns ModelCompatibilityError;
// resolution must not silently retrain or limp along with a stale model.
func LoadModel(path string, sch *schema.Schema) (*classify.Model, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &types.PersistenceIOError{Path: path, Op: "open", Err: err}
	}
	defer file.Close()

	var blob modelBlob
	if err := gob.NewDecoder(file).Decode(&blob); err != nil {
		return nil, &types.PersistenceIOError{Path: path, Op: "decode", Err: err}
	}
	if blob.Version != modelFormatVersion {
		return nil, &types.PersistenceIOError{
			Path: path,
			Op:   "decode",
			Err:  fmt.Errorf("unsupported model format version %d", blob.Version),
		}
	}

	if blob.Fingerprint != sch.Fingerprint() {
		return nil, &types.ModelCompatibilityError{
			SavedSchema:   blob.Fingerprint,
			CurrentSchema: sch.Fingerprint(),
		}
	}
	if len(blob.Weights) != sch.Len() {
		return nil, &types.PersistenceIOError{
			Path: path,
			Op:   "decode",
			Err:  fmt.Errorf("model has %d weights for %d schema fields", len(blob.Weights), sch.Len()),
		}
	}

	model := &classify.Model{Weights: blob.Weights, Intercept: blob.Intercept}
	if err := model.Validate(); err != nil {
		return nil, &types.PersistenceIOError{Path: path, Op: "decode", Err: err}
	}
	return model, nil
}

// AppendHistory adds labels to the history file, one JSON object per line.
// The file is append-only, so every session's verdicts survive, including
// sessions that aborted partway.
func AppendHistory(path string, labels []types.LabeledPair) error {
	if len(labels) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &types.PersistenceIOError{Path: path, Op: "append", Err: err}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &types.PersistenceIOError{Path: path, Op: "append", Err: err}
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, lp := range labels {
		if err := enc.Encode(lp); err != nil {
			return &types.PersistenceIOError{Path: path, Op: "append", Err: err}
		}
	}
	return nil
}

// LoadHistory reads every label ever recorded, in the order it was
// written. A missing file is a clean miss (nil, nil). Order matters to
// callers: when one pair was labeled more than once, the later verdict
// wins.
func LoadHistory(path string) ([]types.LabeledPair, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &types.PersistenceIOError{Path: path, Op: "open", Err: err}
	}
	defer file.Close()

	var labels []types.LabeledPair
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		var lp types.LabeledPair
		if err := json.Unmarshal([]byte(text), &lp); err != nil {
			return nil, &types.PersistenceIOError{
				Path: path,
				Op:   "decode",
				Err:  fmt.Errorf("line %d: %w", line, err),
			}
		}
		labels = append(labels, lp)
	}
	if err := scanner.Err(); err != nil {
		return nil, &types.PersistenceIOError{Path: path, Op: "read", Err: err}
	}
	return labels, nil
}
