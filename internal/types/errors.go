package types

import "fmt"

// DataFormatError reports malformed or internally inconsistent input data:
// a missing identifier column, a duplicate identifier, or a row that does not
// line up with the header. Row is 1-based and counts the header; 0 means the
// problem is not tied to a specific row.
type DataFormatError struct {
	Path   string
	Row    int
	Reason string
}

func (e *DataFormatError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("invalid data in %s at row %d: %s", e.Path, e.Row, e.Reason)
	}
	return fmt.Sprintf("invalid data in %s: %s", e.Path, e.Reason)
}

// SchemaError reports a field configuration problem: a declared field that no
// record carries, a duplicate declaration, or an empty field set.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("schema: %s", e.Reason)
}

// InsufficientDataError reports that training was attempted without at least
// one match label and one distinct label. Skipped pairs do not count.
type InsufficientDataError struct {
	Matches   int
	Distincts int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("training requires at least one match and one distinct label (got %d match, %d distinct)",
		e.Matches, e.Distincts)
}

// ModelCompatibilityError reports that a saved model was trained against a
// different field schema than the current configuration. The run must fail
// rather than silently retrain or misapply the model.
type ModelCompatibilityError struct {
	SavedSchema   string
	CurrentSchema string
}

func (e *ModelCompatibilityError) Error() string {
	return fmt.Sprintf("saved model is incompatible with the current field schema (saved: %s, current: %s)",
		e.SavedSchema, e.CurrentSchema)
}

// PersistenceIOError reports a failure reading or writing a model or
// training-history artifact. Op names the operation that failed.
type PersistenceIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceIOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause
func (e *PersistenceIOError) Unwrap() error {
	return e.Err
}
