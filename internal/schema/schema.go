// Package schema declares the fields used for record comparison and computes
// per-field similarity vectors over them.
//
// A Schema is built once from configuration before any records are compared.
// Field order is significant: similarity vectors, classifier weights, and the
// persisted model all follow the declared order, and the Fingerprint ties a
// saved model to the exact field set it was trained against.
package schema

import (
	"fmt"
	"strings"

	"github.com/espin086/IntelliMatch/internal/types"
)

// Comparator selects how two values of a field are compared
type Comparator string

const (
	// ComparatorString scores textual similarity tolerant of minor edits
	ComparatorString Comparator = "string"
)

// IsValid checks if the comparator value is valid
func (c Comparator) IsValid() bool {
	switch c {
	case ComparatorString:
		return true
	}
	return false
}

// MissingSimilarity is the neutral score contributed by a comparison where
// either side lacks the field. It deliberately carries no signal: 0 would
// read as evidence against a match, 1 as evidence for one.
const MissingSimilarity = 0.5

// Field declares one comparable field
type Field struct {
	Name       string     `json:"name"`
	Comparator Comparator `json:"comparator"`

	// HasMissing marks a field whose absence carries no signal: a
	// comparison with a missing value scores the neutral MissingSimilarity.
	// When false, a missing value scores 0, counting absence as
	// disagreement.
	HasMissing bool `json:"has_missing"`
}

// Schema is an ordered set of field declarations
type Schema struct {
	fields []Field
}

// New builds a schema from field names using the default comparator for each.
// All fields tolerate missing values, matching how messy tabular data behaves.
func New(names []string) (*Schema, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, Field{
			Name:       name,
			Comparator: ComparatorString,
			HasMissing: true,
		})
	}
	return Define(fields)
}

// Define builds a schema from explicit field declarations
func Define(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, &types.SchemaError{Reason: "at least one field is required"}
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, &types.SchemaError{Reason: "field name cannot be empty"}
		}
		if seen[f.Name] {
			return nil, &types.SchemaError{Field: f.Name, Reason: "declared more than once"}
		}
		seen[f.Name] = true
		if !f.Comparator.IsValid() {
			return nil, &types.SchemaError{Field: f.Name, Reason: fmt.Sprintf("unknown comparator %q", f.Comparator)}
		}
	}
	s := &Schema{fields: make([]Field, len(fields))}
	copy(s.fields, fields)
	return s, nil
}

// Fields returns the declared fields in order
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the declared field names in order
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of declared fields, which is also the length of
// every similarity vector the schema produces
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fingerprint returns a canonical string form of the schema. Two schemas
// with the same fingerprint produce interchangeable similarity vectors;
// saved models embed it and refuse to load under a different one.
func (s *Schema) Fingerprint() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = fmt.Sprintf("%s:%s:%t", f.Name, f.Comparator, f.HasMissing)
	}
	return strings.Join(parts, ";")
}

// Check verifies the schema against loaded records. A declared field that is
// absent from every record is a configuration error, not messy data.
func (s *Schema) Check(records []*types.Record) error {
	for _, f := range s.fields {
		found := false
		for _, r := range records {
			if _, ok := r.Value(f.Name); ok {
				found = true
				break
			}
		}
		if !found {
			return &types.SchemaError{Field: f.Name, Reason: "not present in any record"}
		}
	}
	return nil
}

// Similarities computes the per-field similarity vector for two records in
// declared field order. Each component is in [0, 1]. Comparisons where
// either side lacks the field contribute MissingSimilarity for
// missing-tolerant fields and 0 otherwise.
func (s *Schema) Similarities(a, b *types.Record) []float64 {
	sims := make([]float64, len(s.fields))
	for i, f := range s.fields {
		va, oka := a.Value(f.Name)
		vb, okb := b.Value(f.Name)
		if !oka || !okb {
			if f.HasMissing {
				sims[i] = MissingSimilarity
			}
			continue
		}
		sims[i] = JaroWinkler(va, vb)
	}
	return sims
}
