package types

import (
	"fmt"
	"time"
)

// Record represents one row of the input dataset after normalization.
// Field values are normalized text; a field that was empty or absent in the
// source is not present in the map at all (see Value).
type Record struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Value returns the normalized value for a field and whether it is present.
// A missing field is distinct from an empty string: empty source values are
// dropped during normalization, so ok is false for both.
func (r *Record) Value(field string) (string, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// Validate checks if the record has valid field values
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	for field, value := range r.Fields {
		if field == "" {
			return fmt.Errorf("record %s has an unnamed field", r.ID)
		}
		if value == "" {
			return fmt.Errorf("record %s field %s is empty (empty values must be dropped, not stored)", r.ID, field)
		}
	}
	return nil
}

// Pair is an unordered pair of record identifiers in canonical order:
// Left is always the lexicographically smaller identifier.
// Construct with NewPair so two pairs covering the same records compare equal.
type Pair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// NewPair builds a canonical Pair from two record identifiers
func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{Left: a, Right: b}
}

// Validate checks if the pair has valid field values
func (p Pair) Validate() error {
	if p.Left == "" || p.Right == "" {
		return fmt.Errorf("pair requires two record ids (got %q, %q)", p.Left, p.Right)
	}
	if p.Left == p.Right {
		return fmt.Errorf("pair cannot reference record %s twice", p.Left)
	}
	if p.Right < p.Left {
		return fmt.Errorf("pair not in canonical order (%q > %q): use NewPair", p.Left, p.Right)
	}
	return nil
}

// Verdict is a human judgment about one candidate pair
type Verdict string

const (
	// VerdictMatch means the two records refer to the same entity
	VerdictMatch Verdict = "match"

	// VerdictDistinct means the two records refer to different entities
	VerdictDistinct Verdict = "distinct"

	// VerdictSkip means the labeler was unsure. Skipped pairs are kept in the
	// training history for audit but contribute nothing to training.
	VerdictSkip Verdict = "skip"
)

// IsValid checks if the verdict value is valid
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictMatch, VerdictDistinct, VerdictSkip:
		return true
	}
	return false
}

// LabeledPair is a candidate pair plus the verdict a labeler assigned to it.
// Field values for both records are carried inline so the training history
// stays meaningful after the source data changes.
type LabeledPair struct {
	LeftID      string            `json:"left_id"`
	RightID     string            `json:"right_id"`
	LeftFields  map[string]string `json:"left_fields"`
	RightFields map[string]string `json:"right_fields"`
	Verdict     Verdict           `json:"verdict"`
	SessionID   string            `json:"session_id"`
	LabeledAt   time.Time         `json:"labeled_at"`
}

// Pair returns the canonical pair this label applies to
func (lp *LabeledPair) Pair() Pair {
	return NewPair(lp.LeftID, lp.RightID)
}

// Validate checks if the labeled pair has valid field values
func (lp *LabeledPair) Validate() error {
	if lp.LeftID == "" || lp.RightID == "" {
		return fmt.Errorf("labeled pair requires two record ids (got %q, %q)", lp.LeftID, lp.RightID)
	}
	if lp.LeftID == lp.RightID {
		return fmt.Errorf("labeled pair cannot reference record %s twice", lp.LeftID)
	}
	if !lp.Verdict.IsValid() {
		return fmt.Errorf("invalid verdict: %s", lp.Verdict)
	}
	if lp.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

// Membership records one record's place in a cluster together with the
// confidence of that placement. Confidence is the strongest qualifying
// pairwise score attaching the record to the rest of the cluster; singleton
// members carry the sentinel 1.0.
type Membership struct {
	RecordID   string  `json:"record_id"`
	Confidence float64 `json:"confidence"`
}

// Cluster is a group of records resolved to the same entity.
// Clusters are recomputed each run and never persisted.
type Cluster struct {
	ID      int          `json:"id"`
	Members []Membership `json:"members"`
}

// Validate checks if the cluster has valid field values
func (c *Cluster) Validate() error {
	if c.ID < 0 {
		return fmt.Errorf("cluster id cannot be negative (got %d)", c.ID)
	}
	if len(c.Members) == 0 {
		return fmt.Errorf("cluster %d has no members", c.ID)
	}
	seen := make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		if m.RecordID == "" {
			return fmt.Errorf("cluster %d has a member with no record id", c.ID)
		}
		if seen[m.RecordID] {
			return fmt.Errorf("cluster %d lists record %s twice", c.ID, m.RecordID)
		}
		seen[m.RecordID] = true
		if m.Confidence < 0.0 || m.Confidence > 1.0 {
			return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.4f for record %s)",
				m.Confidence, m.RecordID)
		}
	}
	return nil
}

// Size returns the number of members in the cluster
func (c *Cluster) Size() int {
	return len(c.Members)
}
