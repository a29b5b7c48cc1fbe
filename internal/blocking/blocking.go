// Package blocking proposes candidate record pairs without comparing all
// n²/2 combinations.
//
// Records are partitioned into overlapping blocks keyed by coarse predicates
// over their normalized field values (shared tokens and shared prefixes).
// Only pairs that land in at least one common block become candidates; most
// obvious non-matches never share a block and are never compared. Blocks
// above a size cap are skipped as non-discriminative, trading recall for
// throughput.
package blocking

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/espin086/IntelliMatch/internal/record"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/types"
)

// Mode selects which candidate stream the sampler produces
type Mode string

const (
	// ModeWithinBlocks emits every pair sharing at least one block, in
	// canonical ascending order. Used by the clustering pass.
	ModeWithinBlocks Mode = "within_blocks"

	// ModeUncertainty emits the same candidates ranked most-uncertain-first
	// under the current classifier (probability nearest 0.5). Used during
	// active learning so each label buys maximal information.
	ModeUncertainty Mode = "uncertainty"
)

// IsValid checks if the mode value is valid
func (m Mode) IsValid() bool {
	switch m {
	case ModeWithinBlocks, ModeUncertainty:
		return true
	}
	return false
}

// Scorer is the slice of the classifier the sampler needs for uncertainty
// ranking
type Scorer interface {
	// Predict maps a per-field similarity vector to a match probability
	Predict(similarities []float64) float64
}

// CandidatePair is a proposed pair together with its per-field similarity
// vector in schema field order
type CandidatePair struct {
	Pair         types.Pair
	Similarities []float64
}

// Config holds blocking parameters
type Config struct {
	// PrefixLength is how many leading runes of each field value form the
	// prefix predicate. Shorter prefixes build bigger, less precise blocks.
	// Default: 4
	PrefixLength int

	// MaxBlockSize skips blocks with more members than this; a key shared
	// by that many records separates nothing and only inflates the
	// candidate set. Default: 100
	MaxBlockSize int

	// Workers is the parallelism of the similarity computation in
	// ModeWithinBlocks. Default: GOMAXPROCS
	Workers int
}

// DefaultConfig returns the default blocking configuration
func DefaultConfig() Config {
	return Config{
		PrefixLength: 4,
		MaxBlockSize: 100,
		Workers:      runtime.GOMAXPROCS(0),
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.PrefixLength <= 0 {
		return fmt.Errorf("prefix_length must be positive (got %d)", c.PrefixLength)
	}
	if c.MaxBlockSize < 2 {
		return fmt.Errorf("max_block_size must be at least 2 (got %d)", c.MaxBlockSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	return nil
}

// Sampler proposes candidate pairs from block co-membership.
// Every call to Pairs computes a fresh result; no iteration state is
// shared across calls.
type Sampler struct {
	store *record.Store
	sch   *schema.Schema
	cfg   Config
}

// NewSampler creates a sampler over the given store and schema
func NewSampler(store *record.Store, sch *schema.Schema, cfg Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid blocking config: %w", err)
	}
	return &Sampler{store: store, sch: sch, cfg: cfg}, nil
}

// Pairs returns the candidate pairs for a mode. The result is finite and
// deterministic for a fixed store, schema, and scorer.
func (s *Sampler) Pairs(ctx context.Context, mode Mode, scorer Scorer) ([]CandidatePair, error) {
	switch mode {
	case ModeWithinBlocks:
		return s.withSimilarities(ctx, s.candidatePairs())

	case ModeUncertainty:
		pairs := s.candidatePairs()
		cands := make([]CandidatePair, len(pairs))
		for i, p := range pairs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cands[i] = s.candidate(p)
		}
		if scorer != nil {
			rankByUncertainty(cands, scorer)
		}
		return cands, nil

	default:
		return nil, fmt.Errorf("unsupported sampling mode: %s", mode)
	}
}

// candidatePairs builds the block index and emits every deduplicated pair
// sharing at least one block, in canonical ascending order
func (s *Sampler) candidatePairs() []types.Pair {
	index := s.buildIndex()

	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seen := make(map[types.Pair]struct{})
	var out []types.Pair
	for _, key := range keys {
		ids := index[key]
		if len(ids) < 2 || len(ids) > s.cfg.MaxBlockSize {
			continue
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				p := types.NewPair(ids[i], ids[j])
				if _, dup := seen[p]; dup {
					continue
				}
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Left != out[j].Left {
			return out[i].Left < out[j].Left
		}
		return out[i].Right < out[j].Right
	})
	return out
}

// buildIndex maps each block key to the ids of the records that carry it.
// Keys are deduplicated per record so a repeated token cannot pair a record
// with itself.
func (s *Sampler) buildIndex() map[string][]string {
	index := make(map[string][]string)
	for _, rec := range s.store.Records() {
		keys := make(map[string]struct{})
		for _, field := range s.sch.Names() {
			value, ok := rec.Value(field)
			if !ok {
				continue
			}
			for _, token := range strings.Fields(value) {
				keys["t:"+field+":"+token] = struct{}{}
			}
			keys["p:"+field+":"+runePrefix(value, s.cfg.PrefixLength)] = struct{}{}
		}
		for key := range keys {
			index[key] = append(index[key], rec.ID)
		}
	}
	return index
}

// withSimilarities computes the similarity vector for every pair, fanned
// out across workers. Workers write disjoint index ranges of the result,
// so no locking is needed.
func (s *Sampler) withSimilarities(ctx context.Context, pairs []types.Pair) ([]CandidatePair, error) {
	out := make([]CandidatePair, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	chunk := (len(pairs) + s.cfg.Workers - 1) / s.cfg.Workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(pairs); start += chunk {
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = s.candidate(pairs[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// candidate attaches the similarity vector to one pair
func (s *Sampler) candidate(p types.Pair) CandidatePair {
	left, _ := s.store.Get(p.Left)
	right, _ := s.store.Get(p.Right)
	return CandidatePair{Pair: p, Similarities: s.sch.Similarities(left, right)}
}

// rankByUncertainty stable-sorts candidates by distance of their predicted
// probability from 0.5, closest first. Stability keeps the canonical pair
// order as the tie-break, so ranking is deterministic.
func rankByUncertainty(cands []CandidatePair, scorer Scorer) {
	dist := make([]float64, len(cands))
	for i, c := range cands {
		dist[i] = math.Abs(scorer.Predict(c.Similarities) - 0.5)
	}
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })

	ranked := make([]CandidatePair, len(cands))
	for i, j := range idx {
		ranked[i] = cands[j]
	}
	copy(cands, ranked)
}

// runePrefix returns the first n runes of s, or all of s when shorter
func runePrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
