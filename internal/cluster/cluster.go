// Package cluster turns pairwise match scores into entity groups.
//
// The engine scores every within-blocks candidate pair with the trained
// model, keeps the edges at or above the confidence threshold, and takes
// the transitive closure: if A matches B and B matches C, all three land
// in one cluster even when A and C were never compared. Records with no
// qualifying edge become singleton clusters.
package cluster

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/espin086/IntelliMatch/internal/blocking"
	"github.com/espin086/IntelliMatch/internal/classify"
	"github.com/espin086/IntelliMatch/internal/record"
	"github.com/espin086/IntelliMatch/internal/types"
)

// SingletonConfidence is assigned to records that match nothing. A record
// alone in its cluster is trivially certain to belong there.
const SingletonConfidence = 1.0

// Config holds clustering parameters
type Config struct {
	// Threshold is the minimum predicted match probability for a pair to
	// link its records. Default: 0.5
	Threshold float64

	// Workers sets how many goroutines score candidate pairs.
	// Default: GOMAXPROCS
	Workers int
}

// DefaultConfig returns the default clustering configuration
func DefaultConfig() Config {
	return Config{
		Threshold: 0.5,
		Workers:   runtime.GOMAXPROCS(0),
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0.0, 1.0) (got %.2f)", c.Threshold)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	return nil
}

// Engine clusters a record store using a trained model
type Engine struct {
	store   *record.Store
	sampler *blocking.Sampler
	model   *classify.Model
	cfg     Config
}

// NewEngine creates a clustering engine
func NewEngine(store *record.Store, sampler *blocking.Sampler, model *classify.Model, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}
	return &Engine{store: store, sampler: sampler, model: model, cfg: cfg}, nil
}

// Clusters partitions every record in the store into entity groups. Each
// record appears in exactly one cluster. A member's confidence is the
// score of its strongest qualifying edge; singletons get
// SingletonConfidence. Cluster ids are assigned in order of each
// cluster's smallest member id, so output is deterministic for a given
// store and model.
func (e *Engine) Clusters(ctx context.Context) ([]types.Cluster, error) {
	cands, err := e.sampler.Pairs(ctx, blocking.ModeWithinBlocks, nil)
	if err != nil {
		return nil, fmt.Errorf("candidate generation failed: %w", err)
	}

	scores, err := e.score(ctx, cands)
	if err != nil {
		return nil, fmt.Errorf("scoring failed: %w", err)
	}

	records := e.store.Records()
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	uf := newUnionFind(ids)
	confidence := make(map[string]float64)
	for i, c := range cands {
		if scores[i] < e.cfg.Threshold {
			continue
		}
		uf.union(c.Pair.Left, c.Pair.Right)
		if scores[i] > confidence[c.Pair.Left] {
			confidence[c.Pair.Left] = scores[i]
		}
		if scores[i] > confidence[c.Pair.Right] {
			confidence[c.Pair.Right] = scores[i]
		}
	}

	groups := make(map[string][]string)
	for _, id := range ids {
		root := uf.find(id)
		groups[root] = append(groups[root], id)
	}

	roots := make([]string, 0, len(groups))
	for root, members := range groups {
		sort.Strings(members)
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		return groups[roots[i]][0] < groups[roots[j]][0]
	})

	clusters := make([]types.Cluster, 0, len(roots))
	for i, root := range roots {
		members := groups[root]
		cluster := types.Cluster{ID: i, Members: make([]types.Membership, 0, len(members))}
		for _, id := range members {
			conf := confidence[id]
			if len(members) == 1 {
				conf = SingletonConfidence
			}
			cluster.Members = append(cluster.Members, types.Membership{RecordID: id, Confidence: conf})
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// score predicts a match probability for every candidate, fanned out
// across workers. Workers write disjoint index ranges of the result.
func (e *Engine) score(ctx context.Context, cands []blocking.CandidatePair) ([]float64, error) {
	scores := make([]float64, len(cands))
	if len(cands) == 0 {
		return scores, nil
	}

	chunk := (len(cands) + e.cfg.Workers - 1) / e.cfg.Workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(cands); start += chunk {
		end := start + chunk
		if end > len(cands) {
			end = len(cands)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				scores[i] = e.model.Predict(cands[i].Similarities)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// unionFind tracks connected components over record ids
type unionFind struct {
	parent map[string]string
}

func newUnionFind(ids []string) *unionFind {
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	return &unionFind{parent: parent}
}

// find returns the component root, compressing the path behind it
func (u *unionFind) find(id string) string {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		u.parent[id], id = root, u.parent[id]
	}
	return root
}

// union merges the components containing a and b
func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
