// Package classify fits and applies the pairwise match classifier.
//
// The model is a logistic regression over per-field similarity vectors with
// weights constrained to be non-negative. The constraint buys an invariant
// the rest of the pipeline leans on: raising any single field similarity can
// never lower the predicted match probability. Training runs a fixed number
// of projected gradient steps over a canonicalized example order, so the
// same labels and schema always produce bit-identical parameters.
package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/types"
)

// Model is a trained pairwise classifier. Fields are exported for
// serialization; treat a model as immutable once trained or loaded.
type Model struct {
	Weights   []float64 // one per schema field, each >= 0
	Intercept float64
}

// Predict maps a per-field similarity vector to a match probability in
// (0, 1). The vector must have one entry per weight, in schema field order.
func (m *Model) Predict(similarities []float64) float64 {
	return logistic(dot(m.Weights, similarities) + m.Intercept)
}

// Validate checks if the model has usable parameters
func (m *Model) Validate() error {
	if len(m.Weights) == 0 {
		return fmt.Errorf("model has no weights")
	}
	for i, w := range m.Weights {
		if w < 0 {
			return fmt.Errorf("weight %d is negative (%.6f): monotonicity requires non-negative weights", i, w)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight %d is not finite", i)
		}
	}
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return fmt.Errorf("intercept is not finite")
	}
	return nil
}

// Config holds training parameters
type Config struct {
	// LearningRate is the gradient step size. Similarities are bounded to
	// [0,1], so values up to ~2 stay stable. Default: 1.0
	LearningRate float64

	// Iterations is the fixed number of full-batch gradient steps. Fixed
	// rather than tolerance-driven so training is exactly reproducible.
	// Default: 2000
	Iterations int
}

// DefaultConfig returns the default training configuration
func DefaultConfig() Config {
	return Config{
		LearningRate: 1.0,
		Iterations:   2000,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive (got %v)", c.LearningRate)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive (got %d)", c.Iterations)
	}
	return nil
}

// example is one training row: a similarity vector and its target
type example struct {
	features []float64
	target   float64 // 1 for match, 0 for distinct
}

// Train fits a model from labeled pairs against the given schema.
//
// Labels are canonicalized first: for each unordered pair the latest verdict
// wins, skips are dropped, and the surviving examples are ordered by pair
// identifier. Canonicalization makes the result independent of labeling
// order while still honoring later-overrides-earlier. Fails with
// InsufficientDataError unless at least one match and one distinct label
// survive.
func Train(pairs []types.LabeledPair, sch *schema.Schema, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}

	effective := canonicalize(pairs)

	matches, distincts := 0, 0
	for _, lp := range effective {
		switch lp.Verdict {
		case types.VerdictMatch:
			matches++
		case types.VerdictDistinct:
			distincts++
		}
	}
	if matches == 0 || distincts == 0 {
		return nil, &types.InsufficientDataError{Matches: matches, Distincts: distincts}
	}

	examples := make([]example, 0, matches+distincts)
	for _, lp := range effective {
		if lp.Verdict == types.VerdictSkip {
			continue
		}
		left := &types.Record{ID: lp.LeftID, Fields: lp.LeftFields}
		right := &types.Record{ID: lp.RightID, Fields: lp.RightFields}
		target := 0.0
		if lp.Verdict == types.VerdictMatch {
			target = 1.0
		}
		examples = append(examples, example{
			features: sch.Similarities(left, right),
			target:   target,
		})
	}

	return fit(examples, sch.Len(), cfg), nil
}

// canonicalize applies last-verdict-wins per unordered pair and returns the
// survivors sorted by pair identifier
func canonicalize(pairs []types.LabeledPair) []types.LabeledPair {
	latest := make(map[types.Pair]types.LabeledPair)
	for _, lp := range pairs {
		latest[lp.Pair()] = lp
	}

	keys := make([]types.Pair, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Left != keys[j].Left {
			return keys[i].Left < keys[j].Left
		}
		return keys[i].Right < keys[j].Right
	})

	out := make([]types.LabeledPair, 0, len(keys))
	for _, k := range keys {
		out = append(out, latest[k])
	}
	return out
}

// fit runs projected full-batch gradient descent: after every step each
// weight is clamped to zero from below
func fit(examples []example, features int, cfg Config) *Model {
	weights := make([]float64, features)
	intercept := 0.0
	n := float64(len(examples))

	gradW := make([]float64, features)
	for iter := 0; iter < cfg.Iterations; iter++ {
		for j := range gradW {
			gradW[j] = 0
		}
		gradB := 0.0

		for _, ex := range examples {
			p := logistic(dot(weights, ex.features) + intercept)
			diff := p - ex.target
			for j, x := range ex.features {
				gradW[j] += diff * x
			}
			gradB += diff
		}

		for j := range weights {
			weights[j] -= cfg.LearningRate * gradW[j] / n
			if weights[j] < 0 {
				weights[j] = 0
			}
		}
		intercept -= cfg.LearningRate * gradB / n
	}

	return &Model{Weights: weights, Intercept: intercept}
}

// dot computes the inner product of the weight and feature vectors
func dot(weights, features []float64) float64 {
	var sum float64
	for i, w := range weights {
		sum += w * features[i]
	}
	return sum
}

// logistic squashes a raw score into (0, 1)
func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
