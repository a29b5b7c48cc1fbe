// Package active drives the human-in-the-loop labeling session.
//
// A Session is an explicit state machine: it asks the sampler for the most
// uncertain candidate pair under the current model, presents it to an
// injected Oracle, records the verdict, retrains, and repeats. Keeping the
// oracle behind an interface means the same loop runs against a console in
// production and a scripted fixture in tests.
//
// State flow:
//
//	AwaitingLabel -> Labeling     (a candidate pair is presented)
//	Labeling      -> AwaitingLabel (verdict recorded, model refreshed)
//	Labeling      -> Converged    (oracle finished, or nothing uncertain left)
//	AwaitingLabel -> Converged    (budget exhausted, or no candidates)
//	any           -> Aborted      (oracle abort or context cancellation)
//
// Labeling is strictly sequential: each verdict updates the model before the
// next pair is chosen, so no two pairs are ever in flight at once.
package active

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/espin086/IntelliMatch/internal/blocking"
	"github.com/espin086/IntelliMatch/internal/classify"
	"github.com/espin086/IntelliMatch/internal/record"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/types"
)

// State is the labeling session's position in its lifecycle
type State string

const (
	StateAwaitingLabel State = "awaiting_label"
	StateLabeling      State = "labeling"
	StateConverged     State = "converged"
	StateAborted       State = "aborted"
)

// IsValid checks if the state value is valid
func (s State) IsValid() bool {
	switch s {
	case StateAwaitingLabel, StateLabeling, StateConverged, StateAborted:
		return true
	}
	return false
}

// IsTerminal reports whether the session can make no further transitions
func (s State) IsTerminal() bool {
	return s == StateConverged || s == StateAborted
}

// Response is an oracle's answer for one presented pair
type Response string

const (
	// ResponseMatch labels the pair as the same entity
	ResponseMatch Response = "match"

	// ResponseDistinct labels the pair as different entities
	ResponseDistinct Response = "distinct"

	// ResponseSkip records that the labeler was unsure
	ResponseSkip Response = "skip"

	// ResponseFinish ends the session, keeping all labels
	ResponseFinish Response = "finish"

	// ResponseAbort ends the session early; labels collected so far are
	// still preserved by the caller
	ResponseAbort Response = "abort"
)

// IsValid checks if the response value is valid
func (r Response) IsValid() bool {
	switch r {
	case ResponseMatch, ResponseDistinct, ResponseSkip, ResponseFinish, ResponseAbort:
		return true
	}
	return false
}

// Oracle supplies verdicts for presented pairs. Implementations may block
// indefinitely; cancellation arrives through the context.
type Oracle interface {
	Judge(ctx context.Context, left, right *types.Record) (Response, error)
}

// ErrAborted is returned by Run when the oracle aborts the session.
// Labels collected before the abort are returned alongside it.
var ErrAborted = errors.New("labeling session aborted")

// Config holds labeling session parameters
type Config struct {
	// LabelBudget caps how many verdicts (including skips) one session
	// collects before converging. Default: 100
	LabelBudget int

	// UncertaintyFloor ends the session once no unlabeled candidate's
	// uncertainty exceeds it. Uncertainty is 0.5 minus the distance of the
	// predicted probability from 0.5, so 0 means certain and 0.5 means the
	// model is guessing. Default: 0.05
	UncertaintyFloor float64

	// Training configures the incremental retrain after each verdict
	Training classify.Config
}

// DefaultConfig returns the default session configuration
func DefaultConfig() Config {
	return Config{
		LabelBudget:      100,
		UncertaintyFloor: 0.05,
		Training:         classify.DefaultConfig(),
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.LabelBudget <= 0 {
		return fmt.Errorf("label_budget must be positive (got %d)", c.LabelBudget)
	}
	if c.UncertaintyFloor < 0 || c.UncertaintyFloor >= 0.5 {
		return fmt.Errorf("uncertainty_floor must be in [0.0, 0.5) (got %.2f)", c.UncertaintyFloor)
	}
	if err := c.Training.Validate(); err != nil {
		return err
	}
	return nil
}

// Session is one labeling run. Create with NewSession, drive with Run.
// Sessions are single-use; Run may be called once.
type Session struct {
	store   *record.Store
	sch     *schema.Schema
	sampler *blocking.Sampler
	oracle  Oracle
	cfg     Config

	id     string
	state  State
	labels []types.LabeledPair
	model  *classify.Model
}

// NewSession creates a labeling session with a fresh session id
func NewSession(store *record.Store, sch *schema.Schema, sampler *blocking.Sampler, oracle Oracle, cfg Config) (*Session, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	return &Session{
		store:   store,
		sch:     sch,
		sampler: sampler,
		oracle:  oracle,
		cfg:     cfg,
		id:      uuid.New().String(),
		state:   StateAwaitingLabel,
	}, nil
}

// ID returns the session identifier stamped onto every collected label
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current state
func (s *Session) State() State {
	return s.state
}

// Labels returns the verdicts collected so far. Valid at any point,
// including after an abort.
func (s *Session) Labels() []types.LabeledPair {
	return s.labels
}

// Model returns the classifier fitted from the seed plus this session's
// labels, or nil if the labels seen so far cannot train one
func (s *Session) Model() *classify.Model {
	return s.model
}

// Run drives the session to a terminal state and returns the labels it
// collected. seed labels (from a prior session's history) inform the model
// and are never re-presented, but are not included in the return value.
//
// On abort the collected labels are returned together with ErrAborted so
// the caller can persist them; they are never discarded.
func (s *Session) Run(ctx context.Context, seed []types.LabeledPair) ([]types.LabeledPair, error) {
	if s.state != StateAwaitingLabel {
		return nil, fmt.Errorf("session already ran (state %s)", s.state)
	}

	done := make(map[types.Pair]bool, len(seed))
	for _, lp := range seed {
		done[lp.Pair()] = true
	}

	// A prior history alone may already train a usable model
	s.refreshModel(seed)

	for {
		if err := ctx.Err(); err != nil {
			s.mustTransition(StateAborted)
			return s.labels, err
		}
		if len(s.labels) >= s.cfg.LabelBudget {
			s.mustTransition(StateConverged)
			return s.labels, nil
		}

		next, ok, err := s.nextUncertain(ctx, done)
		if err != nil {
			s.mustTransition(StateAborted)
			return s.labels, err
		}
		if !ok {
			s.mustTransition(StateConverged)
			return s.labels, nil
		}

		s.mustTransition(StateLabeling)
		resp, err := s.ask(ctx, next)
		if err != nil {
			s.mustTransition(StateAborted)
			return s.labels, err
		}

		switch resp {
		case ResponseMatch, ResponseDistinct, ResponseSkip:
			s.record(next, resp)
			done[next.Pair] = true
			if resp != ResponseSkip {
				s.refreshModel(seed)
			}
			s.mustTransition(StateAwaitingLabel)

		case ResponseFinish:
			s.mustTransition(StateConverged)
			return s.labels, nil

		case ResponseAbort:
			s.mustTransition(StateAborted)
			return s.labels, ErrAborted
		}
	}
}

// nextUncertain returns the most informative unlabeled candidate, or
// ok=false when the session should converge: no candidates remain, or the
// model is already confident about all of them
func (s *Session) nextUncertain(ctx context.Context, done map[types.Pair]bool) (blocking.CandidatePair, bool, error) {
	var scorer blocking.Scorer
	if s.model != nil {
		scorer = s.model
	}
	cands, err := s.sampler.Pairs(ctx, blocking.ModeUncertainty, scorer)
	if err != nil {
		return blocking.CandidatePair{}, false, err
	}

	for _, c := range cands {
		if done[c.Pair] {
			continue
		}
		if s.model != nil && uncertainty(s.model.Predict(c.Similarities)) <= s.cfg.UncertaintyFloor {
			// Candidates are ranked most-uncertain-first, so the first
			// unlabeled one already being below the floor means they all are
			return blocking.CandidatePair{}, false, nil
		}
		return c, true, nil
	}
	return blocking.CandidatePair{}, false, nil
}

// ask presents a pair and re-prompts until the oracle produces a response
// in the contract. An out-of-contract response is never coerced to a
// verdict; the pair is simply presented again.
func (s *Session) ask(ctx context.Context, c blocking.CandidatePair) (Response, error) {
	left, _ := s.store.Get(c.Pair.Left)
	right, _ := s.store.Get(c.Pair.Right)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := s.oracle.Judge(ctx, left, right)
		if err != nil {
			return "", err
		}
		if resp.IsValid() {
			return resp, nil
		}
	}
}

// record appends one verdict to the session's label list
func (s *Session) record(c blocking.CandidatePair, resp Response) {
	left, _ := s.store.Get(c.Pair.Left)
	right, _ := s.store.Get(c.Pair.Right)

	verdict := types.VerdictSkip
	switch resp {
	case ResponseMatch:
		verdict = types.VerdictMatch
	case ResponseDistinct:
		verdict = types.VerdictDistinct
	}

	s.labels = append(s.labels, types.LabeledPair{
		LeftID:      left.ID,
		RightID:     right.ID,
		LeftFields:  left.Fields,
		RightFields: right.Fields,
		Verdict:     verdict,
		SessionID:   s.id,
		LabeledAt:   time.Now().UTC(),
	})
}

// refreshModel retrains from the seed plus this session's labels. A
// one-sided label set (no match yet, or no distinct yet) is not an error
// here: the session keeps sampling in block order with no model until the
// labels can train one.
func (s *Session) refreshModel(seed []types.LabeledPair) {
	all := make([]types.LabeledPair, 0, len(seed)+len(s.labels))
	all = append(all, seed...)
	all = append(all, s.labels...)

	model, err := classify.Train(all, s.sch, s.cfg.Training)
	if err != nil {
		return
	}
	s.model = model
}

// mustTransition applies a state change, panicking on a transition the
// machine's own loop can never legally produce
func (s *Session) mustTransition(to State) {
	if !allowedTransition(s.state, to) {
		panic(fmt.Sprintf("labeling session bug: cannot transition from %s to %s", s.state, to))
	}
	s.state = to
}

// allowedTransition encodes the state machine edges
func allowedTransition(from, to State) bool {
	switch from {
	case StateAwaitingLabel:
		return to == StateLabeling || to == StateConverged || to == StateAborted
	case StateLabeling:
		return to == StateAwaitingLabel || to == StateConverged || to == StateAborted
	default:
		return false
	}
}

// uncertainty maps a probability to its distance from a coin flip:
// 0.5 at p=0.5, 0 at p=0 or p=1
func uncertainty(p float64) float64 {
	return 0.5 - math.Abs(p-0.5)
}
