package active

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espin086/IntelliMatch/internal/blocking"
	"github.com/espin086/IntelliMatch/internal/record"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/source"
	"github.com/espin086/IntelliMatch/internal/types"
)

// memorySource feeds fixed rows through the record loader without a file
type memorySource struct {
	header []string
	rows   [][]string
}

func (m *memorySource) Read(ctx context.Context) (*source.Table, error) {
	return &source.Table{Header: m.header, Rows: m.rows}, nil
}

func (m *memorySource) Name() string { return "memory" }

// scriptedOracle replays a fixed list of responses, then finishes
type scriptedOracle struct {
	responses []Response
	calls     int
	seen      []types.Pair
}

func (o *scriptedOracle) Judge(ctx context.Context, left, right *types.Record) (Response, error) {
	o.calls++
	o.seen = append(o.seen, types.NewPair(left.ID, right.ID))
	if len(o.responses) == 0 {
		return ResponseFinish, nil
	}
	r := o.responses[0]
	o.responses = o.responses[1:]
	return r, nil
}

func buildSession(t *testing.T, rows [][]string, oracle Oracle, cfg Config) *Session {
	t.Helper()
	store, err := record.Load(context.Background(), &memorySource{
		header: []string{"id", "site"},
		rows:   rows,
	}, "id")
	require.NoError(t, err)

	sch, err := schema.New([]string{"site"})
	require.NoError(t, err)

	sampler, err := blocking.NewSampler(store, sch, blocking.DefaultConfig())
	require.NoError(t, err)

	sess, err := NewSession(store, sch, sampler, oracle, cfg)
	require.NoError(t, err)
	return sess
}

// noFloor keeps the session asking until the script finishes, so tests
// control the ending instead of the model's confidence
func noFloor() Config {
	cfg := DefaultConfig()
	cfg.UncertaintyFloor = 0
	return cfg
}

var pizzaRows = [][]string{
	{"1", "pizza hut"},
	{"2", "pizza palace"},
	{"3", "pizza planet"},
}

func TestRunFinishKeepsNoLabels(t *testing.T) {
	oracle := &scriptedOracle{responses: []Response{ResponseFinish}}
	sess := buildSession(t, pizzaRows, oracle, noFloor())

	labels, err := sess.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, labels)
	assert.Equal(t, 1, oracle.calls)
	assert.Equal(t, StateConverged, sess.State())
}

func TestRunCollectsLabels(t *testing.T) {
	oracle := &scriptedOracle{responses: []Response{ResponseMatch, ResponseDistinct, ResponseFinish}}
	sess := buildSession(t, pizzaRows, oracle, noFloor())

	labels, err := sess.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, labels, 2)

	// With no model yet, pairs arrive in canonical order
	assert.Equal(t, "1", labels[0].LeftID)
	assert.Equal(t, "2", labels[0].RightID)
	assert.Equal(t, types.VerdictMatch, labels[0].Verdict)

	assert.Equal(t, "1", labels[1].LeftID)
	assert.Equal(t, "3", labels[1].RightID)
	assert.Equal(t, types.VerdictDistinct, labels[1].Verdict)

	for _, lp := range labels {
		assert.Equal(t, sess.ID(), lp.SessionID)
		assert.False(t, lp.LabeledAt.IsZero())
		assert.Equal(t, "pizza hut", lp.LeftFields["site"])
	}
	assert.Equal(t, 3, oracle.calls)
	assert.Equal(t, StateConverged, sess.State())
	assert.NotNil(t, sess.Model(), "one match and one distinct should train a model")
}

func TestRunAbortPreservesLabels(t *testing.T) {
	oracle := &scriptedOracle{responses: []Response{ResponseMatch, ResponseAbort}}
	sess := buildSession(t, pizzaRows, oracle, noFloor())

	labels, err := sess.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrAborted)

	require.Len(t, labels, 1)
	assert.Equal(t, types.VerdictMatch, labels[0].Verdict)
	assert.Equal(t, StateAborted, sess.State())
	assert.Len(t, sess.Labels(), 1)
}

func TestRunRepromptsInvalidResponse(t *testing.T) {
	oracle := &scriptedOracle{responses: []Response{Response("dunno"), ResponseMatch, ResponseFinish}}
	sess := buildSession(t, pizzaRows, oracle, noFloor())

	labels, err := sess.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, labels, 1)
	assert.Equal(t, types.VerdictMatch, labels[0].Verdict)
	assert.Equal(t, 3, oracle.calls)
	assert.Equal(t, oracle.seen[0], oracle.seen[1], "invalid response should re-present the same pair")
}

func TestRunBudgetConverges(t *testing.T) {
	cfg := noFloor()
	cfg.LabelBudget = 2
	oracle := &scriptedOracle{responses: []Response{ResponseSkip, ResponseSkip, ResponseSkip}}
	sess := buildSession(t, pizzaRows, oracle, cfg)

	labels, err := sess.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, labels, 2)
	for _, lp := range labels {
		assert.Equal(t, types.VerdictSkip, lp.Verdict)
	}
	assert.Equal(t, 2, oracle.calls)
	assert.Equal(t, StateConverged, sess.State())
	assert.Nil(t, sess.Model(), "skips alone should not train a model")
}

func TestRunNoCandidatesConverges(t *testing.T) {
	oracle := &scriptedOracle{}
	sess := buildSession(t, [][]string{
		{"1", "alpha"},
		{"2", "zebra"},
	}, oracle, noFloor())

	labels, err := sess.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, labels)
	assert.Equal(t, 0, oracle.calls)
	assert.Equal(t, StateConverged, sess.State())
}

func TestRunSeedPairsNotRepresented(t *testing.T) {
	oracle := &scriptedOracle{}
	sess := buildSession(t, [][]string{
		{"1", "pizza hut"},
		{"2", "pizza barn"},
	}, oracle, noFloor())

	seed := []types.LabeledPair{{
		LeftID:      "1",
		RightID:     "2",
		LeftFields:  map[string]string{"site": "pizza hut"},
		RightFields: map[string]string{"site": "pizza barn"},
		Verdict:     types.VerdictMatch,
		SessionID:   "prior",
		LabeledAt:   time.Now().UTC(),
	}}

	labels, err := sess.Run(context.Background(), seed)
	require.NoError(t, err)

	assert.Empty(t, labels, "seed labels are informative, not returnable")
	assert.Equal(t, 0, oracle.calls, "already-labeled pairs should never be presented")
	assert.Equal(t, StateConverged, sess.State())
}

func TestRunFloorConvergesWithConfidentModel(t *testing.T) {
	oracle := &scriptedOracle{}
	// Both records carry the same value, so the only candidate has
	// similarity 1.0 and a model seeded with a clean match/distinct split
	// is already sure about it
	sess := buildSession(t, [][]string{
		{"1", "pizza hut"},
		{"2", "pizza hut"},
	}, oracle, DefaultConfig())

	seed := []types.LabeledPair{
		{
			LeftID:      "h1",
			RightID:     "h2",
			LeftFields:  map[string]string{"site": "pizza hut"},
			RightFields: map[string]string{"site": "pizza hut"},
			Verdict:     types.VerdictMatch,
			SessionID:   "prior",
			LabeledAt:   time.Now().UTC(),
		},
		{
			LeftID:      "h3",
			RightID:     "h4",
			LeftFields:  map[string]string{"site": "aaaa"},
			RightFields: map[string]string{"site": "zzzz"},
			Verdict:     types.VerdictDistinct,
			SessionID:   "prior",
			LabeledAt:   time.Now().UTC(),
		},
	}

	labels, err := sess.Run(context.Background(), seed)
	require.NoError(t, err)

	assert.Empty(t, labels)
	assert.Equal(t, 0, oracle.calls, "a confident model should not consult the oracle")
	assert.Equal(t, StateConverged, sess.State())
	require.NotNil(t, sess.Model())
}

func TestRunContextCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oracle := &scriptedOracle{}
	sess := buildSession(t, pizzaRows, oracle, noFloor())

	labels, err := sess.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, labels)
	assert.Equal(t, StateAborted, sess.State())
}

func TestRunSingleUse(t *testing.T) {
	oracle := &scriptedOracle{responses: []Response{ResponseFinish}}
	sess := buildSession(t, pizzaRows, oracle, noFloor())

	_, err := sess.Run(context.Background(), nil)
	require.NoError(t, err)

	_, err = sess.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already ran")
}

type erroringOracle struct{}

func (erroringOracle) Judge(ctx context.Context, left, right *types.Record) (Response, error) {
	return "", errors.New("terminal unavailable")
}

func TestRunOracleErrorAborts(t *testing.T) {
	sess := buildSession(t, pizzaRows, erroringOracle{}, noFloor())

	labels, err := sess.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal unavailable")

	assert.Empty(t, labels)
	assert.Equal(t, StateAborted, sess.State())
}

func TestNewSessionRequiresOracle(t *testing.T) {
	store, err := record.Load(context.Background(), &memorySource{
		header: []string{"id", "site"},
		rows:   pizzaRows,
	}, "id")
	require.NoError(t, err)

	sch, err := schema.New([]string{"site"})
	require.NoError(t, err)

	sampler, err := blocking.NewSampler(store, sch, blocking.DefaultConfig())
	require.NoError(t, err)

	_, err = NewSession(store, sch, sampler, nil, DefaultConfig())
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero floor", func(c *Config) { c.UncertaintyFloor = 0 }, false},
		{"zero budget", func(c *Config) { c.LabelBudget = 0 }, true},
		{"negative budget", func(c *Config) { c.LabelBudget = -1 }, true},
		{"floor at half", func(c *Config) { c.UncertaintyFloor = 0.5 }, true},
		{"negative floor", func(c *Config) { c.UncertaintyFloor = -0.1 }, true},
		{"bad training", func(c *Config) { c.Training.Iterations = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		allowed bool
	}{
		{StateAwaitingLabel, StateLabeling, true},
		{StateAwaitingLabel, StateConverged, true},
		{StateAwaitingLabel, StateAborted, true},
		{StateLabeling, StateAwaitingLabel, true},
		{StateLabeling, StateConverged, true},
		{StateLabeling, StateAborted, true},
		{StateAwaitingLabel, StateAwaitingLabel, false},
		{StateConverged, StateAwaitingLabel, false},
		{StateConverged, StateLabeling, false},
		{StateAborted, StateAwaitingLabel, false},
	}
	for _, tt := range tests {
		got := allowedTransition(tt.from, tt.to)
		assert.Equal(t, tt.allowed, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateAwaitingLabel.IsTerminal())
	assert.False(t, StateLabeling.IsTerminal())
	assert.True(t, StateConverged.IsTerminal())
	assert.True(t, StateAborted.IsTerminal())
}

func TestResponseIsValid(t *testing.T) {
	for _, r := range []Response{ResponseMatch, ResponseDistinct, ResponseSkip, ResponseFinish, ResponseAbort} {
		assert.True(t, r.IsValid(), string(r))
	}
	assert.False(t, Response("yes").IsValid())
	assert.False(t, Response("").IsValid())
}
