package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentauth/agentauth/internal/challenge"
	"github.com/agentauth/agentauth/internal/crypto"
	"github.com/agentauth/agentauth/internal/store"
	"github.com/agentauth/agentauth/internal/timing"
)

// ============================================================================
// ENGINE LIFECYCLE TESTS
// ============================================================================

func newTestEngine(config Config) (*Engine, *store.MemoryStore) {
	if config.Secret == "" {
		config.Secret = "test-secret"
	}
	s := store.NewMemoryStore()
	return NewEngine(config, s), s
}

// initMultiStep creates a multi-step challenge (the only driver with the
// memory dimension) and returns its init result plus the expected answer
// recovered from the stored payload context.
func initMultiStep(t *testing.T, e *Engine, s *store.MemoryStore) (*InitResult, string) {
	t.Helper()
	ctx := context.Background()

	res, err := e.Init(ctx, &InitOptions{Dimensions: []challenge.Dimension{challenge.DimensionMemory}})
	require.NoError(t, err)
	assert.Len(t, res.ID, 35)
	assert.Len(t, res.SessionToken, 51)

	record, err := s.Get(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "multi-step", record.Type)

	var payloadCtx struct {
		ExpectedAnswer string `json:"expected_answer"`
	}
	require.NoError(t, json.Unmarshal(record.Payload.Context, &payloadCtx))
	require.NotEmpty(t, payloadCtx.ExpectedAnswer)
	return res, payloadCtx.ExpectedAnswer
}

func TestEngine_SolveRoundTrip(t *testing.T) {
	e, s := newTestEngine(Config{})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, s)

	fetched, err := e.Fetch(ctx, init.ID, init.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, init.ID, fetched.ID)
	assert.Nil(t, fetched.Payload.Context, "context must never reach clients")
	assert.NotEmpty(t, fetched.Payload.Instructions)

	result, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer: answer,
		HMAC:   crypto.HMACSHA256Hex(answer, init.SessionToken),
	})
	require.NoError(t, err)
	require.True(t, result.Success, "reason=%s", result.Reason)
	require.NotEmpty(t, result.Token)

	// multi-step carries reasoning, execution, and memory.
	assert.InDelta(t, 0.9, result.Score.Reasoning, 1e-9)
	assert.InDelta(t, 0.95, result.Score.Execution, 1e-9)
	assert.InDelta(t, 0.92, result.Score.Consistency, 1e-9)
	assert.InDelta(t, 0.95, result.Score.Speed, 1e-9)
	assert.InDelta(t, 0.9, result.Score.Autonomy, 1e-9)

	verified, err := e.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.True(t, verified.Valid)
	assert.Equal(t, result.Score, *verified.Capabilities)
	assert.Equal(t, "unknown", verified.ModelFamily)
	assert.Greater(t, verified.ExpiresAt, verified.IssuedAt)
}

func TestEngine_SecondSolveIsExpired(t *testing.T) {
	e, s := newTestEngine(Config{})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, s)
	input := &SolveInput{
		Answer: answer,
		HMAC:   crypto.HMACSHA256Hex(answer, init.SessionToken),
	}

	first, err := e.Solve(ctx, init.ID, input)
	require.NoError(t, err)
	require.True(t, first.Success)

	// Replays fail even with the correct answer.
	second, err := e.Solve(ctx, init.ID, input)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, FailExpired, second.Reason)
	assert.Empty(t, second.Token)
}

func TestEngine_InvalidHMAC(t *testing.T) {
	e, s := newTestEngine(Config{})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, s)

	result, err := e.Solve(ctx, init.ID, &SolveInput{Answer: "x", HMAC: "deadbeef"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailInvalidHMAC, result.Reason)
	assert.Zero(t, result.Score)

	// The record survives an HMAC failure; a properly signed attempt still
	// succeeds.
	retry, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer: answer,
		HMAC:   crypto.HMACSHA256Hex(answer, init.SessionToken),
	})
	require.NoError(t, err)
	assert.True(t, retry.Success)
}

func TestEngine_WrongAnswerConsumesChallenge(t *testing.T) {
	e, s := newTestEngine(Config{})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, s)

	wrong := "not-" + answer
	result, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer: wrong,
		HMAC:   crypto.HMACSHA256Hex(wrong, init.SessionToken),
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailWrongAnswer, result.Reason)

	// Deletion happened before verification: the id is burned.
	retry, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer: answer,
		HMAC:   crypto.HMACSHA256Hex(answer, init.SessionToken),
	})
	require.NoError(t, err)
	assert.Equal(t, FailExpired, retry.Reason)
}

func TestEngine_FetchRejectsWrongSessionToken(t *testing.T) {
	e, s := newTestEngine(Config{})
	ctx := context.Background()

	init, _ := initMultiStep(t, e, s)

	fetched, err := e.Fetch(ctx, init.ID, "st_wrong")
	require.NoError(t, err)
	assert.Nil(t, fetched)

	fetched, err = e.Fetch(ctx, "ch_missing", init.SessionToken)
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestEngine_TimingRejectsTooFast(t *testing.T) {
	e, s := newTestEngine(Config{Timing: TimingSettings{Enabled: true}})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, s)

	// Solving within the same millisecond lands far below the multi-step
	// medium too_fast threshold of 60ms.
	result, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer: answer,
		HMAC:   crypto.HMACSHA256Hex(answer, init.SessionToken),
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailTooFast, result.Reason)
	require.NotNil(t, result.TimingAnalysis)
	assert.Equal(t, string(timing.ZoneTooFast), result.TimingAnalysis.Zone)
	assert.InDelta(t, 1.0, result.TimingAnalysis.Penalty, 1e-9)
}

func TestEngine_PomiInjectionAndClassification(t *testing.T) {
	e, s := newTestEngine(Config{Pomi: PomiConfig{Enabled: true, CanaryCount: 2}})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, s)

	record, err := s.Get(ctx, init.ID)
	require.NoError(t, err)
	require.NotEmpty(t, record.Canaries)
	assert.Contains(t, record.Payload.Instructions, "canary_responses")

	var payloadCtx struct {
		CanaryIDs []string `json:"canary_ids"`
	}
	require.NoError(t, json.Unmarshal(record.Payload.Context, &payloadCtx))
	assert.Len(t, payloadCtx.CanaryIDs, 2)

	responses := make(map[string]string, len(payloadCtx.CanaryIDs))
	for _, id := range payloadCtx.CanaryIDs {
		responses[id] = "42"
	}
	result, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer:          answer,
		HMAC:            crypto.HMACSHA256Hex(answer, init.SessionToken),
		CanaryResponses: responses,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.ModelIdentity)
	assert.NotEmpty(t, result.ModelIdentity.Evidence)
}

func TestEngine_PomiDefaultCanaryCount(t *testing.T) {
	// Enabled PoMI with no count configured injects exactly two canaries.
	e, s := newTestEngine(Config{Pomi: PomiConfig{Enabled: true}})
	ctx := context.Background()

	init, _ := initMultiStep(t, e, s)

	record, err := s.Get(ctx, init.ID)
	require.NoError(t, err)
	require.NotEmpty(t, record.Canaries)

	var canaries []json.RawMessage
	require.NoError(t, json.Unmarshal(record.Canaries, &canaries))
	require.Len(t, canaries, 2)
}

// consumedStore reports every delete as a no-op, standing in for a concurrent
// solve that already burned the record.
type consumedStore struct {
	*store.MemoryStore
}

func (s *consumedStore) Delete(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func TestEngine_SolveLosingDeleteRaceIsExpired(t *testing.T) {
	backing := store.NewMemoryStore()
	e := NewEngine(Config{Secret: "test-secret"}, &consumedStore{MemoryStore: backing})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, backing)

	// The record is still readable, but the delete finds nothing: the solve
	// must report expired instead of issuing a token.
	result, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer: answer,
		HMAC:   crypto.HMACSHA256Hex(answer, init.SessionToken),
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailExpired, result.Reason)
	assert.Empty(t, result.Token)
}

func TestEngine_MetadataModelFallback(t *testing.T) {
	e, s := newTestEngine(Config{})
	ctx := context.Background()

	init, answer := initMultiStep(t, e, s)

	// Without PoMI the self-reported model lands in the token.
	result, err := e.Solve(ctx, init.ID, &SolveInput{
		Answer:   answer,
		HMAC:     crypto.HMACSHA256Hex(answer, init.SessionToken),
		Metadata: &SolveMetadata{Model: "gpt-4o", Framework: "langchain"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	verified, err := e.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", verified.ModelFamily)
}

func TestEngine_VerifyTokenInvalid(t *testing.T) {
	e, _ := newTestEngine(Config{})

	res, err := e.VerifyToken("garbage")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Nil(t, res.Capabilities)
}

// ============================================================================
// SCORING TESTS
// ============================================================================

func TestComputeScore_Formulas(t *testing.T) {
	dims := []challenge.Dimension{challenge.DimensionReasoning, challenge.DimensionExecution}

	// No timing data: full marks minus the dimension defaults.
	score := computeScore(dims, nil, nil)
	assert.InDelta(t, 0.9, score.Reasoning, 1e-9)
	assert.InDelta(t, 0.95, score.Execution, 1e-9)
	assert.InDelta(t, 0.95, score.Speed, 1e-9)
	assert.InDelta(t, 0.9, score.Autonomy, 1e-9)
	assert.InDelta(t, 0.9, score.Consistency, 1e-9)

	// Suspicious zone with penalty 0.5 halves speed and autonomy.
	ta := &timing.Analysis{Zone: string(timing.ZoneSuspicious), Penalty: 0.5}
	score = computeScore(dims, ta, nil)
	assert.InDelta(t, 0.475, score.Speed, 1e-9)
	assert.InDelta(t, 0.45, score.Autonomy, 1e-9)

	// Artificial pattern penalizes autonomy and consistency by 30%.
	pa := &timing.PatternAnalysis{Verdict: "artificial"}
	score = computeScore(nil, nil, pa)
	assert.InDelta(t, 0.5, score.Reasoning, 1e-9)
	assert.InDelta(t, 0.5, score.Execution, 1e-9)
	assert.InDelta(t, 0.63, score.Autonomy, 1e-9)
	assert.InDelta(t, 0.63, score.Consistency, 1e-9)

	// Memory dimension bumps the consistency base.
	score = computeScore([]challenge.Dimension{challenge.DimensionMemory}, nil, nil)
	assert.InDelta(t, 0.92, score.Consistency, 1e-9)
}
