package pomi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentauth/agentauth/internal/challenge"
)

// ============================================================================
// CATALOG TESTS
// ============================================================================

func TestCatalog_Defaults(t *testing.T) {
	c := NewCatalog(nil)

	assert.Equal(t, CatalogVersion, c.Version)
	assert.Len(t, c.List(), 17)

	canary := c.Get("math-precision")
	require.NotNil(t, canary)
	assert.Equal(t, AnalysisExactMatch, canary.Analysis.Type)
	assert.Equal(t, "0.30000000000000004", canary.Analysis.Expected["claude-3-class"])

	assert.Nil(t, c.Get("no-such-canary"))
}

func TestCatalog_SelectFilters(t *testing.T) {
	c := NewCatalog(nil)

	method := InjectionSuffix
	selected := c.Select(100, &SelectOptions{Method: &method})
	require.NotEmpty(t, selected)
	for _, can := range selected {
		assert.Equal(t, InjectionSuffix, can.InjectionMethod)
	}

	selected = c.Select(100, &SelectOptions{Exclude: []string{"unicode-rtl", "math-precision"}})
	assert.Len(t, selected, 15)
	for _, can := range selected {
		assert.NotEqual(t, "unicode-rtl", can.ID)
		assert.NotEqual(t, "math-precision", can.ID)
	}

	// Count clamps to the candidate set.
	assert.Len(t, c.Select(100, nil), 17)
	assert.Len(t, c.Select(3, nil), 3)
}

func TestCatalog_SeededSelectionIsDeterministic(t *testing.T) {
	a := NewSeededCatalog(nil, 42)
	b := NewSeededCatalog(nil, 42)

	for i := 0; i < 5; i++ {
		sa := a.Select(4, nil)
		sb := b.Select(4, nil)
		require.Len(t, sb, len(sa))
		for j := range sa {
			assert.Equal(t, sa[j].ID, sb[j].ID)
		}
	}
}

// ============================================================================
// INJECTOR TESTS
// ============================================================================

func TestInjector_AddsPromptsAndCanaryIDs(t *testing.T) {
	inj := NewInjector(NewSeededCatalog(nil, 7))
	payload := challenge.Payload{
		Type:         "crypto-nl",
		Instructions: "XOR each byte with 0x2A",
		Data:         "AAECAw==",
		Steps:        1,
		Context:      json.RawMessage(`{"ops":[]}`),
	}

	result, err := inj.Inject(payload, 3, nil)
	require.NoError(t, err)
	require.Len(t, result.Injected, 3)

	// Original instructions survive and the side-task block is appended.
	assert.Contains(t, result.Payload.Instructions, "XOR each byte with 0x2A")
	assert.Contains(t, result.Payload.Instructions, "canary_responses")
	for _, c := range result.Injected {
		assert.Contains(t, result.Payload.Instructions, c.Prompt)
	}

	var ctx struct {
		Ops       []json.RawMessage `json:"ops"`
		CanaryIDs []string          `json:"canary_ids"`
	}
	require.NoError(t, json.Unmarshal(result.Payload.Context, &ctx))
	require.Len(t, ctx.CanaryIDs, 3)
	for i, c := range result.Injected {
		assert.Equal(t, c.ID, ctx.CanaryIDs[i])
	}

	// Input payload must not be mutated.
	assert.Equal(t, "XOR each byte with 0x2A", payload.Instructions)
	assert.JSONEq(t, `{"ops":[]}`, string(payload.Context))
}

func TestInjector_ZeroCountIsNoop(t *testing.T) {
	inj := NewInjector(NewCatalog(nil))
	payload := challenge.Payload{Instructions: "do the thing"}

	result, err := inj.Inject(payload, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Injected)
	assert.Equal(t, "do the thing", result.Payload.Instructions)
}

func TestInjector_ExcludeFilters(t *testing.T) {
	inj := NewInjector(NewSeededCatalog(nil, 99))
	exclude := make([]string, 0, 15)
	for _, c := range DefaultCanaries {
		if c.ID != "math-precision" && c.ID != "emoji-choice" {
			exclude = append(exclude, c.ID)
		}
	}

	result, err := inj.Inject(challenge.Payload{Instructions: "x"}, 5, &InjectOptions{Exclude: exclude})
	require.NoError(t, err)
	assert.Len(t, result.Injected, 2)
}

// ============================================================================
// EXTRACTOR TESTS
// ============================================================================

func TestExtractor_ExactMatch(t *testing.T) {
	e := NewExtractor()
	canary := *NewCatalog(nil).Get("math-precision")

	evidence := e.Extract([]Canary{canary}, map[string]string{"math-precision": " 0.3 "})
	require.Len(t, evidence, 1)
	assert.True(t, evidence[0].Match)
	assert.Equal(t, canary.ConfidenceWeight, evidence[0].ConfidenceContribution)

	evidence = e.Extract([]Canary{canary}, map[string]string{"math-precision": "0.4"})
	require.Len(t, evidence, 1)
	assert.False(t, evidence[0].Match)
	assert.InDelta(t, canary.ConfidenceWeight*0.3, evidence[0].ConfidenceContribution, 1e-9)
}

func TestExtractor_Pattern(t *testing.T) {
	e := NewExtractor()
	canary := *NewCatalog(nil).Get("reasoning-style")

	evidence := e.Extract([]Canary{canary}, map[string]string{"reasoning-style": "Therefore, no: some A need not be C."})
	require.Len(t, evidence, 1)
	assert.True(t, evidence[0].Match)
	assert.Equal(t, canary.ConfidenceWeight, evidence[0].ConfidenceContribution)
}

func TestExtractor_Statistical(t *testing.T) {
	e := NewExtractor()
	canary := *NewCatalog(nil).Get("number-between")

	// 7 is within two standard deviations of every family mean.
	evidence := e.Extract([]Canary{canary}, map[string]string{"number-between": "7"})
	require.Len(t, evidence, 1)
	assert.True(t, evidence[0].Match)
	assert.InDelta(t, canary.ConfidenceWeight*0.7, evidence[0].ConfidenceContribution, 1e-9)

	// Non-numeric response cannot match.
	evidence = e.Extract([]Canary{canary}, map[string]string{"number-between": "a nice number"})
	require.Len(t, evidence, 1)
	assert.False(t, evidence[0].Match)
	assert.InDelta(t, canary.ConfidenceWeight*0.1, evidence[0].ConfidenceContribution, 1e-9)
}

func TestExtractor_SkipsUnansweredCanaries(t *testing.T) {
	e := NewExtractor()
	c := NewCatalog(nil)

	evidence := e.Extract([]Canary{*c.Get("math-precision"), *c.Get("emoji-choice")},
		map[string]string{"emoji-choice": "\U0001F604"})
	require.Len(t, evidence, 1)
	assert.Equal(t, "emoji-choice", evidence[0].CanaryID)
}

// ============================================================================
// CLASSIFIER TESTS
// ============================================================================

func TestClassifier_IdentifiesDistinctiveFamily(t *testing.T) {
	catalog := NewCatalog(nil)
	clf := NewClassifier(DefaultModelFamilies, nil)

	// math-precision and temperature-words both have claude-3-class-unique
	// expected answers.
	canaries := []Canary{*catalog.Get("math-precision"), *catalog.Get("temperature-words")}
	responses := map[string]string{
		"math-precision":    "0.30000000000000004",
		"temperature-words": "Pleasant",
	}

	id := clf.Classify(canaries, responses)
	assert.Equal(t, "claude-3-class", id.Family)
	assert.Greater(t, id.Confidence, 0.5)
	assert.Len(t, id.Evidence, 2)
	assert.Len(t, id.Alternatives, 4)
	for _, alt := range id.Alternatives {
		assert.Less(t, alt.Confidence, id.Confidence)
	}
}

func TestClassifier_PosteriorMassSumsToOne(t *testing.T) {
	catalog := NewCatalog(nil)
	clf := NewClassifier(DefaultModelFamilies, nil)

	// Mixed evidence across exact-match, pattern, and statistical canaries.
	canaries := []Canary{
		*catalog.Get("math-precision"),
		*catalog.Get("temperature-words"),
		*catalog.Get("reasoning-style"),
		*catalog.Get("number-between"),
	}
	responses := map[string]string{
		"math-precision":    "0.30000000000000004",
		"temperature-words": "Pleasant",
		"reasoning-style":   "Therefore, no: some A need not be C.",
		"number-between":    "7",
	}

	id := clf.Classify(canaries, responses)
	require.NotEqual(t, "unknown", id.Family)
	require.Len(t, id.Alternatives, len(DefaultModelFamilies)-1)

	// The winner plus every alternative carry the whole probability mass.
	// Reported values are rounded to three decimals, so allow half an ulp
	// of that rounding per family.
	total := id.Confidence
	for _, alt := range id.Alternatives {
		total += alt.Confidence
	}
	assert.InDelta(t, 1.0, total, 0.0005*float64(len(DefaultModelFamilies)))

	// Below threshold the best hypothesis moves into the alternatives, which
	// then hold the full mass on their own.
	strict := NewClassifier(DefaultModelFamilies, &ClassifierOptions{ConfidenceThreshold: 0.999})
	id = strict.Classify(canaries, responses)
	require.Equal(t, "unknown", id.Family)
	require.Len(t, id.Alternatives, len(DefaultModelFamilies))

	total = 0
	for _, alt := range id.Alternatives {
		total += alt.Confidence
	}
	assert.InDelta(t, 1.0, total, 0.0005*float64(len(DefaultModelFamilies)))
}

func TestClassifier_NoResponsesIsUnknown(t *testing.T) {
	clf := NewClassifier(DefaultModelFamilies, nil)

	id := clf.Classify(NewCatalog(nil).List(), nil)
	assert.Equal(t, "unknown", id.Family)
	assert.Zero(t, id.Confidence)
	assert.Empty(t, id.Evidence)

	id = clf.Classify(nil, map[string]string{"x": "y"})
	assert.Equal(t, "unknown", id.Family)
}

func TestClassifier_BelowThresholdReportsUnknown(t *testing.T) {
	catalog := NewCatalog(nil)
	clf := NewClassifier(DefaultModelFamilies, &ClassifierOptions{ConfidenceThreshold: 0.99})

	canaries := []Canary{*catalog.Get("analogy-completion")}
	id := clf.Classify(canaries, map[string]string{"analogy-completion": "puppy"})

	// Every family expects "puppy", so no hypothesis can clear 0.99.
	assert.Equal(t, "unknown", id.Family)
	require.NotEmpty(t, id.Alternatives)
	// The best real hypothesis heads the alternatives list.
	assert.GreaterOrEqual(t, id.Alternatives[0].Confidence, id.Alternatives[len(id.Alternatives)-1].Confidence)
	assert.True(t, strings.HasSuffix(id.Alternatives[0].Family, "-class"))
}
