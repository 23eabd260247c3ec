package challenge

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentauth/agentauth/internal/crypto"
)

// ============================================================================
// DRIVER UNIT TESTS
// ============================================================================

var allDifficulties = []Difficulty{
	DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyAdversarial,
}

func allDrivers() []Driver {
	return []Driver{
		&CryptoNLDriver{},
		&AmbiguousLogicDriver{},
		&CodeExecutionDriver{},
		&MultiStepDriver{},
	}
}

func TestDrivers_GenerateAllDifficulties(t *testing.T) {
	for _, d := range allDrivers() {
		for _, diff := range allDifficulties {
			payload, answerHash, err := d.Generate(diff)
			require.NoError(t, err, "%s/%s", d.Name(), diff)
			require.NotNil(t, payload)

			assert.Equal(t, d.Name(), payload.Type)
			assert.NotEmpty(t, payload.Instructions)
			assert.Len(t, answerHash, 64, "answer hash must be a sha256 hex digest")
			assert.GreaterOrEqual(t, payload.Steps, 1)

			_, err = base64.StdEncoding.DecodeString(payload.Data)
			assert.NoError(t, err, "payload data must be valid base64")
		}
	}
}

func TestDrivers_VerifyRejectsWrongAnswer(t *testing.T) {
	for _, d := range allDrivers() {
		_, answerHash, err := d.Generate(DifficultyMedium)
		require.NoError(t, err)

		ok, err := d.Verify(answerHash, "definitely not the answer")
		require.NoError(t, err)
		assert.False(t, ok, "%s accepted a wrong answer", d.Name())
	}
}

// The stored hash must be SHA-256 of the hex-encoded answer string, so an
// honest solver who produces the expected hex string always verifies.
func TestCryptoNL_ExpectedAnswerVerifies(t *testing.T) {
	d := &CryptoNLDriver{}

	for _, diff := range allDifficulties {
		payload, answerHash, err := d.Generate(diff)
		require.NoError(t, err)

		var ctx struct {
			Ops []byteOp `json:"ops"`
		}
		require.NoError(t, json.Unmarshal(payload.Context, &ctx))
		assert.Len(t, ctx.Ops, payload.Steps)

		data, err := base64.StdEncoding.DecodeString(payload.Data)
		require.NoError(t, err)

		final, err := executeByteOps(data, ctx.Ops)
		require.NoError(t, err)

		ok, err := d.Verify(answerHash, crypto.SHA256Hex(final))
		require.NoError(t, err)
		assert.True(t, ok, "recomputed answer should verify at %s", diff)
	}
}

func TestCryptoNL_OpPoolRespectsDifficulty(t *testing.T) {
	advanced := map[string]bool{opRepeat: true, opHMAC: true, opBase64Enc: true, opSHA256: true, opNot: true}

	for i := 0; i < 50; i++ {
		ops := generateByteOps(cryptoNLProfiles[DifficultyEasy].ops, 16, DifficultyEasy)
		for _, op := range ops {
			assert.False(t, advanced[op.Kind], "easy pipeline must not contain %s", op.Kind)
		}
	}
}

func TestAmbiguousLogic_PrimaryAnswerVerifies(t *testing.T) {
	d := &AmbiguousLogicDriver{}

	for _, diff := range allDifficulties {
		payload, answerHash, err := d.Generate(diff)
		require.NoError(t, err)

		var ctx struct {
			PrimaryAnswer string             `json:"primary_answer"`
			ScoredAnswers []ScoredAnswerHash `json:"scored_answers"`
		}
		require.NoError(t, json.Unmarshal(payload.Context, &ctx))

		ok, err := d.Verify(answerHash, ctx.PrimaryAnswer)
		require.NoError(t, err)
		assert.True(t, ok, "primary interpretation should verify at %s", diff)

		// The primary always heads the list with score 1.0 single-template;
		// chained scores multiply but stay sorted descending.
		require.NotEmpty(t, ctx.ScoredAnswers)
		for i := 1; i < len(ctx.ScoredAnswers); i++ {
			assert.LessOrEqual(t, ctx.ScoredAnswers[i].Score, ctx.ScoredAnswers[i-1].Score)
		}
		assert.Equal(t, crypto.SHA256Hex([]byte(ctx.PrimaryAnswer)), ctx.ScoredAnswers[0].AnswerHash)
	}
}

func TestAmbiguousLogic_EasyHasNoAlternates(t *testing.T) {
	for i := 0; i < 20; i++ {
		data := crypto.RandomBytes(8)
		_, answers := luckyNumberTemplate(data, DifficultyEasy)
		assert.Len(t, answers, 1, "easy lucky-number must expose only the primary reading")
	}
}

func TestAmbiguousLogic_ChainedStepsMatchDifficulty(t *testing.T) {
	d := &AmbiguousLogicDriver{}

	payload, _, err := d.Generate(DifficultyAdversarial)
	require.NoError(t, err)
	assert.Equal(t, 3, payload.Steps)

	payload, _, err = d.Generate(DifficultyHard)
	require.NoError(t, err)
	assert.Equal(t, 2, payload.Steps)
}

func TestCodeExecution_CorrectOutputVerifies(t *testing.T) {
	d := &CodeExecutionDriver{}

	for _, diff := range allDifficulties {
		payload, answerHash, err := d.Generate(diff)
		require.NoError(t, err)

		var ctx struct {
			TemplateName  string    `json:"template_name"`
			Bugs          []codeBug `json:"bugs"`
			CorrectOutput string    `json:"correct_output"`
		}
		require.NoError(t, json.Unmarshal(payload.Context, &ctx))

		ok, err := d.Verify(answerHash, ctx.CorrectOutput)
		require.NoError(t, err)
		assert.True(t, ok, "correct output should verify at %s", diff)

		assert.Equal(t, len(ctx.Bugs), payload.Steps)
		if diff == DifficultyEasy {
			assert.NotEqual(t, "hash_chain", ctx.TemplateName, "hash_chain is excluded on easy")
		}
	}
}

func TestCodeExecution_TemplateOutputs(t *testing.T) {
	// Known-input checks for each template's reference implementation.
	in := codeInput{data: []byte{1, 2, 3}}
	// (1*1)%256=1, (2*2)%256=4, (3*3)%256=9
	assert.Equal(t, crypto.SHA256Hex([]byte{1, 4, 9}), byteTransformOutput(in))

	in = codeInput{data: []byte{0xF0, 0x0F, 0xFF}}
	// 0 ^ F0 ^ 0F ^ FF = 00
	assert.Equal(t, "00", arrayProcessingOutput(in))

	in = codeInput{data: []byte{1, 2, 3}, rounds: 2}
	digest := crypto.SHA256Bytes([]byte{1, 2, 3})
	for l, r := 0, len(digest)-1; l < r; l, r = l+1, r-1 {
		digest[l], digest[r] = digest[r], digest[l]
	}
	digest = crypto.SHA256Bytes(digest)
	for l, r := 0, len(digest)-1; l < r; l, r = l+1, r-1 {
		digest[l], digest[r] = digest[r], digest[l]
	}
	assert.Equal(t, crypto.ToHex(digest), hashChainOutput(in))
}

func TestMultiStep_ExpectedAnswerVerifies(t *testing.T) {
	d := &MultiStepDriver{}

	for _, diff := range allDifficulties {
		payload, answerHash, err := d.Generate(diff)
		require.NoError(t, err)

		var ctx struct {
			StepDefs        []stepDef `json:"step_defs"`
			ExpectedResults []string  `json:"expected_results"`
			ExpectedAnswer  string    `json:"expected_answer"`
		}
		require.NoError(t, json.Unmarshal(payload.Context, &ctx))

		ok, err := d.Verify(answerHash, ctx.ExpectedAnswer)
		require.NoError(t, err)
		assert.True(t, ok, "expected answer should verify at %s", diff)

		assert.Equal(t, multiStepProfiles[diff].totalSteps, payload.Steps)
		assert.Len(t, ctx.ExpectedResults, payload.Steps)

		// Replay the step definitions and confirm they reproduce the recorded
		// results and final answer.
		data, err := base64.StdEncoding.DecodeString(payload.Data)
		require.NoError(t, err)
		inputHex := crypto.ToHex(data)

		outcomes := make([]stepOutcome, 0, len(ctx.StepDefs))
		for i, def := range ctx.StepDefs {
			result, err := executeStep(i, def, inputHex, outcomes)
			require.NoError(t, err)
			assert.Equal(t, ctx.ExpectedResults[i], result, "step %d replay mismatch", i+1)
			outcomes = append(outcomes, stepOutcome{Def: def, Result: result})
		}
		assert.Equal(t, ctx.ExpectedAnswer, finalAnswer(outcomes))
	}
}

func TestMultiStep_EasyHasNoMemorySteps(t *testing.T) {
	d := &MultiStepDriver{}

	for i := 0; i < 10; i++ {
		payload, _, err := d.Generate(DifficultyEasy)
		require.NoError(t, err)

		var ctx struct {
			StepDefs []stepDef `json:"step_defs"`
		}
		require.NoError(t, json.Unmarshal(payload.Context, &ctx))
		for _, def := range ctx.StepDefs {
			assert.NotEqual(t, stepMemoryRecall, def.Kind)
			assert.NotEqual(t, stepMemoryApply, def.Kind)
		}
	}
}

// ============================================================================
// REGISTRY TESTS
// ============================================================================

func TestRegistry_DefaultDrivers(t *testing.T) {
	r := NewDefaultRegistry()

	for _, name := range []string{"crypto-nl", "ambiguous-logic", "code-execution", "multi-step"} {
		assert.NotNil(t, r.Get(name), "missing driver %s", name)
	}
	assert.Nil(t, r.Get("no-such-driver"))
	assert.Len(t, r.List(), 4)
}

func TestRegistry_SelectByDimensions(t *testing.T) {
	r := NewDefaultRegistry()

	// Memory is only exercised by multi-step.
	top := r.Select([]Dimension{DimensionMemory}, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "multi-step", top[0].Name())

	// Ambiguity is only exercised by ambiguous-logic.
	top = r.Select([]Dimension{DimensionAmbiguity}, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "ambiguous-logic", top[0].Name())

	// Count clamps to the registry size.
	all := r.Select(nil, 10)
	assert.Len(t, all, 4)

	// Zero or negative count still returns one driver.
	one := r.Select(nil, 0)
	assert.Len(t, one, 1)
}
