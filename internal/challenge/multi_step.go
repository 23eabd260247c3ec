package challenge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/agentauth/agentauth/internal/crypto"
)

// ============================================================================
// multi-step: chained crypto operations with memory references
// ============================================================================

type stepKind string

const (
	stepSHA256       stepKind = "sha256"
	stepXOR          stepKind = "xor"
	stepHMAC         stepKind = "hmac"
	stepSlice        stepKind = "slice"
	stepMemoryRecall stepKind = "memory_recall"
	stepMemoryApply  stepKind = "memory_apply"
)

// stepDef is a fully parameterized step. Memory steps reference an earlier
// step by zero-based index.
type stepDef struct {
	Kind      stepKind `json:"type"`
	Key       int      `json:"key,omitempty"`
	KeyHex    string   `json:"key_hex,omitempty"`
	Start     int      `json:"start,omitempty"`
	End       int      `json:"end,omitempty"`
	Step      int      `json:"step,omitempty"`
	ByteIndex int      `json:"byte_index,omitempty"`
}

type stepOutcome struct {
	Def    stepDef `json:"def"`
	Result string  `json:"result"` // hex string
}

// executeStep runs one step. Compute steps operate on the previous result
// (the original data for step 0); HMAC steps always sign the original data,
// keyed by either the generated key or the previous result.
func executeStep(stepIndex int, def stepDef, inputDataHex string, previous []stepOutcome) (string, error) {
	source := inputDataHex
	if stepIndex > 0 && len(previous) > 0 {
		source = previous[stepIndex-1].Result
	}

	switch def.Kind {
	case stepSHA256:
		data, err := crypto.FromHex(source)
		if err != nil {
			return "", fmt.Errorf("decode step input: %w", err)
		}
		return crypto.SHA256Hex(data), nil

	case stepXOR:
		data, err := crypto.FromHex(source)
		if err != nil {
			return "", fmt.Errorf("decode step input: %w", err)
		}
		out := make([]byte, len(data))
		for i := range data {
			out[i] = data[i] ^ byte(def.Key&0xFF)
		}
		return crypto.ToHex(out), nil

	case stepHMAC:
		keyHex := def.KeyHex
		if stepIndex > 0 {
			keyHex = previous[stepIndex-1].Result
		}
		key, err := crypto.FromHex(keyHex)
		if err != nil {
			return "", fmt.Errorf("decode hmac key: %w", err)
		}
		msg, err := crypto.FromHex(inputDataHex)
		if err != nil {
			return "", fmt.Errorf("decode hmac message: %w", err)
		}
		return crypto.ToHex(crypto.HMACSHA256Bytes(key, msg)), nil

	case stepSlice:
		data, err := crypto.FromHex(source)
		if err != nil {
			return "", fmt.Errorf("decode step input: %w", err)
		}
		start := minInt(def.Start, len(data))
		end := minInt(def.End, len(data))
		return crypto.ToHex(data[start:end]), nil

	case stepMemoryRecall:
		target, err := crypto.FromHex(previous[def.Step].Result)
		if err != nil {
			return "", fmt.Errorf("decode recalled result: %w", err)
		}
		return fmt.Sprintf("%02x", target[def.ByteIndex]), nil

	case stepMemoryApply:
		refDef := previous[def.Step].Def
		prior := make([]stepOutcome, stepIndex)
		copy(prior, previous[:stepIndex])
		return executeStep(stepIndex, refDef, inputDataHex, prior)
	}
	return "", fmt.Errorf("unknown step kind %q", def.Kind)
}

// The final answer is SHA-256 over the concatenation of every intermediate
// result's lowercase hex string, without separators.
func finalAnswer(outcomes []stepOutcome) string {
	var sb strings.Builder
	for _, o := range outcomes {
		sb.WriteString(o.Result)
	}
	return crypto.SHA256Hex([]byte(sb.String()))
}

var stepSHA256Phrasings = []func(ref string) string{
	func(ref string) string { return fmt.Sprintf("Compute the SHA-256 hash of %s. Your result is", ref) },
	func(ref string) string { return fmt.Sprintf("Hash %s using SHA-256. Your result is", ref) },
	func(ref string) string { return fmt.Sprintf("Apply SHA-256 to %s. Your result is", ref) },
}

var stepXORPhrasings = []func(ref string, key int) string{
	func(ref string, key int) string {
		return fmt.Sprintf("XOR each byte of %s with 0x%02X. Your result is", ref, key)
	},
	func(ref string, key int) string {
		return fmt.Sprintf("Apply exclusive-or with the value %d to every byte of %s. Your result is", key, ref)
	},
	func(ref string, key int) string {
		return fmt.Sprintf("Bitwise XOR each byte of %s using the key 0x%02x. Your result is", ref, key)
	},
}

var stepHMACPhrasings = []func(keyRef, msgRef string) string{
	func(keyRef, msgRef string) string {
		return fmt.Sprintf("Compute HMAC-SHA256 with %s as key and %s as message. Your result is", keyRef, msgRef)
	},
	func(keyRef, msgRef string) string {
		return fmt.Sprintf("Use %s as an HMAC-SHA256 key to sign %s. Your result is", keyRef, msgRef)
	},
}

var stepSlicePhrasings = []func(ref string, start, end int) string{
	func(ref string, start, end int) string {
		return fmt.Sprintf("Take bytes %d through %d (inclusive) from %s. Your result is", start, end-1, ref)
	},
	func(ref string, start, end int) string {
		return fmt.Sprintf("Extract the first %d bytes of %s starting at offset %d. Your result is", end-start, ref, start)
	},
}

var stepRecallPhrasings = []func(stepNum, byteIndex int) string{
	func(stepNum, byteIndex int) string {
		return fmt.Sprintf("What was byte %d (0-indexed) of your result R%d? Express as a 2-digit hex value. Your result is", byteIndex, stepNum)
	},
	func(stepNum, byteIndex int) string {
		return fmt.Sprintf("Recall the value of byte at position %d in R%d, written as two hex digits. Your result is", byteIndex, stepNum)
	},
}

var stepApplyPhrasings = []func(stepNum int, prevRef string) string{
	func(stepNum int, prevRef string) string {
		return fmt.Sprintf("Apply the same operation you performed in step %d to %s. Your result is", stepNum, prevRef)
	},
	func(stepNum int, prevRef string) string {
		return fmt.Sprintf("Repeat the operation from step %d, but this time on %s. Your result is", stepNum, prevRef)
	},
}

func stepInstruction(stepIndex int, def stepDef) string {
	stepNum := stepIndex + 1
	resultLabel := fmt.Sprintf("R%d", stepNum)
	ref := "the provided data"
	if stepIndex > 0 {
		ref = fmt.Sprintf("R%d", stepIndex)
	}

	var phrase string
	switch def.Kind {
	case stepSHA256:
		phrase = pickOne(stepSHA256Phrasings)(ref)
	case stepXOR:
		phrase = pickOne(stepXORPhrasings)(ref, def.Key)
	case stepHMAC:
		keyRef := fmt.Sprintf("the hex key %q", def.KeyHex)
		if stepIndex > 0 {
			keyRef = fmt.Sprintf("R%d", stepIndex)
		}
		phrase = pickOne(stepHMACPhrasings)(keyRef, "the provided data")
	case stepSlice:
		phrase = pickOne(stepSlicePhrasings)(ref, def.Start, def.End)
	case stepMemoryRecall:
		phrase = pickOne(stepRecallPhrasings)(def.Step+1, def.ByteIndex)
	case stepMemoryApply:
		phrase = pickOne(stepApplyPhrasings)(def.Step+1, ref)
	}
	return fmt.Sprintf("Step %d: %s %s.", stepNum, phrase, resultLabel)
}

func allStepInstructions(steps []stepDef) string {
	parts := make([]string, len(steps))
	refs := make([]string, len(steps))
	for i, def := range steps {
		parts[i] = stepInstruction(i, def)
		refs[i] = fmt.Sprintf("R%d", i+1)
	}
	footer := fmt.Sprintf("\nYour final answer: SHA-256 of the concatenation of %s (all as lowercase hex strings, concatenated without separators).", strings.Join(refs, " + "))
	return strings.Join(parts, "\n") + footer
}

type multiStepProfile struct {
	totalSteps   int
	dataSize     int
	computeSteps int
	memoryRecall int
	memoryApply  int
}

var multiStepProfiles = map[Difficulty]multiStepProfile{
	DifficultyEasy:        {totalSteps: 3, dataSize: 32, computeSteps: 3},
	DifficultyMedium:      {totalSteps: 4, dataSize: 32, computeSteps: 3, memoryRecall: 1},
	DifficultyHard:        {totalSteps: 5, dataSize: 64, computeSteps: 3, memoryRecall: 1, memoryApply: 1},
	DifficultyAdversarial: {totalSteps: 7, dataSize: 64, computeSteps: 4, memoryRecall: 2, memoryApply: 1},
}

// generateComputeStep picks a step kind and parameters. Step 0 is limited to
// sha256 and xor so HMAC and slice always have a previous result to work on.
func generateComputeStep(stepIndex, dataSize int, previous []stepOutcome) stepDef {
	available := []stepKind{stepSHA256, stepXOR, stepHMAC, stepSlice}
	if stepIndex == 0 {
		available = []stepKind{stepSHA256, stepXOR}
	}

	switch pickOne(available) {
	case stepXOR:
		return stepDef{Kind: stepXOR, Key: randBetween(1, 255)}
	case stepHMAC:
		if stepIndex == 0 {
			return stepDef{Kind: stepHMAC, KeyHex: crypto.ToHex(crypto.RandomBytes(16))}
		}
		return stepDef{Kind: stepHMAC}
	case stepSlice:
		prevLen := dataSize
		if stepIndex > 0 && len(previous) >= stepIndex {
			if data, err := crypto.FromHex(previous[stepIndex-1].Result); err == nil && len(data) > 0 {
				prevLen = len(data)
			} else {
				prevLen = 32
			}
		}
		maxEnd := prevLen
		if maxEnd < 4 {
			maxEnd = 4
		}
		start := randBetween(0, maxEnd/4)
		end := randBetween(start+2, minInt(start+maxEnd/2, maxEnd))
		return stepDef{Kind: stepSlice, Start: start, End: end}
	}
	return stepDef{Kind: stepSHA256}
}

func generateMemoryRecallStep(previous []stepOutcome) (stepDef, error) {
	stepIdx := rand.IntN(len(previous))
	data, err := crypto.FromHex(previous[stepIdx].Result)
	if err != nil {
		return stepDef{}, fmt.Errorf("decode recall target: %w", err)
	}
	return stepDef{Kind: stepMemoryRecall, Step: stepIdx, ByteIndex: rand.IntN(len(data))}, nil
}

func generateMemoryApplyStep(previous []stepOutcome) stepDef {
	var computeIdx []int
	for i, o := range previous {
		if o.Def.Kind != stepMemoryRecall && o.Def.Kind != stepMemoryApply {
			computeIdx = append(computeIdx, i)
		}
	}
	if len(computeIdx) == 0 {
		return stepDef{Kind: stepMemoryApply, Step: 0}
	}
	return stepDef{Kind: stepMemoryApply, Step: pickOne(computeIdx)}
}

func generateSteps(profile multiStepProfile, inputDataHex string) ([]stepDef, []stepOutcome, error) {
	steps := make([]stepDef, 0, profile.totalSteps)
	outcomes := make([]stepOutcome, 0, profile.totalSteps)

	run := func(def stepDef) error {
		idx := len(steps)
		steps = append(steps, def)
		result, err := executeStep(idx, def, inputDataHex, outcomes)
		if err != nil {
			return err
		}
		outcomes = append(outcomes, stepOutcome{Def: def, Result: result})
		return nil
	}

	for i := 0; i < profile.computeSteps; i++ {
		if err := run(generateComputeStep(i, len(inputDataHex)/2, outcomes)); err != nil {
			return nil, nil, err
		}
	}
	for i := 0; i < profile.memoryRecall; i++ {
		def, err := generateMemoryRecallStep(outcomes)
		if err != nil {
			return nil, nil, err
		}
		if err := run(def); err != nil {
			return nil, nil, err
		}
	}
	for i := 0; i < profile.memoryApply; i++ {
		if err := run(generateMemoryApplyStep(outcomes)); err != nil {
			return nil, nil, err
		}
	}
	return steps, outcomes, nil
}

// MultiStepDriver chains crypto operations where later steps reference the
// results of earlier ones, testing working memory alongside execution.
type MultiStepDriver struct{}

func (d *MultiStepDriver) Name() string { return "multi-step" }

func (d *MultiStepDriver) Dimensions() []Dimension {
	return []Dimension{DimensionReasoning, DimensionExecution, DimensionMemory}
}

func (d *MultiStepDriver) EstimatedHumanTimeMs() int64 { return 120000 }
func (d *MultiStepDriver) EstimatedAITimeMs() int64    { return 2000 }

func (d *MultiStepDriver) Generate(difficulty Difficulty) (*Payload, string, error) {
	profile, ok := multiStepProfiles[difficulty]
	if !ok {
		profile = multiStepProfiles[DifficultyMedium]
	}
	data := crypto.RandomBytes(profile.dataSize)
	inputDataHex := crypto.ToHex(data)

	steps, outcomes, err := generateSteps(profile, inputDataHex)
	if err != nil {
		return nil, "", fmt.Errorf("generate steps: %w", err)
	}

	answer := finalAnswer(outcomes)
	answerHash := crypto.SHA256Hex([]byte(answer))

	expected := make([]string, len(outcomes))
	for i, o := range outcomes {
		expected[i] = o.Result
	}
	ctx, err := json.Marshal(map[string]any{
		"step_defs":        steps,
		"expected_results": expected,
		"expected_answer":  answer,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal context: %w", err)
	}

	return &Payload{
		Type:         d.Name(),
		Instructions: allStepInstructions(steps),
		Data:         base64.StdEncoding.EncodeToString(data),
		Steps:        len(steps),
		Context:      ctx,
	}, answerHash, nil
}

func (d *MultiStepDriver) Verify(answerHash, submitted string) (bool, error) {
	return VerifyAnswerHash(answerHash, submitted), nil
}
