package challenge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/agentauth/agentauth/internal/crypto"
)

// ============================================================================
// code-execution: fix the bugs, run the code in your head
// ============================================================================

// codeBug names a deliberate defect planted in the shown code. The
// description is kept server-side for auditing; the solver only sees the
// buggy source.
type codeBug struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var (
	bugOffByOne    = codeBug{Name: "off_by_one", Description: "Uses % 255 instead of % 256 in modulo operation"}
	bugWrongOp     = codeBug{Name: "wrong_operator", Description: "Uses + (addition) instead of ^ (XOR) as the accumulator operator"}
	bugMissingStep = codeBug{Name: "missing_step", Description: "Missing byte reversal between hash rounds"}
	bugWrongInit   = codeBug{Name: "wrong_init", Description: "Accumulator initialized to 1 instead of 0"}
	bugWrongPad    = codeBug{Name: "wrong_pad", Description: "Hex encoding pads to 1 digit instead of 2"}
	bugWrongShift  = codeBug{Name: "wrong_shift", Description: "Shift amount is 7 instead of 8 in bit shifting"}
)

func hasCodeBug(bugs []codeBug, name string) bool {
	for _, b := range bugs {
		if b.Name == name {
			return true
		}
	}
	return false
}

type codeInput struct {
	data   []byte
	rounds int
}

type codeExecTemplate struct {
	name          string
	availableBugs []codeBug
	generateInput func() codeInput
	buggySource   func(in codeInput, bugs []codeBug) string
	correctOutput func(in codeInput) string
}

// byte_transform: result[i] = (data[i] * (i+1)) % 256, then SHA-256 hex.
func byteTransformInput() codeInput {
	return codeInput{data: crypto.RandomBytes(randBetween(8, 16))}
}

func byteTransformSource(_ codeInput, bugs []codeBug) string {
	mod := "256"
	if hasCodeBug(bugs, "off_by_one") {
		mod = "255"
	}
	multiplier := "(i + 1)"
	if hasCodeBug(bugs, "wrong_shift") {
		multiplier = "((i + 1) << 7)"
	}

	return fmt.Sprintf(`function transform(data) {
  // data is a byte array
  result = []
  for (i = 0; i < len(data); i++) {
    result.append((data[i] * %s) %% %s)
  }
  // Return the SHA-256 hex digest of the resulting byte array
  return sha256hex(result)
}`, multiplier, mod)
}

func byteTransformOutput(in codeInput) string {
	result := make([]byte, len(in.data))
	for i := range in.data {
		result[i] = byte((int(in.data[i]) * (i + 1)) % 256)
	}
	return crypto.SHA256Hex(result)
}

// array_processing: XOR-fold all bytes into an accumulator, emit as 2-digit hex.
func arrayProcessingInput() codeInput {
	return codeInput{data: crypto.RandomBytes(randBetween(8, 24))}
}

func arrayProcessingSource(_ codeInput, bugs []codeBug) string {
	operator := "^"
	if hasCodeBug(bugs, "wrong_operator") {
		operator = "+"
	}
	initVal := "0"
	if hasCodeBug(bugs, "wrong_init") {
		initVal = "1"
	}
	padLen := "2"
	if hasCodeBug(bugs, "wrong_pad") {
		padLen = "1"
	}

	return fmt.Sprintf(`function process(data) {
  // data is a byte array
  acc = %s
  for (byte in data) {
    acc = (acc %s byte) & 0xFF
  }
  return to_hex(acc, pad=%s)
}`, initVal, operator, padLen)
}

func arrayProcessingOutput(in codeInput) string {
	acc := 0
	for _, b := range in.data {
		acc = (acc ^ int(b)) & 0xFF
	}
	return fmt.Sprintf("%02x", acc)
}

// hash_chain: N rounds of SHA-256 with a byte reversal after each round.
func hashChainInput() codeInput {
	return codeInput{
		data:   crypto.RandomBytes(randBetween(8, 16)),
		rounds: randBetween(2, 4),
	}
}

func hashChainSource(in codeInput, bugs []codeBug) string {
	loopEnd := fmt.Sprintf("%d", in.rounds)
	if hasCodeBug(bugs, "off_by_one") {
		loopEnd = fmt.Sprintf("%d - 1", in.rounds)
	}
	reverseLine := "    current = reverse(current)"
	if hasCodeBug(bugs, "missing_step") {
		reverseLine = "    // (no reversal step)"
	}

	return fmt.Sprintf(`function hash_chain(data, rounds) {
  // data is a byte array, rounds = %d
  current = data
  for (i = 0; i < %s; i++) {
    current = sha256(current) // returns a byte array
%s
  }
  return hex(current) // returns a hex string
}`, in.rounds, loopEnd, reverseLine)
}

func hashChainOutput(in codeInput) string {
	current := in.data
	for i := 0; i < in.rounds; i++ {
		digest := crypto.SHA256Bytes(current)
		for l, r := 0, len(digest)-1; l < r; l, r = l+1, r-1 {
			digest[l], digest[r] = digest[r], digest[l]
		}
		current = digest
	}
	return crypto.ToHex(current)
}

var codeExecTemplates = []codeExecTemplate{
	{
		name:          "byte_transform",
		availableBugs: []codeBug{bugOffByOne, bugWrongShift},
		generateInput: byteTransformInput,
		buggySource:   byteTransformSource,
		correctOutput: byteTransformOutput,
	},
	{
		name:          "array_processing",
		availableBugs: []codeBug{bugWrongOp, bugWrongInit, bugWrongPad},
		generateInput: arrayProcessingInput,
		buggySource:   arrayProcessingSource,
		correctOutput: arrayProcessingOutput,
	},
	{
		name:          "hash_chain",
		availableBugs: []codeBug{bugMissingStep, bugOffByOne},
		generateInput: hashChainInput,
		buggySource:   hashChainSource,
		correctOutput: hashChainOutput,
	},
}

type codeExecProfile struct {
	bugCount      int
	templateNames []string
	edgeCaseHint  bool
}

var codeExecProfiles = map[Difficulty]codeExecProfile{
	DifficultyEasy:        {bugCount: 1, templateNames: []string{"byte_transform", "array_processing"}},
	DifficultyMedium:      {bugCount: 1, templateNames: []string{"byte_transform", "array_processing", "hash_chain"}},
	DifficultyHard:        {bugCount: 2, templateNames: []string{"byte_transform", "array_processing", "hash_chain"}},
	DifficultyAdversarial: {bugCount: 3, templateNames: []string{"byte_transform", "array_processing", "hash_chain"}, edgeCaseHint: true},
}

func selectBugs(available []codeBug, count int) []codeBug {
	pool := shuffled(available)
	if count > len(pool) {
		count = len(pool)
	}
	return pool[:count]
}

// CodeExecutionDriver shows a short function with planted bugs; the solver
// must identify the bugs, fix them mentally, and report the output of the
// corrected function on the given input.
type CodeExecutionDriver struct{}

func (d *CodeExecutionDriver) Name() string { return "code-execution" }

func (d *CodeExecutionDriver) Dimensions() []Dimension {
	return []Dimension{DimensionReasoning, DimensionExecution}
}

func (d *CodeExecutionDriver) EstimatedHumanTimeMs() int64 { return 120000 }
func (d *CodeExecutionDriver) EstimatedAITimeMs() int64    { return 2000 }

func (d *CodeExecutionDriver) Generate(difficulty Difficulty) (*Payload, string, error) {
	profile, ok := codeExecProfiles[difficulty]
	if !ok {
		profile = codeExecProfiles[DifficultyMedium]
	}

	var eligible []codeExecTemplate
	for _, tmpl := range codeExecTemplates {
		for _, name := range profile.templateNames {
			if tmpl.name == name {
				eligible = append(eligible, tmpl)
				break
			}
		}
	}
	tmpl := pickOne(eligible)

	input := tmpl.generateInput()
	bugs := selectBugs(tmpl.availableBugs, profile.bugCount)
	source := tmpl.buggySource(input, bugs)
	correct := tmpl.correctOutput(input)

	paramLines := ""
	if input.rounds > 0 {
		paramLines = fmt.Sprintf("Rounds: %d\n", input.rounds)
	}
	edgeCaseNote := ""
	if profile.edgeCaseHint {
		edgeCaseNote = "\n\nNote: Pay close attention to boundary conditions, operator precedence, and off-by-one errors."
	}

	instructions := fmt.Sprintf(`The following function contains bug(s). Your task is to:
1. Identify and fix all bugs in the code
2. Mentally execute the fixed code with the provided input
3. Return the correct output

## Code
`+"```\n%s\n```"+`

## Input
Data (hex): %s
%s
## Notes
- sha256hex() / sha256() compute SHA-256 and return a hex string / byte array respectively
- hex() converts a byte array to a hex string
- All arithmetic on bytes should stay within 0-255 range%s

Return the exact output of the fixed function.`, source, crypto.ToHex(input.data), paramLines, edgeCaseNote)

	answerHash := crypto.SHA256Hex([]byte(correct))

	ctx, err := json.Marshal(map[string]any{
		"template_name":  tmpl.name,
		"bugs":           bugs,
		"correct_output": correct,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal context: %w", err)
	}

	return &Payload{
		Type:         d.Name(),
		Instructions: instructions,
		Data:         base64.StdEncoding.EncodeToString(input.data),
		Steps:        len(bugs),
		Context:      ctx,
	}, answerHash, nil
}

func (d *CodeExecutionDriver) Verify(answerHash, submitted string) (bool, error) {
	return VerifyAnswerHash(answerHash, submitted), nil
}
