package challenge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/agentauth/agentauth/internal/crypto"
)

// ============================================================================
// ambiguous-logic: deliberately underspecified instructions
// ============================================================================

// scoredAnswer is an acceptable interpretation with its plausibility score.
// Score 1.0 marks the primary interpretation.
type scoredAnswer struct {
	Answer string  `json:"answer"` // hex-encoded result bytes
	Score  float64 `json:"score"`
}

// ScoredAnswerHash is the exported (hash, score) pair placed in payload
// context so a partial-credit verifier can be added without a wire change.
type ScoredAnswerHash struct {
	AnswerHash string  `json:"hash"`
	Score      float64 `json:"score"`
}

func xorAll(data []byte, key int) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ byte(key&0xFF)
	}
	return out
}

func sortAsc(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func reversed(data []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[len(data)-1-i]
	}
	return out
}

type ambiguousTemplate struct {
	name     string
	generate func(data []byte, difficulty Difficulty) (string, []scoredAnswer)
}

// lucky-number: "the" lucky number is 7; alternates read 3, 8, or 13 as lucky.
func luckyNumberTemplate(data []byte, difficulty Difficulty) (string, []scoredAnswer) {
	byteCount := len(data)

	resultFor := func(lucky int) []byte {
		if byteCount == lucky {
			return xorAll(data, 7)
		}
		return xorAll(data, 13)
	}

	answers := []scoredAnswer{{Answer: crypto.ToHex(resultFor(7)), Score: 1.0}}

	if difficulty != DifficultyEasy {
		altScores := map[int]float64{3: 0.6, 8: 0.6, 13: 0.7}
		for _, lucky := range []int{3, 8, 13} {
			alt := crypto.ToHex(resultFor(lucky))
			if alt != answers[0].Answer {
				answers = append(answers, scoredAnswer{Answer: alt, Score: altScores[lucky]})
			}
		}
	}

	phrasings := []string{
		fmt.Sprintf("You are given %d bytes of data (base64-encoded).\nIf the number of bytes is a lucky number, XOR each byte with 7.\nOtherwise, XOR each byte with 13.\nReturn the hex-encoded result.", byteCount),
		fmt.Sprintf("The data below contains %d bytes.\nWhen the byte count is lucky, apply XOR 7 to every byte.\nWhen unlucky, apply XOR 13 instead.\nProvide your answer as a hex string.", byteCount),
	}
	return pickOne(phrasings), answers
}

// famous-constant: pi (31) is primary, e (27) and phi (16) are alternates.
func famousConstantTemplate(data []byte, _ Difficulty) (string, []scoredAnswer) {
	answers := []scoredAnswer{
		{Answer: crypto.ToHex(xorAll(data, 31)), Score: 1.0},
		{Answer: crypto.ToHex(xorAll(data, 27)), Score: 0.8},
		{Answer: crypto.ToHex(xorAll(data, 16)), Score: 0.6},
	}

	phrasings := []string{
		"XOR each byte of the provided data with the most famous mathematical constant's first two digits as an integer.\nReturn the hex-encoded result.",
		"Take the universally recognized mathematical constant, extract its first two digits as a whole number, and XOR every byte of the data with that number.\nProvide the hex-encoded output.",
	}
	return pickOne(phrasings), answers
}

// big-small: "big" means >127; alternates use 100 and 200 as thresholds.
func bigSmallTemplate(data []byte, _ Difficulty) (string, []scoredAnswer) {
	resultFor := func(threshold byte) []byte {
		if data[0] > threshold {
			return reversed(data)
		}
		return sortAsc(data)
	}

	answers := []scoredAnswer{{Answer: crypto.ToHex(resultFor(127)), Score: 1.0}}

	alt100 := crypto.ToHex(resultFor(100))
	alt200 := crypto.ToHex(resultFor(200))
	if alt100 != answers[0].Answer {
		answers = append(answers, scoredAnswer{Answer: alt100, Score: 0.8})
	}
	if alt200 != answers[0].Answer && alt200 != alt100 {
		answers = append(answers, scoredAnswer{Answer: alt200, Score: 0.7})
	}

	phrasings := []string{
		"If the first byte of the data is big, reverse the entire byte array.\nOtherwise, sort all bytes in ascending order.\nReturn the hex-encoded result.",
		"Examine the first byte. If it is a big value, flip the array end-to-end.\nIf it is small, arrange bytes from lowest to highest.\nProvide the hex-encoded output.",
	}
	return pickOne(phrasings), answers
}

var ambiguousTemplates = []ambiguousTemplate{
	{name: "lucky-number", generate: luckyNumberTemplate},
	{name: "famous-constant", generate: famousConstantTemplate},
	{name: "big-small", generate: bigSmallTemplate},
}

type ambiguousProfile struct {
	dataSize      int
	templateCount int
}

var ambiguousProfiles = map[Difficulty]ambiguousProfile{
	DifficultyEasy:        {dataSize: 8, templateCount: 1},
	DifficultyMedium:      {dataSize: 16, templateCount: 1},
	DifficultyHard:        {dataSize: 32, templateCount: 2},
	DifficultyAdversarial: {dataSize: 64, templateCount: 3},
}

// AmbiguousLogicDriver stresses disambiguation: instructions leave terms like
// "lucky number" or "big" undefined, and every defensible reading is exported
// as a scored alternative. Only the primary reading verifies.
type AmbiguousLogicDriver struct{}

func (d *AmbiguousLogicDriver) Name() string { return "ambiguous-logic" }

func (d *AmbiguousLogicDriver) Dimensions() []Dimension {
	return []Dimension{DimensionReasoning, DimensionAmbiguity}
}

func (d *AmbiguousLogicDriver) EstimatedHumanTimeMs() int64 { return 45000 }
func (d *AmbiguousLogicDriver) EstimatedAITimeMs() int64    { return 1000 }

func (d *AmbiguousLogicDriver) Generate(difficulty Difficulty) (*Payload, string, error) {
	profile, ok := ambiguousProfiles[difficulty]
	if !ok {
		profile = ambiguousProfiles[DifficultyMedium]
	}
	data := crypto.RandomBytes(profile.dataSize)

	templates := shuffled(ambiguousTemplates)
	if profile.templateCount < len(templates) {
		templates = templates[:profile.templateCount]
	}

	if len(templates) == 1 {
		return d.generateSingle(templates[0], data, difficulty)
	}
	return d.generateChained(templates, data, difficulty)
}

func (d *AmbiguousLogicDriver) Verify(answerHash, submitted string) (bool, error) {
	return VerifyAnswerHash(answerHash, submitted), nil
}

func (d *AmbiguousLogicDriver) generateSingle(tmpl ambiguousTemplate, data []byte, difficulty Difficulty) (*Payload, string, error) {
	instructions, answers := tmpl.generate(data, difficulty)
	answerHash := crypto.SHA256Hex([]byte(answers[0].Answer))

	ctx, err := json.Marshal(map[string]any{
		"template_name":  tmpl.name,
		"primary_answer": answers[0].Answer,
		"scored_answers": hashScoredAnswers(answers),
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal context: %w", err)
	}

	return &Payload{
		Type:         d.Name(),
		Instructions: instructions,
		Data:         base64.StdEncoding.EncodeToString(data),
		Steps:        1,
		Context:      ctx,
	}, answerHash, nil
}

// generateChained feeds the primary answer of template k into template k+1.
// Alternative interpretations propagate as a Cartesian product with
// multiplied scores, deduplicated keeping the maximum.
func (d *AmbiguousLogicDriver) generateChained(templates []ambiguousTemplate, data []byte, difficulty Difficulty) (*Payload, string, error) {
	currentData := data
	var parts []string
	var acceptable []scoredAnswer

	for i, tmpl := range templates {
		instructions, answers := tmpl.generate(currentData, difficulty)
		parts = append(parts, fmt.Sprintf("--- Part %d ---\n%s", i+1, instructions))

		if i == 0 {
			acceptable = answers
		} else {
			var chained []scoredAnswer
			for _, prev := range acceptable {
				prevBytes, err := crypto.FromHex(prev.Answer)
				if err != nil {
					return nil, "", fmt.Errorf("decode chained answer: %w", err)
				}
				_, next := tmpl.generate(prevBytes, difficulty)
				for _, ans := range next {
					chained = append(chained, scoredAnswer{Answer: ans.Answer, Score: prev.Score * ans.Score})
				}
			}
			acceptable = chained
		}

		nextInput, err := crypto.FromHex(acceptable[0].Answer)
		if err != nil {
			return nil, "", fmt.Errorf("decode primary answer: %w", err)
		}
		currentData = nextInput
	}

	best := make(map[string]float64)
	for _, ans := range acceptable {
		if s, ok := best[ans.Answer]; !ok || ans.Score > s {
			best[ans.Answer] = ans.Score
		}
	}
	deduped := make([]scoredAnswer, 0, len(best))
	for answer, score := range best {
		deduped = append(deduped, scoredAnswer{Answer: answer, Score: score})
	}
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Score != deduped[j].Score {
			return deduped[i].Score > deduped[j].Score
		}
		return deduped[i].Answer < deduped[j].Answer
	})

	answerHash := crypto.SHA256Hex([]byte(deduped[0].Answer))

	header := "This is a multi-part ambiguous logic challenge.\nApply each part's transformation in order, using the output of the previous part as input for the next.\n\n"
	instructions := header
	for i, part := range parts {
		if i > 0 {
			instructions += "\n\n"
		}
		instructions += part
	}

	names := make([]string, len(templates))
	for i, t := range templates {
		names[i] = t.name
	}
	ctx, err := json.Marshal(map[string]any{
		"template_names": names,
		"primary_answer": deduped[0].Answer,
		"scored_answers": hashScoredAnswers(deduped),
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal context: %w", err)
	}

	return &Payload{
		Type:         d.Name(),
		Instructions: instructions,
		Data:         base64.StdEncoding.EncodeToString(data),
		Steps:        len(templates),
		Context:      ctx,
	}, answerHash, nil
}

func hashScoredAnswers(answers []scoredAnswer) []ScoredAnswerHash {
	out := make([]ScoredAnswerHash, len(answers))
	for i, ans := range answers {
		out[i] = ScoredAnswerHash{
			AnswerHash: crypto.SHA256Hex([]byte(ans.Answer)),
			Score:      ans.Score,
		}
	}
	return out
}
