// Package pomi implements Proof-of-Model-Identity: canary prompts are
// injected into challenge instructions, the agent's side answers are scored
// as evidence, and a Bayesian classifier turns the evidence into a model
// family identification.
package pomi

// InjectionMethod controls where a canary prompt is placed relative to the
// main challenge instructions.
type InjectionMethod string

const (
	InjectionPrefix   InjectionMethod = "prefix"
	InjectionInline   InjectionMethod = "inline"
	InjectionSuffix   InjectionMethod = "suffix"
	InjectionEmbedded InjectionMethod = "embedded"
)

// Analysis method names used by Canary.Analysis.Type.
const (
	AnalysisExactMatch  = "exact_match"
	AnalysisPattern     = "pattern"
	AnalysisStatistical = "statistical"
)

// Distribution is a Gaussian over the numeric value expected from a model
// family for a statistical canary.
type Distribution struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// CanaryAnalysis describes how a canary's response is evaluated. Exactly one
// of Expected, Patterns, or Distributions is populated, keyed by model family.
type CanaryAnalysis struct {
	Type          string                  `json:"type"`
	Expected      map[string]string       `json:"expected,omitempty"`
	Patterns      map[string]string       `json:"patterns,omitempty"`
	Distributions map[string]Distribution `json:"distributions,omitempty"`
}

// Canary is a short fingerprinting prompt with per-family expectations.
type Canary struct {
	ID               string          `json:"id"`
	Prompt           string          `json:"prompt"`
	InjectionMethod  InjectionMethod `json:"injection_method"`
	Analysis         CanaryAnalysis  `json:"analysis"`
	ConfidenceWeight float64         `json:"confidence_weight"`
}

// CanaryEvidence records the outcome of evaluating one canary response.
type CanaryEvidence struct {
	CanaryID               string  `json:"canary_id"`
	Observed               string  `json:"observed"`
	Expected               string  `json:"expected,omitempty"`
	Match                  bool    `json:"match"`
	ConfidenceContribution float64 `json:"confidence_contribution"`
}

// ModelAlternative is a non-winning hypothesis with its posterior.
type ModelAlternative struct {
	Family     string  `json:"family"`
	Confidence float64 `json:"confidence"`
}

// ModelIdentification is the classifier verdict.
type ModelIdentification struct {
	Family       string             `json:"family"`
	Confidence   float64            `json:"confidence"`
	Evidence     []CanaryEvidence   `json:"evidence,omitempty"`
	Alternatives []ModelAlternative `json:"alternatives,omitempty"`
}

// DefaultModelFamilies are the hypotheses the default catalog discriminates.
var DefaultModelFamilies = []string{
	"gpt-4-class",
	"claude-3-class",
	"gemini-class",
	"llama-class",
	"mistral-class",
}
