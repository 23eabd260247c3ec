package pomi

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`-?\d+\.?\d*`)

// Extractor turns raw canary responses into scored evidence.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract evaluates every injected canary that has a response. Canaries the
// agent ignored produce no evidence entry.
func (e *Extractor) Extract(injected []Canary, responses map[string]string) []CanaryEvidence {
	if responses == nil {
		return nil
	}

	var evidence []CanaryEvidence
	for _, canary := range injected {
		response, ok := responses[canary.ID]
		if !ok {
			continue
		}
		evidence = append(evidence, e.evaluate(canary, response))
	}
	return evidence
}

func (e *Extractor) evaluate(canary Canary, observed string) CanaryEvidence {
	switch canary.Analysis.Type {
	case AnalysisExactMatch:
		return e.evaluateExactMatch(canary, observed)
	case AnalysisPattern:
		return e.evaluatePattern(canary, observed)
	case AnalysisStatistical:
		return e.evaluateStatistical(canary, observed)
	}
	return CanaryEvidence{CanaryID: canary.ID, Observed: observed}
}

func (e *Extractor) evaluateExactMatch(canary Canary, observed string) CanaryEvidence {
	bestMatch := ""
	match := false

	for _, expected := range canary.Analysis.Expected {
		if strings.EqualFold(strings.TrimSpace(observed), strings.TrimSpace(expected)) {
			bestMatch = expected
			match = true
			break
		}
	}
	if !match {
		for _, v := range canary.Analysis.Expected {
			bestMatch = v
			break
		}
	}

	confidence := canary.ConfidenceWeight * 0.3
	if match {
		confidence = canary.ConfidenceWeight
	}

	return CanaryEvidence{
		CanaryID:               canary.ID,
		Observed:               observed,
		Expected:               bestMatch,
		Match:                  match,
		ConfidenceContribution: confidence,
	}
}

func (e *Extractor) evaluatePattern(canary Canary, observed string) CanaryEvidence {
	bestPattern := ""
	match := false

	for _, pattern := range canary.Analysis.Patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		if re.MatchString(observed) {
			bestPattern = pattern
			match = true
			break
		}
	}
	if !match {
		for _, v := range canary.Analysis.Patterns {
			bestPattern = v
			break
		}
	}

	confidence := canary.ConfidenceWeight * 0.2
	if match {
		confidence = canary.ConfidenceWeight
	}

	return CanaryEvidence{
		CanaryID:               canary.ID,
		Observed:               observed,
		Expected:               bestPattern,
		Match:                  match,
		ConfidenceContribution: confidence,
	}
}

func (e *Extractor) evaluateStatistical(canary Canary, observed string) CanaryEvidence {
	numValue := math.NaN()
	if numMatch := numberPattern.FindString(observed); numMatch != "" {
		if v, err := strconv.ParseFloat(numMatch, 64); err == nil {
			numValue = v
		}
	}

	bestDist := ""
	match := false

	if !math.IsNaN(numValue) {
		for family, dist := range canary.Analysis.Distributions {
			// Within two standard deviations of any family's mean.
			if math.Abs(numValue-dist.Mean) <= 2*dist.StdDev {
				bestDist = fmt.Sprintf("%s: mean=%g, stddev=%g", family, dist.Mean, dist.StdDev)
				match = true
				break
			}
		}
	}
	if !match {
		for family, dist := range canary.Analysis.Distributions {
			bestDist = fmt.Sprintf("%s: mean=%g, stddev=%g", family, dist.Mean, dist.StdDev)
			break
		}
	}

	confidence := canary.ConfidenceWeight * 0.1
	if match {
		confidence = canary.ConfidenceWeight * 0.7
	}

	return CanaryEvidence{
		CanaryID:               canary.ID,
		Observed:               observed,
		Expected:               bestDist,
		Match:                  match,
		ConfidenceContribution: confidence,
	}
}
