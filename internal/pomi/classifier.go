package pomi

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ClassifierOptions configures the model classifier.
type ClassifierOptions struct {
	ConfidenceThreshold float64
}

// Classifier performs Bayesian inference over model family hypotheses from
// canary evidence.
type Classifier struct {
	families  []string
	threshold float64
	extractor *Extractor
}

// NewClassifier creates a classifier over the given model families. A zero
// threshold defaults to 0.5.
func NewClassifier(families []string, options *ClassifierOptions) *Classifier {
	threshold := 0.5
	if options != nil && options.ConfidenceThreshold > 0 {
		threshold = options.ConfidenceThreshold
	}
	return &Classifier{
		families:  families,
		threshold: threshold,
		extractor: NewExtractor(),
	}
}

// Classify starts from a uniform prior over the families and applies one
// Bayesian update per answered canary, renormalizing after each update to
// avoid underflow. A winner below the confidence threshold is reported as
// "unknown" with the runner-up ranking preserved in Alternatives.
func (c *Classifier) Classify(canaries []Canary, responses map[string]string) ModelIdentification {
	if responses == nil || len(canaries) == 0 {
		return ModelIdentification{Family: "unknown"}
	}

	evidence := c.extractor.Extract(canaries, responses)
	if len(evidence) == 0 {
		return ModelIdentification{Family: "unknown"}
	}

	posteriors := make(map[string]float64, len(c.families))
	for _, family := range c.families {
		posteriors[family] = 1.0 / float64(len(c.families))
	}

	for _, canary := range canaries {
		response, ok := responses[canary.ID]
		if !ok {
			continue
		}
		for _, family := range c.families {
			posteriors[family] *= c.likelihood(canary, response, family)
		}
		normalize(posteriors)
	}

	bestFamily := "unknown"
	bestConfidence := 0.0
	for family, posterior := range posteriors {
		if posterior > bestConfidence {
			bestConfidence = posterior
			bestFamily = family
		}
	}

	var alternatives []ModelAlternative
	for family, posterior := range posteriors {
		if family != bestFamily {
			alternatives = append(alternatives, ModelAlternative{
				Family:     family,
				Confidence: round3(posterior),
			})
		}
	}
	sort.Slice(alternatives, func(i, j int) bool {
		return alternatives[i].Confidence > alternatives[j].Confidence
	})

	if bestConfidence < c.threshold {
		return ModelIdentification{
			Family:     "unknown",
			Confidence: round3(bestConfidence),
			Evidence:   evidence,
			Alternatives: append([]ModelAlternative{
				{Family: bestFamily, Confidence: round3(bestConfidence)},
			}, alternatives...),
		}
	}

	return ModelIdentification{
		Family:       bestFamily,
		Confidence:   round3(bestConfidence),
		Evidence:     evidence,
		Alternatives: alternatives,
	}
}

// likelihood is P(response | family) for one canary. Weights scale how far
// a match or miss moves the posterior away from the neutral 0.5.
func (c *Classifier) likelihood(canary Canary, response, family string) float64 {
	weight := canary.ConfidenceWeight

	switch canary.Analysis.Type {
	case AnalysisExactMatch:
		expected, ok := canary.Analysis.Expected[family]
		if !ok {
			return 0.5
		}
		if strings.EqualFold(strings.TrimSpace(response), strings.TrimSpace(expected)) {
			return 0.5 + 0.5*weight
		}
		return 0.5 - 0.4*weight

	case AnalysisPattern:
		pattern, ok := canary.Analysis.Patterns[family]
		if !ok {
			return 0.5
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return 0.5
		}
		if re.MatchString(response) {
			return 0.5 + 0.45*weight
		}
		return 0.5 - 0.35*weight

	case AnalysisStatistical:
		dist, ok := canary.Analysis.Distributions[family]
		if !ok {
			return 0.5
		}
		numMatch := numberPattern.FindString(response)
		if numMatch == "" {
			return 0.5
		}
		value, err := strconv.ParseFloat(numMatch, 64)
		if err != nil {
			return 0.5
		}
		pdf := gaussianPdf(value, dist.Mean, dist.StdDev)
		maxPdf := gaussianPdf(dist.Mean, dist.Mean, dist.StdDev)
		return 0.1 + 0.8*(pdf/maxPdf)*weight
	}
	return 0.5
}

func gaussianPdf(x, mean, stddev float64) float64 {
	z := (x - mean) / stddev
	return math.Exp(-0.5*z*z) / (stddev * math.Sqrt(2*math.Pi))
}

func normalize(posteriors map[string]float64) {
	sum := 0.0
	for _, v := range posteriors {
		sum += v
	}
	if sum == 0 {
		for k := range posteriors {
			posteriors[k] = 1.0 / float64(len(posteriors))
		}
		return
	}
	for k, v := range posteriors {
		posteriors[k] = v / sum
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
