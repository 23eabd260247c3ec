package timing

import (
	"fmt"
	"math"

	"github.com/agentauth/agentauth/internal/challenge"
)

// AnalyzeParams identifies one solve latency to classify.
type AnalyzeParams struct {
	ElapsedMs     float64
	ChallengeType string
	Difficulty    challenge.Difficulty
	RTTMs         float64
}

// Analyzer classifies response timing into zones and computes penalties,
// z-scores, and confidence levels against per-type baselines.
type Analyzer struct {
	baselines map[string]Baseline
	defaults  struct {
		tooFast float64
		aiLower float64
		aiUpper float64
		human   float64
		timeout float64
	}
}

// NewAnalyzer creates an analyzer from the given config; nil uses the
// built-in baselines and default boundaries.
func NewAnalyzer(config *Config) *Analyzer {
	a := &Analyzer{baselines: make(map[string]Baseline)}

	all := DefaultBaselines
	if config != nil && len(config.Baselines) > 0 {
		all = config.Baselines
	}
	for _, b := range all {
		a.baselines[baselineKey(b.ChallengeType, b.Difficulty)] = b
	}

	a.defaults.tooFast = 50
	a.defaults.aiLower = 50
	a.defaults.aiUpper = 2000
	a.defaults.human = 10000
	a.defaults.timeout = 30000

	if config != nil {
		if config.DefaultTooFastMs > 0 {
			a.defaults.tooFast = config.DefaultTooFastMs
		}
		if config.DefaultAILowerMs > 0 {
			a.defaults.aiLower = config.DefaultAILowerMs
		}
		if config.DefaultAIUpperMs > 0 {
			a.defaults.aiUpper = config.DefaultAIUpperMs
		}
		if config.DefaultHumanMs > 0 {
			a.defaults.human = config.DefaultHumanMs
		}
		if config.DefaultTimeoutMs > 0 {
			a.defaults.timeout = config.DefaultTimeoutMs
		}
	}
	return a
}

func baselineKey(challengeType string, difficulty challenge.Difficulty) string {
	return fmt.Sprintf("%s:%s", challengeType, difficulty)
}

// Analyze classifies the elapsed time into a zone. A positive RTT widens the
// AI-upper and human boundaries by max(rtt/2, 200ms) so network latency is
// not mistaken for slow solving; the z-score stays on the raw baseline.
func (a *Analyzer) Analyze(params AnalyzeParams) Analysis {
	baseline, ok := a.baselines[baselineKey(params.ChallengeType, params.Difficulty)]
	if !ok {
		baseline = a.defaultBaseline()
	}

	tolerance := 0.0
	if params.RTTMs > 0 {
		tolerance = math.Max(params.RTTMs*0.5, 200)
	}
	adjusted := baseline
	if tolerance > 0 {
		adjusted.AIUpperMs = baseline.AIUpperMs + tolerance
		adjusted.HumanMs = baseline.HumanMs + tolerance
	}

	zone := classifyZone(params.ElapsedMs, adjusted)
	penalty := computePenalty(zone, params.ElapsedMs, adjusted)
	zScore := computeZScore(params.ElapsedMs, baseline)
	confidence := computeConfidence(params.ElapsedMs, adjusted, zone)
	details := describeZone(zone, params.ElapsedMs, adjusted)

	// Elapsed times landing on exact multiples of 100ms inside the AI zone
	// smell of an artificial delay.
	isRound := int(params.ElapsedMs)%500 == 0 || int(params.ElapsedMs)%100 == 0
	if isRound && zone == ZoneAI && params.ElapsedMs > 0 {
		confidence = round3(confidence * 0.85)
		details += " [round-number timing detected]"
	}

	return Analysis{
		ElapsedMs:  params.ElapsedMs,
		Zone:       string(zone),
		Confidence: confidence,
		ZScore:     math.Round(zScore*100) / 100,
		Penalty:    round3(penalty),
		Details:    details,
	}
}

// AnalyzePattern examines per-step timings from a single solve for
// artificially uniform or round-number spacing.
func (a *Analyzer) AnalyzePattern(stepTimings []float64) PatternAnalysis {
	if len(stepTimings) < 2 {
		return PatternAnalysis{Trend: "constant", Verdict: "inconclusive"}
	}

	mean := 0.0
	for _, t := range stepTimings {
		mean += t
	}
	mean /= float64(len(stepTimings))

	variance := 0.0
	for _, t := range stepTimings {
		diff := t - mean
		variance += diff * diff
	}
	variance /= float64(len(stepTimings))
	std := math.Sqrt(variance)

	vc := 0.0
	if mean > 0 {
		vc = std / mean
	}

	roundCount := 0
	for _, t := range stepTimings {
		ti := int(t)
		if ti%500 == 0 || (ti%100 == 0 && ti%500 != 0) {
			roundCount++
		}
	}
	roundRatio := float64(roundCount) / float64(len(stepTimings))

	verdict := "inconclusive"
	if vc < 0.05 && len(stepTimings) >= 3 {
		verdict = "artificial"
	} else if roundRatio > 0.5 {
		verdict = "artificial"
	} else if vc > 0.1 {
		verdict = "natural"
	}

	return PatternAnalysis{
		VarianceCoefficient: round3(vc),
		Trend:               detectTrend(stepTimings),
		RoundNumberRatio:    math.Round(roundRatio*100) / 100,
		Verdict:             verdict,
	}
}

func (a *Analyzer) defaultBaseline() Baseline {
	return Baseline{
		ChallengeType: "default",
		Difficulty:    challenge.DifficultyMedium,
		MeanMs:        (a.defaults.aiLower + a.defaults.aiUpper) / 2,
		StdMs:         (a.defaults.aiUpper - a.defaults.aiLower) / 4,
		TooFastMs:     a.defaults.tooFast,
		AILowerMs:     a.defaults.aiLower,
		AIUpperMs:     a.defaults.aiUpper,
		HumanMs:       a.defaults.human,
		TimeoutMs:     a.defaults.timeout,
	}
}

func classifyZone(elapsed float64, b Baseline) Zone {
	switch {
	case elapsed < b.TooFastMs:
		return ZoneTooFast
	case elapsed <= b.AIUpperMs:
		return ZoneAI
	case elapsed <= b.HumanMs:
		return ZoneSuspicious
	case elapsed <= b.TimeoutMs:
		return ZoneHuman
	}
	return ZoneTimeout
}

func computePenalty(zone Zone, elapsed float64, b Baseline) float64 {
	switch zone {
	case ZoneTooFast, ZoneTimeout:
		return 1.0
	case ZoneAI:
		return 0.0
	case ZoneSuspicious:
		span := b.HumanMs - b.AIUpperMs
		if span <= 0 {
			return 0.5
		}
		position := (elapsed - b.AIUpperMs) / span
		return 0.3 + position*0.4
	case ZoneHuman:
		return 0.9
	}
	return 0.0
}

func computeZScore(elapsed float64, b Baseline) float64 {
	if b.StdMs == 0 {
		return 0
	}
	return (elapsed - b.MeanMs) / b.StdMs
}

func computeConfidence(elapsed float64, b Baseline, zone Zone) float64 {
	switch zone {
	case ZoneTooFast:
		return math.Max(0.5, 1-elapsed/b.TooFastMs)
	case ZoneAI:
		// Degenerate baselines with no spread would divide by zero here.
		if b.StdMs == 0 {
			if elapsed == b.MeanMs {
				return 1
			}
			return 0.5
		}
		normalizedDist := math.Abs(elapsed-b.MeanMs) / b.StdMs
		return math.Max(0.5, math.Min(1, 1-normalizedDist*0.15))
	case ZoneSuspicious:
		span := b.HumanMs - b.AIUpperMs
		if span <= 0 {
			return 0.4
		}
		return 0.4 + 0.2*((elapsed-b.AIUpperMs)/span)
	case ZoneHuman:
		return 0.8
	case ZoneTimeout:
		return 0.95
	}
	return 0.5
}

func describeZone(zone Zone, elapsed float64, b Baseline) string {
	ms := int(math.Round(elapsed))
	switch zone {
	case ZoneTooFast:
		return fmt.Sprintf("Response time %dms is below %.0fms threshold -- likely pre-computed or scripted", ms, b.TooFastMs)
	case ZoneAI:
		return fmt.Sprintf("Response time %dms is within expected AI range [%.0fms, %.0fms]", ms, b.AILowerMs, b.AIUpperMs)
	case ZoneSuspicious:
		return fmt.Sprintf("Response time %dms exceeds AI range -- possible human assistance", ms)
	case ZoneHuman:
		return fmt.Sprintf("Response time %dms exceeds %.0fms -- likely human solver", ms, b.HumanMs)
	case ZoneTimeout:
		return fmt.Sprintf("Response time %dms exceeds timeout threshold of %.0fms", ms, b.TimeoutMs)
	}
	return ""
}

// detectTrend fits a least-squares slope over the step index and buckets the
// mean-normalized slope.
func detectTrend(timings []float64) string {
	if len(timings) < 3 {
		return "variable"
	}

	n := float64(len(timings))
	xMean := (n - 1) / 2
	yMean := 0.0
	for _, t := range timings {
		yMean += t
	}
	yMean /= n

	numerator := 0.0
	denominator := 0.0
	for i, t := range timings {
		xi := float64(i) - xMean
		yi := t - yMean
		numerator += xi * yi
		denominator += xi * xi
	}
	if denominator == 0 {
		return "constant"
	}
	slope := numerator / denominator

	normalized := 0.0
	if yMean > 0 {
		normalized = slope / yMean
	}

	switch {
	case math.Abs(normalized) < 0.05:
		return "constant"
	case normalized > 0.1:
		return "increasing"
	case normalized < -0.1:
		return "decreasing"
	}
	return "variable"
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
