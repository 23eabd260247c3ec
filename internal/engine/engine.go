// Package engine coordinates challenge generation, verification, PoMI model
// identification, timing analysis, and token issuance.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/agentauth/agentauth/internal/challenge"
	"github.com/agentauth/agentauth/internal/crypto"
	"github.com/agentauth/agentauth/internal/pomi"
	"github.com/agentauth/agentauth/internal/store"
	"github.com/agentauth/agentauth/internal/timing"
	"github.com/agentauth/agentauth/internal/token"
)

// PomiConfig controls canary injection and classification.
type PomiConfig struct {
	Enabled             bool     `yaml:"enabled"`
	CanaryCount         int      `yaml:"canary_count"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	ModelFamilies       []string `yaml:"model_families"`
}

// TimingSettings controls timing analysis and session tracking.
type TimingSettings struct {
	Enabled        bool           `yaml:"enabled"`
	SessionTracker bool           `yaml:"session_tracker"`
	Config         *timing.Config `yaml:"config"`
}

// Config is the engine configuration. Zero values fall back to defaults in
// NewEngine.
type Config struct {
	Secret          string
	TTLSeconds      int64
	TokenTTLSeconds int64
	Difficulty      challenge.Difficulty
	MinScore        float64
	Pomi            PomiConfig
	Timing          TimingSettings
}

// Engine is the server-side AgentAuth challenge engine.
type Engine struct {
	config   Config
	registry *challenge.Registry
	store    store.ChallengeStore
	broker   *token.Broker

	injector   *pomi.Injector
	classifier *pomi.Classifier
	analyzer   *timing.Analyzer
	tracker    *timing.SessionTracker

	logger *log.Logger
}

// NewEngine creates an engine with the built-in driver registry. PoMI and
// timing subsystems are constructed only when enabled.
func NewEngine(config Config, challengeStore store.ChallengeStore) *Engine {
	if config.TTLSeconds == 0 {
		config.TTLSeconds = 30
	}
	if config.TokenTTLSeconds == 0 {
		config.TokenTTLSeconds = 3600
	}
	if config.Difficulty == "" {
		config.Difficulty = challenge.DifficultyMedium
	}
	if config.MinScore == 0 {
		config.MinScore = 0.7
	}
	if config.Pomi.Enabled && config.Pomi.CanaryCount == 0 {
		config.Pomi.CanaryCount = 2
	}
	if config.Pomi.Enabled && len(config.Pomi.ModelFamilies) == 0 {
		config.Pomi.ModelFamilies = pomi.DefaultModelFamilies
	}

	e := &Engine{
		config:   config,
		registry: challenge.NewDefaultRegistry(),
		store:    challengeStore,
		broker:   token.NewBroker(config.Secret),
		logger:   log.New(os.Stdout, "[ENGINE] ", log.LstdFlags),
	}

	if config.Pomi.Enabled {
		e.injector = pomi.NewInjector(pomi.NewCatalog(nil))
		e.classifier = pomi.NewClassifier(config.Pomi.ModelFamilies, &pomi.ClassifierOptions{
			ConfidenceThreshold: config.Pomi.ConfidenceThreshold,
		})
	}
	if config.Timing.Enabled {
		e.analyzer = timing.NewAnalyzer(config.Timing.Config)
		if config.Timing.SessionTracker {
			e.tracker = timing.NewSessionTracker()
		}
	}
	return e
}

// Registry exposes the driver registry for custom driver registration.
func (e *Engine) Registry() *challenge.Registry {
	return e.registry
}

// MinScore is the configured guard threshold.
func (e *Engine) MinScore() float64 {
	return e.config.MinScore
}

// Broker exposes the token broker for the guard and verify endpoints.
func (e *Engine) Broker() *token.Broker {
	return e.broker
}

// Init creates a challenge, stores it under the configured TTL, and returns
// the handle the client needs to fetch and solve it.
func (e *Engine) Init(ctx context.Context, options *InitOptions) (*InitResult, error) {
	difficulty := e.config.Difficulty
	var dimensions []challenge.Dimension
	if options != nil {
		if options.Difficulty != nil {
			difficulty = *options.Difficulty
		}
		dimensions = options.Dimensions
	}

	selected := e.registry.Select(dimensions, 1)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no challenge drivers registered")
	}
	driver := selected[0]

	payload, answerHash, err := driver.Generate(difficulty)
	if err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}

	var canariesJSON json.RawMessage
	if e.injector != nil && e.config.Pomi.CanaryCount > 0 {
		result, err := e.injector.Inject(*payload, e.config.Pomi.CanaryCount, nil)
		if err != nil {
			return nil, fmt.Errorf("inject canaries: %w", err)
		}
		payload = &result.Payload
		canariesJSON, err = json.Marshal(result.Injected)
		if err != nil {
			return nil, fmt.Errorf("encode canaries: %w", err)
		}
	}

	id := crypto.GenerateChallengeID()
	sessionToken := crypto.GenerateSessionToken()
	now := time.Now()

	record := &challenge.Record{
		ID:                id,
		Type:              driver.Name(),
		Difficulty:        difficulty,
		Dimensions:        driver.Dimensions(),
		Payload:           *payload,
		AnswerHash:        answerHash,
		SessionToken:      sessionToken,
		CreatedAt:         now.Unix(),
		CreatedAtServerMs: now.UnixMilli(),
		ExpiresAt:         now.Unix() + e.config.TTLSeconds,
		MaxAttempts:       challenge.DefaultMaxAttempts,
		Canaries:          canariesJSON,
	}

	ttl := time.Duration(e.config.TTLSeconds) * time.Second
	if err := e.store.Set(ctx, id, record, ttl); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &InitResult{
		ID:            id,
		SessionToken:  sessionToken,
		ExpiresAt:     record.ExpiresAt,
		TTLSeconds:    e.config.TTLSeconds,
		ChallengeType: record.Type,
		Difficulty:    difficulty,
	}, nil
}

// Fetch returns the public view of a stored challenge, or nil when the id is
// unknown, expired, or the session token does not match. Token comparison is
// constant-time; the payload context never leaves the server.
func (e *Engine) Fetch(ctx context.Context, id, sessionToken string) (*FetchResult, error) {
	record, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	if !crypto.TimingSafeEqual(record.SessionToken, sessionToken) {
		return nil, nil
	}

	public := record.Payload
	public.Context = nil

	return &FetchResult{
		ID:         record.ID,
		Payload:    public,
		Difficulty: record.Difficulty,
		Dimensions: record.Dimensions,
		CreatedAt:  record.CreatedAt,
		ExpiresAt:  record.ExpiresAt,
	}, nil
}

// Solve consumes a challenge: HMAC check, single-use deletion, answer
// verification, timing and pattern analysis, model classification, scoring,
// and token issuance. All rejections are data, not errors.
func (e *Engine) Solve(ctx context.Context, id string, input *SolveInput) (*SolveResult, error) {
	zero := token.CapabilityScore{}

	record, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if record == nil {
		return &SolveResult{Success: false, Score: zero, Reason: FailExpired}, nil
	}

	fail := func(reason string, ta *timing.Analysis) *SolveResult {
		return &SolveResult{
			ChallengeType:  record.Type,
			Difficulty:     record.Difficulty,
			Success:        false,
			Score:          zero,
			Reason:         reason,
			TimingAnalysis: ta,
		}
	}

	expected := crypto.HMACSHA256Hex(input.Answer, record.SessionToken)
	if !crypto.TimingSafeEqual(expected, input.HMAC) {
		return fail(FailInvalidHMAC, nil), nil
	}

	// Single-use: the record is gone before the answer is even checked. When
	// another solve already consumed it, this one is a replay.
	deleted, err := e.store.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete challenge: %w", err)
	}
	if !deleted {
		return fail(FailExpired, nil), nil
	}

	driver := e.registry.Get(record.Type)
	if driver == nil {
		// Unknown type is reported as a wrong answer to avoid leaking
		// internals.
		return fail(FailWrongAnswer, nil), nil
	}

	correct, err := driver.Verify(record.AnswerHash, input.Answer)
	if err != nil {
		return nil, fmt.Errorf("verify answer: %w", err)
	}
	if !correct {
		return fail(FailWrongAnswer, nil), nil
	}

	var timingAnalysis *timing.Analysis
	if e.analyzer != nil {
		baseElapsed := float64(time.Now().UnixMilli() - record.CreatedAtServerMs)
		rttMs := 0.0
		if input.ClientRTTMs > 0 {
			rttMs = math.Min(input.ClientRTTMs, baseElapsed*0.5)
		}
		ta := e.analyzer.Analyze(timing.AnalyzeParams{
			ElapsedMs:     baseElapsed - rttMs,
			ChallengeType: record.Type,
			Difficulty:    record.Difficulty,
			RTTMs:         rttMs,
		})
		timingAnalysis = &ta

		if ta.Zone == string(timing.ZoneTooFast) {
			e.logger.Printf("⚠️ challenge %s rejected: %s", id, ta.Details)
			return fail(FailTooFast, timingAnalysis), nil
		}
		if ta.Zone == string(timing.ZoneTimeout) {
			return fail(FailTimeout, timingAnalysis), nil
		}
	}

	var patternAnalysis *timing.PatternAnalysis
	if e.analyzer != nil && len(input.StepTimings) > 0 {
		pa := e.analyzer.AnalyzePattern(input.StepTimings)
		patternAnalysis = &pa
	}

	score := computeScore(record.Dimensions, timingAnalysis, patternAnalysis)

	var modelIdentity *pomi.ModelIdentification
	if e.classifier != nil && len(record.Canaries) > 0 {
		var canaries []pomi.Canary
		if err := json.Unmarshal(record.Canaries, &canaries); err != nil {
			return nil, fmt.Errorf("decode canaries: %w", err)
		}
		if len(canaries) > 0 {
			mi := e.classifier.Classify(canaries, input.CanaryResponses)
			modelIdentity = &mi
		}
	}

	modelFamily := "unknown"
	if modelIdentity != nil && modelIdentity.Family != "unknown" {
		modelFamily = modelIdentity.Family
	} else if input.Metadata != nil && input.Metadata.Model != "" {
		modelFamily = input.Metadata.Model
	}

	var anomalies []timing.SessionAnomaly
	if e.tracker != nil && timingAnalysis != nil {
		sessionKey := id
		if input.Metadata != nil && input.Metadata.Model != "" {
			sessionKey = input.Metadata.Model
		}
		e.tracker.Record(sessionKey, timingAnalysis.ElapsedMs, timing.Zone(timingAnalysis.Zone))
		anomalies = e.tracker.Analyze(sessionKey)
	}

	signed, err := e.broker.Sign(&token.SignInput{
		Sub:          id,
		Capabilities: score,
		ModelFamily:  modelFamily,
		ChallengeIDs: []string{id},
	}, e.config.TokenTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &SolveResult{
		ChallengeType:    record.Type,
		Difficulty:       record.Difficulty,
		Success:          true,
		Score:            score,
		Token:            signed,
		ModelIdentity:    modelIdentity,
		TimingAnalysis:   timingAnalysis,
		PatternAnalysis:  patternAnalysis,
		SessionAnomalies: anomalies,
	}, nil
}

// VerifyToken validates a capability token. Verification failures yield
// Valid=false, never an error.
func (e *Engine) VerifyToken(tokenString string) (*VerifyTokenResult, error) {
	claims, err := e.broker.Verify(tokenString)
	if err != nil {
		return &VerifyTokenResult{Valid: false}, nil
	}
	return &VerifyTokenResult{
		Valid:        true,
		Capabilities: &claims.Capabilities,
		ModelFamily:  claims.ModelFamily,
		IssuedAt:     claims.IssuedAt.Unix(),
		ExpiresAt:    claims.ExpiresAt.Unix(),
	}, nil
}

func computeScore(dims []challenge.Dimension, ta *timing.Analysis, pa *timing.PatternAnalysis) token.CapabilityScore {
	penalty := 0.0
	zone := ""
	if ta != nil {
		penalty = ta.Penalty
		zone = ta.Zone
	}
	patternPenalty := 0.0
	if pa != nil && pa.Verdict == "artificial" {
		patternPenalty = 0.3
	}

	reasoning := 0.5
	if challenge.HasDimension(dims, challenge.DimensionReasoning) {
		reasoning = 0.9
	}
	execution := 0.5
	if challenge.HasDimension(dims, challenge.DimensionExecution) {
		execution = 0.95
	}

	speed := round3((1 - penalty) * 0.95)

	autonomy := 0.9
	if zone == string(timing.ZoneHuman) || zone == string(timing.ZoneSuspicious) {
		autonomy = (1 - penalty) * 0.9
	}
	autonomy = round3(autonomy * (1 - patternPenalty))

	consistency := 0.9
	if challenge.HasDimension(dims, challenge.DimensionMemory) {
		consistency = 0.92
	}
	consistency = round3(consistency * (1 - patternPenalty))

	return token.CapabilityScore{
		Reasoning:   reasoning,
		Execution:   execution,
		Autonomy:    autonomy,
		Speed:       speed,
		Consistency: consistency,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
