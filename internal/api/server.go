// Package api exposes the challenge engine via REST/JSON.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentauth/agentauth/internal/engine"
	"github.com/agentauth/agentauth/internal/events"
	"github.com/agentauth/agentauth/internal/guard"
	"github.com/agentauth/agentauth/internal/middleware"
	"github.com/agentauth/agentauth/internal/monitoring"
)

// Server wires the engine, metrics, live monitor hub, and rate limiter into
// an HTTP surface.
type Server struct {
	engine  *engine.Engine
	metrics *monitoring.Metrics
	hub     *events.Hub
	limiter *middleware.RateLimiter
	logger  *log.Logger
}

// Options carries the optional collaborators; any of them may be nil.
type Options struct {
	Metrics *monitoring.Metrics
	Hub     *events.Hub
	Limiter *middleware.RateLimiter
}

// NewServer creates the HTTP surface around an engine.
func NewServer(e *engine.Engine, opts *Options) *Server {
	s := &Server{
		engine: e,
		logger: log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	if opts != nil {
		s.metrics = opts.Metrics
		s.hub = opts.Hub
		s.limiter = opts.Limiter
	}
	return s
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS Middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// Challenge lifecycle, rate limited per client
	challenge := r.PathPrefix("/v1/challenge").Subrouter()
	if s.limiter != nil {
		challenge.Use(s.limiter.Middleware)
	}
	challenge.HandleFunc("/init", s.handleInit).Methods("POST")
	challenge.HandleFunc("/{id}", s.handleFetch).Methods("GET")
	challenge.HandleFunc("/{id}/solve", s.handleSolve).Methods("POST")

	// Token verification
	r.HandleFunc("/v1/token/verify", s.handleVerifyToken).Methods("GET")

	// Operational endpoints
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if s.hub != nil {
		r.HandleFunc("/v1/monitor/live", s.hub.HandleLive).Methods("GET")
	}

	return r
}

// Start runs the server until the listener fails.
func (s *Server) Start(port string) error {
	addr := ":" + port
	s.logger.Printf("🚀 AgentAuth listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

// HTTPServer returns a configured *http.Server for graceful shutdown setups.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// --- Handlers ---

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var options engine.InitOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&options); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := s.engine.Init(r.Context(), &options)
	if err != nil {
		s.logger.Printf("init failed: %v", err)
		writeError(w, http.StatusInternalServerError, "challenge init failed")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordChallengeIssued(result.ChallengeType, string(result.Difficulty))
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sessionToken := bearerToken(r)
	if sessionToken == "" {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	result, err := s.engine.Fetch(r.Context(), id, sessionToken)
	if err != nil {
		s.logger.Printf("fetch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "challenge fetch failed")
		return
	}
	if result == nil {
		// Unknown id and bad session token are indistinguishable on purpose.
		writeError(w, http.StatusNotFound, "challenge not found")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var input engine.SolveInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	result, err := s.engine.Solve(r.Context(), id, &input)
	if err != nil {
		s.logger.Printf("solve failed: %v", err)
		writeError(w, http.StatusInternalServerError, "challenge solve failed")
		return
	}

	s.recordSolve(id, result, time.Since(start))

	// The verdict ships the PoMI confidence as a header so boundary proxies
	// can act on it without parsing the body.
	if result.ModelIdentity != nil {
		w.Header().Set(guard.HeaderPoMIConfidence, formatFloat(result.ModelIdentity.Confidence))
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	result, err := s.engine.VerifyToken(tokenString)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token verification failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTokenVerified(result.Valid)
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "ok",
		"version": "1",
		"time":    time.Now().Unix(),
	}
	if s.hub != nil {
		health["monitor_subscribers"] = s.hub.SubscriberCount()
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) recordSolve(id string, result *engine.SolveResult, duration time.Duration) {
	outcome := result.Reason
	if result.Success {
		outcome = "success"
	}

	if s.metrics != nil {
		s.metrics.RecordSolve(result.ChallengeType, string(result.Difficulty), outcome, duration.Seconds())
		if result.TimingAnalysis != nil {
			s.metrics.RecordTimingZone(result.TimingAnalysis.Zone)
		}
		if result.ModelIdentity != nil {
			s.metrics.RecordModelIdentification(result.ModelIdentity.Family, result.ModelIdentity.Confidence)
		}
		if result.Success {
			family := "unknown"
			if result.ModelIdentity != nil {
				family = result.ModelIdentity.Family
			}
			s.metrics.RecordTokenIssued(family)
		}
	}

	if s.hub != nil {
		event := events.VerdictEvent{
			ChallengeID: id,
			Type:        result.ChallengeType,
			Difficulty:  string(result.Difficulty),
			Success:     result.Success,
			Reason:      result.Reason,
		}
		if result.ModelIdentity != nil {
			event.ModelFamily = result.ModelIdentity.Family
			event.Confidence = result.ModelIdentity.Confidence
		}
		if result.TimingAnalysis != nil {
			event.TimingZone = result.TimingAnalysis.Zone
			event.ElapsedMs = result.TimingAnalysis.ElapsedMs
		}
		s.hub.Publish(event)
	}
}

// --- Helpers ---

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func formatFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
