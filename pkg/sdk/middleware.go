package sdk

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// GuardOptions tunes the verification middleware.
type GuardOptions struct {
	// MinScore rejects tokens whose average capability score is below this
	// threshold (default 0.7).
	MinScore float64
}

// GuardMiddleware is HTTP middleware for resource servers that do not hold
// the signing secret: each request's bearer token is verified against the
// AgentAuth server.
//
// Usage with standard net/http:
//
//	mux.Handle("/api/", sdk.GuardMiddleware(client, nil, apiHandler))
//
// Usage with Gorilla Mux:
//
//	router.Use(sdk.GuardMiddlewareFunc(client, nil))
func GuardMiddleware(client *Client, opts *GuardOptions, next http.Handler) http.Handler {
	minScore := 0.7
	if opts != nil && opts.MinScore > 0 {
		minScore = opts.MinScore
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			rejectJSON(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		result, err := client.VerifyToken(r.Context(), token)
		if err != nil {
			slog.Warn("AgentAuth verification unavailable", "error", err)
			rejectJSON(w, http.StatusServiceUnavailable, "verification unavailable")
			return
		}
		if !result.Valid {
			rejectJSON(w, http.StatusUnauthorized, "invalid token")
			return
		}

		avg := 0.0
		if result.Capabilities != nil {
			c := result.Capabilities
			avg = (c.Reasoning + c.Execution + c.Autonomy + c.Speed + c.Consistency) / 5
		}
		if avg < minScore {
			w.Header().Set("AgentAuth-Status", "rejected")
			rejectJSON(w, http.StatusForbidden,
				fmt.Sprintf("insufficient capability score: %.2f < %.2f", avg, minScore))
			return
		}

		w.Header().Set("AgentAuth-Status", "verified")
		w.Header().Set("AgentAuth-Score", fmt.Sprintf("%.2f", avg))
		w.Header().Set("AgentAuth-Model-Family", result.ModelFamily)
		next.ServeHTTP(w, r)
	})
}

// GuardMiddlewareFunc returns Gorilla Mux compatible middleware.
func GuardMiddlewareFunc(client *Client, opts *GuardOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return GuardMiddleware(client, opts, next)
	}
}

func rejectJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
