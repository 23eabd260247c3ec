package timing

import (
	"fmt"
	"math"
	"sync"
	"time"
)

type sessionEntry struct {
	elapsedMs float64
	zone      Zone
	timestamp int64
}

// SessionTracker accumulates per-session timing entries and flags
// cross-challenge anomalies: zone oscillation, scripted-looking variance,
// and rapid succession.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string][]sessionEntry
}

// NewSessionTracker creates an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string][]sessionEntry)}
}

// Record adds one timing entry for a session.
func (st *SessionTracker) Record(sessionID string, elapsedMs float64, zone Zone) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[sessionID] = append(st.sessions[sessionID], sessionEntry{
		elapsedMs: elapsedMs,
		zone:      zone,
		timestamp: time.Now().UnixMilli(),
	})
}

// Analyze returns the anomalies detected for a session. Sessions with fewer
// than two entries produce none.
func (st *SessionTracker) Analyze(sessionID string) []SessionAnomaly {
	st.mu.Lock()
	entries := st.sessions[sessionID]
	st.mu.Unlock()

	if len(entries) < 2 {
		return nil
	}

	var anomalies []SessionAnomaly

	// Oscillation between the AI zone and human or suspicious zones.
	aiCount := 0
	humanCount := 0
	for _, e := range entries {
		if e.zone == ZoneAI {
			aiCount++
		}
		if e.zone == ZoneHuman || e.zone == ZoneSuspicious {
			humanCount++
		}
	}
	if aiCount > 0 && humanCount > 0 && len(entries) >= 3 {
		severity := "medium"
		if humanCount >= aiCount {
			severity = "high"
		}
		anomalies = append(anomalies, SessionAnomaly{
			Type:        "zone_inconsistency",
			Description: fmt.Sprintf("Session oscillates between AI zone (%dx) and human/suspicious zone (%dx) across %d challenges", aiCount, humanCount, len(entries)),
			Severity:    severity,
		})
	}

	// Suspiciously uniform latencies point to a scripted delay.
	if len(entries) >= 3 {
		sum := 0.0
		for _, e := range entries {
			sum += e.elapsedMs
		}
		mean := sum / float64(len(entries))

		if mean > 0 {
			varianceSum := 0.0
			for _, e := range entries {
				diff := e.elapsedMs - mean
				varianceSum += diff * diff
			}
			std := math.Sqrt(varianceSum / float64(len(entries)))
			if cv := std / mean; cv < 0.05 {
				anomalies = append(anomalies, SessionAnomaly{
					Type:        "timing_variance_anomaly",
					Description: fmt.Sprintf("Timing variance coefficient %.1f%% is suspiciously low across %d challenges", cv*100, len(entries)),
					Severity:    "high",
				})
			}
		}
	}

	// Back-to-back completions under 5s apart; reported once per analysis.
	for i := 1; i < len(entries); i++ {
		gap := entries[i].timestamp - entries[i-1].timestamp
		if gap < 5000 {
			severity := "low"
			if gap < 2000 {
				severity = "high"
			}
			anomalies = append(anomalies, SessionAnomaly{
				Type:        "rapid_succession",
				Description: fmt.Sprintf("Challenges %d and %d completed %dms apart (< 5000ms threshold)", i-1, i, gap),
				Severity:    severity,
			})
			break
		}
	}

	return anomalies
}

// Clear drops all timing data for a session.
func (st *SessionTracker) Clear(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, sessionID)
}
