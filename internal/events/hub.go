// Package events streams live solve verdicts to monitoring clients over
// WebSocket.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

// Origin validation: in production (AGENTAUTH_ENV=production), only origins
// listed in AGENTAUTH_ALLOWED_ORIGINS are accepted. In dev/staging, all
// origins are allowed.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     buildCheckOrigin(),
}

const (
	pongWait   = 60 * time.Second // Time allowed to read the next pong
	pingPeriod = 30 * time.Second // Send pings at this interval (must be < pongWait)
	writeWait  = 10 * time.Second // Time allowed to write a message
	maxMsgSize = 4 * 1024         // Monitor clients only send pongs and pings
	sendBuffer = 64               // Per-subscriber outbound channel buffer
)

// VerdictEvent is the wire format broadcast after every solve attempt.
type VerdictEvent struct {
	ChallengeID string  `json:"challenge_id"`
	Type        string  `json:"type"`
	Difficulty  string  `json:"difficulty"`
	Success     bool    `json:"success"`
	Reason      string  `json:"reason,omitempty"`
	ModelFamily string  `json:"model_family,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	TimingZone  string  `json:"timing_zone,omitempty"`
	ElapsedMs   float64 `json:"elapsed_ms,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

// Hub fans verdict events out to connected monitor subscribers. Access is
// gated by a bcrypt-hashed admin key supplied as a bearer token.
type Hub struct {
	mu           sync.RWMutex
	subscribers  map[*subscriber]struct{}
	adminKeyHash []byte
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewHub creates a hub. adminKeyHash is the bcrypt hash of the monitor admin
// key; an empty hash disables the live endpoint entirely.
func NewHub(adminKeyHash string) *Hub {
	return &Hub{
		subscribers:  make(map[*subscriber]struct{}),
		adminKeyHash: []byte(adminKeyHash),
	}
}

func buildCheckOrigin() func(r *http.Request) bool {
	env := os.Getenv("AGENTAUTH_ENV")
	allowedRaw := os.Getenv("AGENTAUTH_ALLOWED_ORIGINS")

	if env == "production" && allowedRaw != "" {
		allowed := make(map[string]bool)
		for _, origin := range strings.Split(allowedRaw, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
		slog.Info("[Monitor] Origin allowlist active", "count", len(allowed))
		return func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowed[origin] {
				return true
			}
			slog.Info("[Monitor] Rejected connection from origin", "origin", origin)
			return false
		}
	}

	if env == "production" && allowedRaw == "" {
		slog.Info("[Monitor] ⚠️  AGENTAUTH_ALLOWED_ORIGINS not set in production -- allowing all origins (INSECURE)")
	}
	return func(r *http.Request) bool {
		return true
	}
}

// Authorize checks the supplied admin key against the configured hash.
func (h *Hub) Authorize(key string) bool {
	if len(h.adminKeyHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.adminKeyHash, []byte(key)) == nil
}

// HandleLive upgrades HTTP to WebSocket and registers a monitor subscriber.
// The admin key comes from the Authorization bearer token.
func (h *Hub) HandleLive(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !h.Authorize(key) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Monitor upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	slog.Info("Monitor subscriber connected", "subscribers", count)
	// writePump owns all writes to conn, readPump owns all reads.
	go sub.writePump()
	go sub.readPump()
}

// Publish broadcasts a verdict to every connected subscriber. Slow
// subscribers get dropped messages rather than blocking the solve path.
func (h *Hub) Publish(event VerdictEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to encode verdict event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			slog.Info("Monitor send buffer full, dropping verdict")
		}
	}
}

// SubscriberCount returns the number of connected monitors.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.subscribers, s)
		s.hub.mu.Unlock()
		s.conn.Close()
		slog.Info("Monitor subscriber disconnected")
	})
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("Monitor write failed", "error", err)
				return
			}

			// Drain queued messages in the same wakeup
			n := len(s.send)
			for i := 0; i < n; i++ {
				msg := <-s.send
				if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					slog.Warn("Monitor batch write failed", "error", err)
					return
				}
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// readPump discards inbound frames; monitors are receive-only. It exists to
// process control frames and detect closed connections.
func (s *subscriber) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMsgSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Monitor connection error", "error", err)
			}
			return
		}
	}
}

// HashAdminKey produces the bcrypt hash to place in configuration.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
