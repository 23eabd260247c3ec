package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_Authorize(t *testing.T) {
	hash, err := HashAdminKey("monitor-key")
	require.NoError(t, err)

	hub := NewHub(hash)
	assert.True(t, hub.Authorize("monitor-key"))
	assert.False(t, hub.Authorize("wrong-key"))

	// Empty hash disables the endpoint.
	disabled := NewHub("")
	assert.False(t, disabled.Authorize("monitor-key"))
	assert.False(t, disabled.Authorize(""))
}

func TestHub_RejectsUnauthorized(t *testing.T) {
	hash, err := HashAdminKey("monitor-key")
	require.NoError(t, err)
	hub := NewHub(hash)

	req := httptest.NewRequest(http.MethodGet, "/v1/monitor/live", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	hub.HandleLive(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hash, err := HashAdminKey("monitor-key")
	require.NoError(t, err)
	hub := NewHub(hash)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleLive))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Authorization": []string{"Bearer monitor-key"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	// Wait until the hub registered the subscriber.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(VerdictEvent{
		ChallengeID: "ch_abc",
		Type:        "crypto-nl",
		Difficulty:  "medium",
		Success:     true,
		ModelFamily: "claude-3-class",
		TimingZone:  "ai_zone",
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event VerdictEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "ch_abc", event.ChallengeID)
	assert.True(t, event.Success)
	assert.NotZero(t, event.Timestamp)
}
