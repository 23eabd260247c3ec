package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentauth/agentauth/internal/challenge"
	"github.com/agentauth/agentauth/internal/crypto"
	"github.com/agentauth/agentauth/internal/engine"
	"github.com/agentauth/agentauth/internal/middleware"
	"github.com/agentauth/agentauth/internal/store"
)

func newTestServer(t *testing.T, opts *Options) (*Server, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	e := engine.NewEngine(engine.Config{Secret: "test-secret"}, s)
	return NewServer(e, opts), s
}

// initChallenge drives the full init request and recovers the expected
// answer from the stored record so the solve request can be signed.
func initChallenge(t *testing.T, router http.Handler, s *store.MemoryStore) (engine.InitResult, string) {
	t.Helper()

	body := bytes.NewBufferString(`{"dimensions":["memory"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/challenge/init", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var init engine.InitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &init))
	require.NotEmpty(t, init.ID)
	require.NotEmpty(t, init.SessionToken)

	record, err := s.Get(context.Background(), init.ID)
	require.NoError(t, err)
	require.NotNil(t, record)

	var payloadCtx struct {
		ExpectedAnswer string `json:"expected_answer"`
	}
	require.NoError(t, json.Unmarshal(record.Payload.Context, &payloadCtx))
	require.NotEmpty(t, payloadCtx.ExpectedAnswer)
	return init, payloadCtx.ExpectedAnswer
}

func TestServer_ChallengeLifecycle(t *testing.T) {
	server, memStore := newTestServer(t, nil)
	router := server.Router()

	init, answer := initChallenge(t, router, memStore)

	// Fetch with the session token
	req := httptest.NewRequest(http.MethodGet, "/v1/challenge/"+init.ID, nil)
	req.Header.Set("Authorization", "Bearer "+init.SessionToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched engine.FetchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, init.ID, fetched.ID)
	assert.NotEmpty(t, fetched.Payload.Instructions)
	assert.Empty(t, fetched.Payload.Context)

	// Solve with the signed answer
	input := engine.SolveInput{
		Answer: answer,
		HMAC:   crypto.HMACSHA256Hex(answer, init.SessionToken),
	}
	payload, err := json.Marshal(input)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/v1/challenge/"+init.ID+"/solve", bytes.NewReader(payload))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success, "reason=%s", result.Reason)
	require.NotEmpty(t, result.Token)

	// Verify the issued token
	req = httptest.NewRequest(http.MethodGet, "/v1/token/verify", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var verified engine.VerifyTokenResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.True(t, verified.Valid)
}

func TestServer_FetchRequiresSessionToken(t *testing.T) {
	server, memStore := newTestServer(t, nil)
	router := server.Router()

	init, _ := initChallenge(t, router, memStore)

	req := httptest.NewRequest(http.MethodGet, "/v1/challenge/"+init.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/challenge/"+init.ID, nil)
	req.Header.Set("Authorization", "Bearer st_wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SolveUnknownChallenge(t *testing.T) {
	server, _ := newTestServer(t, nil)
	router := server.Router()

	body := bytes.NewBufferString(`{"answer":"x","hmac":"deadbeef"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/challenge/ch_missing/solve", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, engine.FailExpired, result.Reason)
}

func TestServer_SolveBadBody(t *testing.T) {
	server, _ := newTestServer(t, nil)
	router := server.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/challenge/ch_x/solve", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_InitWithDifficulty(t *testing.T) {
	server, memStore := newTestServer(t, nil)
	router := server.Router()

	body := bytes.NewBufferString(`{"difficulty":"hard","dimensions":["memory"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/challenge/init", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var init engine.InitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &init))

	record, err := memStore.Get(context.Background(), init.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, challenge.DifficultyHard, record.Difficulty)
}

func TestServer_RateLimitedInit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{MaxCallsPerMinute: 2, BurstSize: 2})
	server, _ := newTestServer(t, &Options{Limiter: limiter})
	router := server.Router()

	doInit := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/challenge/init", nil)
		req.RemoteAddr = "192.0.2.9:1000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, doInit())
	require.Equal(t, http.StatusCreated, doInit())
	assert.Equal(t, http.StatusTooManyRequests, doInit())

	// Token verify is not rate limited.
	req := httptest.NewRequest(http.MethodGet, "/v1/token/verify", nil)
	req.RemoteAddr = "192.0.2.9:1000"
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Health(t *testing.T) {
	server, _ := newTestServer(t, nil)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
