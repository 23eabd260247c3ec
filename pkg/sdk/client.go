// Package sdk is the agent-side client for the AgentAuth challenge protocol.
//
// The flow is init, fetch, solve:
//
//	client := sdk.NewClient(sdk.Config{
//	    ServerURL: "https://agentauth.yourcompany.com",
//	    Model:     "gpt-4o",
//	    Framework: "langchain",
//	})
//
//	handle, _ := client.InitChallenge(ctx, nil)
//	ch, _ := client.FetchChallenge(ctx, handle)
//	answer := solveWithYourAgent(ch.Payload)
//	verdict, _ := client.Solve(ctx, handle, answer, nil)
//	if verdict.Success {
//	    // verdict.Token is the capability token for downstream requests
//	}
package sdk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the SDK configuration.
type Config struct {
	// ServerURL is the AgentAuth server endpoint (required)
	ServerURL string

	// Model is the self-reported model name, e.g. "gpt-4o" (optional)
	Model string

	// Framework identifies the agent framework, e.g. "langchain" (optional)
	Framework string

	// Timeout for server calls (default 30s)
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set
	HTTPClient *http.Client
}

// Client talks to one AgentAuth server.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new AgentAuth SDK client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{config: cfg, httpClient: httpClient}
}

// InitChallenge asks the server for a new challenge. opts may be nil.
func (c *Client) InitChallenge(ctx context.Context, opts *InitOptions) (*InitResponse, error) {
	var body io.Reader
	if opts != nil {
		encoded, err := json.Marshal(opts)
		if err != nil {
			return nil, fmt.Errorf("agentauth-sdk: encode init options: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.ServerURL+"/v1/challenge/init", body)
	if err != nil {
		return nil, fmt.Errorf("agentauth-sdk: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result InitResponse
	if err := c.do(req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchChallenge retrieves the payload for an issued challenge.
func (c *Client) FetchChallenge(ctx context.Context, handle *InitResponse) (*Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.config.ServerURL+"/v1/challenge/"+handle.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("agentauth-sdk: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+handle.SessionToken)

	var result Challenge
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Solve submits an answer. The proof-of-possession HMAC over the answer is
// computed here so callers never handle the session token directly. extras
// may be nil.
func (c *Client) Solve(ctx context.Context, handle *InitResponse, answer string, extras *SolveExtras) (*SolveResponse, error) {
	request := solveRequest{
		Answer: answer,
		HMAC:   signAnswer(answer, handle.SessionToken),
	}
	if extras != nil {
		request.CanaryResponses = extras.CanaryResponses
		request.ClientRTTMs = extras.ClientRTTMs
		request.StepTimings = extras.StepTimings
	}
	if c.config.Model != "" || c.config.Framework != "" {
		request.Metadata = &solveMetadata{Model: c.config.Model, Framework: c.config.Framework}
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("agentauth-sdk: encode solve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.config.ServerURL+"/v1/challenge/"+handle.ID+"/solve", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("agentauth-sdk: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result SolveResponse
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyToken asks the server whether a capability token is still valid.
func (c *Client) VerifyToken(ctx context.Context, token string) (*VerifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.config.ServerURL+"/v1/token/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("agentauth-sdk: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var result VerifyResponse
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agentauth-sdk: server request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("agentauth-sdk: read response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("agentauth-sdk: %s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("agentauth-sdk: parse response: %w", err)
	}
	return nil
}

// signAnswer is HMAC-SHA256(answer) keyed by the session token, hex encoded.
// Kept dependency-free so the SDK can be vendored into agent codebases.
func signAnswer(answer, sessionToken string) string {
	mac := hmac.New(sha256.New, []byte(sessionToken))
	mac.Write([]byte(answer))
	return hex.EncodeToString(mac.Sum(nil))
}
