// Package chainagent is a typed REST client for the ChainAgent API.
package chainagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 30 * time.Second

// Client wraps the HTTP interactions with the ChainAgent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Message mirrors one session history entry.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Session mirrors the server session representation.
type Session struct {
	ID            string    `json:"session_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Messages      []Message `json:"messages"`
	CreatedAt     int64     `json:"created_at"`
	UpdatedAt     int64     `json:"updated_at"`
}

// ToolCall reports one tool invocation made during a turn.
type ToolCall struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
}

// ChatResponse is the completed turn.
type ChatResponse struct {
	Content   string     `json:"content"`
	SessionID string     `json:"session_id"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Credential is a minted wallet session token.
type Credential struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Identity is the wallet bound to the stored credential.
type Identity struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

// VerifyRequest carries a signed challenge.
type VerifyRequest struct {
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// TaskRecord tracks a deferred turn.
type TaskRecord struct {
	Task struct {
		ID        string `json:"id"`
		SessionID string `json:"session_id,omitempty"`
		Message   string `json:"message"`
	} `json:"task"`
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Turn is one archived exchange.
type Turn struct {
	ID               string `json:"id"`
	SessionID        string `json:"session_id"`
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
	Status           string `json:"status"`
	Iterations       int    `json:"iterations"`
}

// APIError is a structured server error.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("chainagent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chainagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the given base URL. A nil httpClient gets a
// default with a sensible timeout.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetToken stores a wallet credential for subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the stored credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CreateSession starts a new conversation.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var out Session
	if err := c.post(ctx, "/session", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches a session with its history.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.get(ctx, "/session/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/session/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Chat runs one conversation turn. An empty sessionID starts a new session;
// the response carries the id to continue with.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (*ChatResponse, error) {
	var out ChatResponse
	payload := map[string]string{"session_id": sessionID, "message": message}
	if err := c.post(ctx, "/agent/chat", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestNonce fetches a signing challenge for the wallet address.
func (c *Client) RequestNonce(ctx context.Context, address string) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := c.get(ctx, "/wallet/nonce/"+url.PathEscape(address), &out); err != nil {
		return "", err
	}
	return out.Nonce, nil
}

// Verify submits a signed challenge and stores the returned credential.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*Credential, error) {
	var out Credential
	if err := c.post(ctx, "/wallet/verify", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Me returns the wallet identity bound to the stored credential.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var out Identity
	if err := c.get(ctx, "/wallet/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTask enqueues a deferred turn.
func (c *Client) SubmitTask(ctx context.Context, sessionID, message string) (*TaskRecord, error) {
	var out TaskRecord
	payload := map[string]string{"session_id": sessionID, "message": message}
	if err := c.post(ctx, "/agent/tasks", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask polls a deferred turn.
func (c *Client) GetTask(ctx context.Context, id string) (*TaskRecord, error) {
	var out TaskRecord
	if err := c.get(ctx, "/agent/tasks/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists archived turns, newest first. An empty sessionID lists recent
// turns across all sessions.
func (c *Client) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	endpoint := "/agent/history"
	sep := "?"
	if sessionID != "" {
		endpoint += sep + "session_id=" + url.QueryEscape(sessionID)
		sep = "&"
	}
	if limit > 0 {
		endpoint += fmt.Sprintf("%slimit=%d", sep, limit)
	}
	var out struct {
		Turns []Turn `json:"turns"`
	}
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Turns, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	parsed.Path = path.Join(c.baseURL.Path, parsed.Path)
	u := c.baseURL.ResolveReference(parsed)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
