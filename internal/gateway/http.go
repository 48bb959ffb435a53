// Package gateway implements the sidecar's transport to the chat gateway:
// agent registration, message send/broadcast, history queries, mode
// control, and the push/poll listener in push.go.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks HTTP to the gateway, authenticating via the X-Auth-Token
// header on every call, per spec.md §4.4.
type Client struct {
	baseURL   string
	authToken string

	// instanceID identifies the specific PTY instance making these calls
	// (internal/ptyproxy.PTY.ID), sent as X-Sidecar-Instance so the
	// gateway can tell repeated registrations of the same agent name
	// apart across process restarts. Empty until SetInstanceID is called.
	instanceID string

	registerClient   *http.Client
	shortClient      *http.Client
	outputClient     *http.Client
	unregisterClient *http.Client
}

// NewClient returns a gateway client for baseURL. authToken may be empty,
// in which case the header is omitted and the gateway treats the agent as
// unauthenticated.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:          baseURL,
		authToken:        authToken,
		registerClient:   &http.Client{Timeout: 5 * time.Second},
		shortClient:      &http.Client{Timeout: 2 * time.Second},
		outputClient:     &http.Client{Timeout: 200 * time.Millisecond},
		unregisterClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// SetInstanceID records the PTY instance id to send as X-Sidecar-Instance
// on every subsequent call. Callers set this once, right after forking
// the agent under a pty and before any other goroutine starts issuing
// gateway calls.
func (c *Client) SetInstanceID(id string) {
	c.instanceID = id
}

func (c *Client) headers(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
	if c.instanceID != "" {
		req.Header.Set("X-Sidecar-Instance", c.instanceID)
	}
}

// RegisterResponse is the gateway's reply to a registration request.
type RegisterResponse struct {
	AgentID string `json:"agentId"`
}

// Register requests an agent id from the gateway. requestedID is the
// agent's preferred name (lowercased, spaces replaced with dashes); the
// gateway may return a different id if the requested one collides.
func (c *Client) Register(requestedID string) (*RegisterResponse, error) {
	if c.authToken == "" {
		return nil, fmt.Errorf("no auth token provided - gateway requires authentication")
	}

	body, err := json.Marshal(map[string]interface{}{
		"agentId":      requestedID,
		"capabilities": map[string]bool{"chat": true, "respond": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal register request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/register", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.headers(req)

	resp, err := c.registerClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("registration failed: %d", resp.StatusCode)
	}

	var out RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	if out.AgentID == "" {
		out.AgentID = requestedID
	}
	return &out, nil
}

// Unregister tells the gateway this agent is shutting down. Errors are
// non-fatal by design: the sidecar exits regardless.
func (c *Client) Unregister(agentID string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/agent/"+agentID, nil)
	if err != nil {
		return fmt.Errorf("build unregister request: %w", err)
	}
	c.headers(req)

	resp, err := c.unregisterClient.Do(req)
	if err != nil {
		return fmt.Errorf("unregister request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unregister failed: %d", resp.StatusCode)
	}
	return nil
}

// PushOutput forwards sanitized agent output to the gateway as a
// broadcast chat message. Uses a short timeout: a slow gateway must never
// stall the pty read loop.
func (c *Client) PushOutput(agentID, content string) error {
	payload := map[string]string{
		"from":    agentID,
		"to":      "broadcast",
		"content": content,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal output push: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/agent-output", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build output push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.headers(req)

	resp, err := c.outputClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway communication error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gateway output failed: %d", resp.StatusCode)
	}
	return nil
}

// SendMessage posts a message from agentID to target ("broadcast" for
// all agents).
func (c *Client) SendMessage(agentID, target, content string) error {
	payload := map[string]string{
		"from":    agentID,
		"to":      target,
		"content": content,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.headers(req)

	resp, err := c.shortClient.Do(req)
	if err != nil {
		return fmt.Errorf("send error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("send failed: %d", resp.StatusCode)
	}
	return nil
}

// HistoryMessage is one entry in a /history response.
type HistoryMessage struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Content   string `json:"content"`
}

// History queries recent chat history, optionally bounded by limit (0
// means let the gateway pick its default).
func (c *Client) History(limit int) ([]HistoryMessage, error) {
	u := c.baseURL + "/history"
	if limit > 0 {
		u += "?" + url.Values{"limit": {fmt.Sprint(limit)}}.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	c.headers(req)

	resp, err := c.shortClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history query error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history query failed: %d", resp.StatusCode)
	}

	var out struct {
		Messages []HistoryMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	return out.Messages, nil
}

// AgentSummary is one entry in a /agents listing.
type AgentSummary struct {
	ID string `json:"id"`
}

// ConnectedAgents lists agent ids currently registered with the gateway,
// excluding "Human" and selfID.
func (c *Client) ConnectedAgents(selfID string) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/agents", nil)
	if err != nil {
		return nil, fmt.Errorf("build agents request: %w", err)
	}
	c.headers(req)

	resp, err := c.shortClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agents query error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agents query failed: %d", resp.StatusCode)
	}

	var agents []AgentSummary
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return nil, fmt.Errorf("decode agents response: %w", err)
	}

	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		if a.ID != "Human" && a.ID != selfID {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

// SetMode sets the orchestration mode for the given set of agents.
func (c *Client) SetMode(mode, topic string, rounds int, agentIDs []string) error {
	payload := map[string]interface{}{
		"mode":   mode,
		"topic":  topic,
		"rounds": rounds,
		"agents": agentIDs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/mode", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.headers(req)

	resp, err := c.shortClient.Do(req)
	if err != nil {
		return fmt.Errorf("mode set error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("mode set failed - %s", errResp.Error)
		}
		return fmt.Errorf("mode set failed: %d", resp.StatusCode)
	}
	return nil
}

// ModeStatus is the gateway's current orchestration state.
type ModeStatus struct {
	Mode             string   `json:"mode"`
	Topic            string   `json:"topic"`
	Round            int      `json:"round"`
	MaxRounds        int      `json:"maxRounds"`
	TurnOrder        []string `json:"turnOrder"`
	CurrentTurnIndex int      `json:"currentTurnIndex"`
}

// GetMode fetches the current orchestration mode status.
func (c *Client) GetMode() (*ModeStatus, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/mode", nil)
	if err != nil {
		return nil, fmt.Errorf("build mode status request: %w", err)
	}
	c.headers(req)

	resp, err := c.shortClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status query error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status query failed: %d", resp.StatusCode)
	}

	var status ModeStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode mode status: %w", err)
	}
	return &status, nil
}

// InboxMessage is one pending message returned by a /inbox poll.
type InboxMessage struct {
	From        string          `json:"from"`
	Content     string          `json:"content"`
	TurnSignal  string          `json:"turnSignal"`
	CurrentTurn string          `json:"currentTurn"`
	Context     *InboxOrchCtx   `json:"context,omitempty"`
	To          string          `json:"to"`
	Raw         json.RawMessage `json:"-"`
}

// InboxOrchCtx is the orchestration heartbeat payload attached to some
// inbox messages.
type InboxOrchCtx struct {
	Mode        string `json:"mode"`
	Round       int    `json:"round"`
	MaxRounds   int    `json:"maxRounds"`
	CurrentTurn string `json:"currentTurn"`
	ElapsedMS   int64  `json:"elapsed"`
}

// PollInbox fetches any messages waiting for agentID. A 404 or 401 is
// treated as "nothing waiting" rather than an error, matching the
// gateway's behavior for agents not yet known.
func (c *Client) PollInbox(agentID string) ([]InboxMessage, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/inbox/"+agentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build inbox request: %w", err)
	}
	c.headers(req)

	resp, err := c.shortClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway polling error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway inbox poll failed: %d", resp.StatusCode)
	}

	var messages []InboxMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode inbox response: %w", err)
	}
	return messages, nil
}
