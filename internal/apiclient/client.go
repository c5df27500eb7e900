// Package apiclient is the HTTP client for the remote interview-agent API:
// visitor registration, question answering, and dashboard analytics.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/309dot/persona-console/internal/domain"
)

// genericFailure is surfaced when a non-2xx response carries no body text.
const genericFailure = "API request failed"

// Client talks to the remote agent API. Calls are single-attempt with the
// configured timeout; retry is a caller decision, never automatic.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client against baseURL (e.g. "http://localhost:8000/api").
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateVisitor registers a visitor and returns the server-issued session.
func (c *Client) CreateVisitor(ctx context.Context, payload VisitorPayload) (*domain.SessionInfo, error) {
	req := visitorRequest{
		VisitorName:        payload.VisitorName,
		VisitorAffiliation: payload.VisitorAffiliation,
		VisitRef:           payload.VisitRef,
	}

	var resp visitorResponse
	if err := c.post(ctx, "/visitors", req, &resp); err != nil {
		return nil, err
	}

	return &domain.SessionInfo{
		SessionID:          resp.SessionID,
		VisitorName:        resp.VisitorName,
		VisitorAffiliation: resp.VisitorAffiliation,
		VisitRef:           resp.VisitRef,
	}, nil
}

// SendQuestion submits a question for the given session.
func (c *Client) SendQuestion(ctx context.Context, sessionID, question string) (*ChatResult, error) {
	req := chatRequest{SessionID: sessionID, Question: question}

	var resp ChatResult
	if err := c.post(ctx, "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DashboardStats fetches the admin stats series. The bearer token comes from
// the external auth provider; the console only passes it through.
func (c *Client) DashboardStats(ctx context.Context, token string) (*DashboardStats, error) {
	var resp DashboardStats
	if err := c.get(ctx, "/dashboard/stats", token, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConversationLogs fetches the most recent logged conversations.
func (c *Client) ConversationLogs(ctx context.Context, token string, limit int) ([]ConversationRecord, error) {
	var resp []ConversationRecord
	path := "/dashboard/logs?limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, path, token, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path, token string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", req.URL.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// No structured error schema is assumed; the body text is the message.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		message := strings.TrimSpace(string(detail))
		if message == "" {
			message = genericFailure
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}
