package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/309dot/persona-console/internal/apiclient"
	"github.com/309dot/persona-console/internal/conversation"
	"github.com/309dot/persona-console/internal/domain"
	"github.com/309dot/persona-console/internal/history"
	"github.com/309dot/persona-console/internal/quota"
	"github.com/309dot/persona-console/internal/reveal"
	"github.com/309dot/persona-console/internal/session"
	"github.com/309dot/persona-console/internal/store"
)

type fakeAgent struct {
	result *apiclient.ChatResult
	err    error
}

func (f *fakeAgent) CreateVisitor(_ context.Context, payload apiclient.VisitorPayload) (*domain.SessionInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SessionInfo{
		SessionID:          "sess-1",
		VisitorName:        payload.VisitorName,
		VisitorAffiliation: payload.VisitorAffiliation,
		VisitRef:           payload.VisitRef,
	}, nil
}

func (f *fakeAgent) SendQuestion(_ context.Context, _, _ string) (*apiclient.ChatResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &apiclient.ChatResult{SessionID: "sess-1", Answer: "an answer"}, nil
}

type fakeDashboard struct {
	token string
	limit int
	err   error
}

func (f *fakeDashboard) DashboardStats(_ context.Context, token string) (*apiclient.DashboardStats, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return &apiclient.DashboardStats{
		RefStats: []apiclient.StatPoint{{Label: "direct", Value: 4}},
	}, nil
}

func (f *fakeDashboard) ConversationLogs(_ context.Context, token string, limit int) ([]apiclient.ConversationRecord, error) {
	f.token = token
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []apiclient.ConversationRecord{{ID: "c1", SessionID: "sess-1", Question: "q", Answer: "a"}}, nil
}

type serverEnv struct {
	srv       *httptest.Server
	agent     *fakeAgent
	dashboard *fakeDashboard
}

func newServerEnv(t *testing.T, total int) *serverEnv {
	t.Helper()

	repo := store.NewMemory()
	sessions := session.NewStore(repo)
	hist := history.NewStore(repo, "hello")
	tracker := quota.NewTracker(total)
	engine := reveal.New(time.Millisecond)
	agent := &fakeAgent{}
	dashboard := &fakeDashboard{}

	ctrl := conversation.NewController(sessions, hist, tracker, agent, engine, conversation.Options{
		OutOfScopeText:  "out of scope",
		RetryNoticeText: "please retry",
	})

	r := chi.NewRouter()
	NewHandler(ctrl, dashboard, hist).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &serverEnv{srv: srv, agent: agent, dashboard: dashboard}
}

func (e *serverEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, out.Bytes()
}

func (e *serverEnv) register(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/session", map[string]string{
		"visitor_name": "Kim",
		"visit_ref":    "direct",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register returned %d: %s", resp.StatusCode, body)
	}
}

func TestRegisterCreatesSession(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	resp, body := env.do(t, http.MethodPost, "/api/session", map[string]string{
		"visitor_name": "Kim",
		"visit_ref":    "direct",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var info domain.SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if info.SessionID != "sess-1" || info.VisitorName != "Kim" {
		t.Fatalf("unexpected session: %+v", info)
	}

	resp, body = env.do(t, http.MethodGet, "/api/session", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session not persisted: %d %s", resp.StatusCode, body)
	}
}

func TestRegisterRequiresVisitorName(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	resp, _ := env.do(t, http.MethodPost, "/api/session", map[string]string{
		"visitor_name": "   ",
	}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestSessionEndpointsSignalRegistration(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	for _, tc := range []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/session", nil},
		{http.MethodGet, "/api/messages", nil},
		{http.MethodPost, "/api/ask", map[string]string{"question": "hi"}},
		{http.MethodPost, "/api/reset", map[string]string{}},
	} {
		resp, body := env.do(t, tc.method, tc.path, tc.body, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("%s %s: expected 409, got %d", tc.method, tc.path, resp.StatusCode)
		}
		var parsed struct {
			RegisterRequired bool `json:"register_required"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil || !parsed.RegisterRequired {
			t.Fatalf("%s %s: expected register_required, got %s", tc.method, tc.path, body)
		}
	}
}

func TestAskReturnsOutcomeAndQuota(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	env.register(t)
	env.agent.result = &apiclient.ChatResult{Answer: "flows", Category: "work"}

	resp, body := env.do(t, http.MethodPost, "/api/ask", map[string]string{
		"question": "what do you build?",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Visitor domain.ChatMessage      `json:"visitor"`
		Reply   domain.ChatMessage      `json:"reply"`
		Quota   conversation.QuotaState `json:"quota"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if parsed.Visitor.Text != "what do you build?" || parsed.Reply.Text != "flows" {
		t.Fatalf("unexpected outcome: %s", body)
	}
	if parsed.Quota.Used != 1 || parsed.Quota.Remaining != 2 {
		t.Fatalf("unexpected quota: %+v", parsed.Quota)
	}
}

func TestAskEmptyQuestionRejected(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	env.register(t)

	resp, _ := env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "  "}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestAskQuotaExhaustedReturns429(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 1)
	env.register(t)

	resp, _ := env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "first"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first ask failed: %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "second"}, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestAskFailureFillsErrorSlot(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	env.register(t)
	env.agent.err = &apiclient.APIError{StatusCode: 500, Message: "backend down"}

	resp, body := env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "hello"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("failed asks still return the follow-up message: %d", resp.StatusCode)
	}

	var parsed struct {
		Reply     domain.ChatMessage `json:"reply"`
		ErrorSlot string             `json:"error_slot"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if parsed.Reply.Role != domain.RoleSystem || parsed.Reply.Text != "please retry" {
		t.Fatalf("unexpected reply: %+v", parsed.Reply)
	}
	if parsed.ErrorSlot == "" {
		t.Fatal("error slot must be filled")
	}
}

func TestResetClearsConversation(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	env.register(t)
	_, _ = env.do(t, http.MethodPost, "/api/ask", map[string]string{"question": "hello"}, nil)

	resp, _ := env.do(t, http.MethodPost, "/api/reset", map[string]string{}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodGet, "/api/messages", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("messages failed: %d", resp.StatusCode)
	}
	var messages []domain.ChatMessage
	if err := json.Unmarshal(body, &messages); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected reseeded history, got %d messages", len(messages))
	}
}

func TestSuggestionsReturnEmptyListNotNull(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	resp, body := env.do(t, http.MethodGet, "/api/suggestions", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := string(bytes.TrimSpace(body)); got != "[]" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestDashboardRequiresBearerToken(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	for _, path := range []string{"/api/dashboard/stats", "/api/dashboard/logs"} {
		resp, _ := env.do(t, http.MethodGet, path, nil, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestDashboardPassesTokenThrough(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	headers := map[string]string{"Authorization": "Bearer tok-123"}

	resp, body := env.do(t, http.MethodGet, "/api/dashboard/stats", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if env.dashboard.token != "tok-123" {
		t.Fatalf("token not forwarded: %q", env.dashboard.token)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/dashboard/logs?limit=25", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.dashboard.limit != 25 {
		t.Fatalf("limit not forwarded: %d", env.dashboard.limit)
	}
}

func TestDashboardForwardsUpstreamStatus(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	env.dashboard.err = &apiclient.APIError{StatusCode: http.StatusForbidden, Message: "invalid token"}

	resp, body := env.do(t, http.MethodGet, "/api/dashboard/stats", nil, map[string]string{
		"Authorization": "Bearer bad",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected upstream 403 forwarded, got %d", resp.StatusCode)
	}
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error != "invalid token" {
		t.Fatalf("upstream message not preserved: %s", body)
	}
}

func TestDashboardLogsValidateLimit(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t, 3)
	headers := map[string]string{"Authorization": "Bearer tok"}

	for _, limit := range []string{"0", "201", "abc"} {
		resp, _ := env.do(t, http.MethodGet, "/api/dashboard/logs?limit="+limit, nil, headers)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("limit=%s: expected 422, got %d", limit, resp.StatusCode)
		}
	}
}
