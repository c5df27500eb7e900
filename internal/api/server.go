// Package api provides the local console's HTTP handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/309dot/persona-console/internal/apiclient"
	"github.com/309dot/persona-console/internal/conversation"
	"github.com/309dot/persona-console/internal/history"
)

// maxRequestBodySize bounds console request bodies (questions are short).
const maxRequestBodySize = 64 << 10 // 64KB

// DashboardClient is the slice of the remote API the admin pages need.
type DashboardClient interface {
	DashboardStats(ctx context.Context, token string) (*apiclient.DashboardStats, error)
	ConversationLogs(ctx context.Context, token string, limit int) ([]apiclient.ConversationRecord, error)
}

// Handler serves the console API consumed by the embedded UI.
type Handler struct {
	ctrl      *conversation.Controller
	dashboard DashboardClient
	hist      *history.Store
}

// NewHandler creates a console API handler.
func NewHandler(ctrl *conversation.Controller, dashboard DashboardClient, hist *history.Store) *Handler {
	return &Handler{ctrl: ctrl, dashboard: dashboard, hist: hist}
}

// RegisterRoutes mounts the console API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.handleRegister)
		r.Get("/session", h.handleGetSession)
		r.Put("/session", h.handleUpdateVisitor)
		r.Delete("/session", h.handleClearSession)

		r.Get("/messages", h.handleMessages)
		r.Post("/ask", h.handleAsk)
		r.Post("/reset", h.handleReset)
		r.Get("/quota", h.handleQuota)
		r.Get("/suggestions", h.handleSuggestions)

		r.Get("/dashboard/stats", h.handleDashboardStats)
		r.Get("/dashboard/logs", h.handleDashboardLogs)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// registerRequired signals the UI to open the visitor registration prompt
// instead of retrying the request.
func registerRequired(w http.ResponseWriter) {
	JSON(w, http.StatusConflict, map[string]interface{}{
		"error":             conversation.ErrNoSession.Error(),
		"register_required": true,
	})
}

type visitorBody struct {
	VisitorName        string `json:"visitor_name"`
	VisitorAffiliation string `json:"visitor_affiliation"`
	VisitRef           string `json:"visit_ref"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body visitorBody
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.VisitorName) == "" {
		Error(w, http.StatusUnprocessableEntity, "visitor_name is required")
		return
	}

	info, err := h.ctrl.Register(r.Context(), body.VisitorName, body.VisitorAffiliation, body.VisitRef)
	if err != nil {
		upstreamError(w, err, "failed to register visitor")
		return
	}
	JSON(w, http.StatusCreated, info)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.ctrl.Session(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if info == nil {
		registerRequired(w)
		return
	}
	JSON(w, http.StatusOK, info)
}

func (h *Handler) handleUpdateVisitor(w http.ResponseWriter, r *http.Request) {
	var body visitorBody
	if !decodeBody(w, r, &body) {
		return
	}

	info, err := h.ctrl.UpdateVisitor(r.Context(), body.VisitorName, body.VisitorAffiliation)
	if errors.Is(err, conversation.ErrNoSession) {
		registerRequired(w)
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to update visitor")
		return
	}
	JSON(w, http.StatusOK, info)
}

func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ClearSession(r.Context()); err != nil {
		Error(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.ctrl.Messages(r.Context())
	if errors.Is(err, conversation.ErrNoSession) {
		registerRequired(w)
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	JSON(w, http.StatusOK, messages)
}

type askBody struct {
	Question string `json:"question"`
}

type askResponse struct {
	*conversation.Outcome
	Quota     conversation.QuotaState `json:"quota"`
	ErrorSlot string                  `json:"error_slot,omitempty"`
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body askBody
	if !decodeBody(w, r, &body) {
		return
	}

	outcome, err := h.ctrl.Submit(r.Context(), body.Question)
	switch {
	case errors.Is(err, conversation.ErrEmptyQuestion):
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, conversation.ErrNoSession):
		registerRequired(w)
		return
	case errors.Is(err, conversation.ErrQuotaExhausted):
		Error(w, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, conversation.ErrBusy):
		Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, "failed to submit question")
		return
	}

	JSON(w, http.StatusOK, askResponse{
		Outcome:   outcome,
		Quota:     h.ctrl.Quota(),
		ErrorSlot: h.ctrl.LastError(),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.ResetConversation(r.Context())
	if errors.Is(err, conversation.ErrNoSession) {
		registerRequired(w)
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to reset conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleQuota(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.ctrl.Quota())
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	recent, err := h.hist.RecentQuestions(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load suggestions")
		return
	}
	if recent == nil {
		recent = []string{}
	}
	JSON(w, http.StatusOK, recent)
}

func (h *Handler) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(w, r)
	if !ok {
		return
	}

	stats, err := h.dashboard.DashboardStats(r.Context(), token)
	if err != nil {
		upstreamError(w, err, "failed to fetch dashboard stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleDashboardLogs(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			Error(w, http.StatusUnprocessableEntity, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	logs, err := h.dashboard.ConversationLogs(r.Context(), token, limit)
	if err != nil {
		upstreamError(w, err, "failed to fetch conversation logs")
		return
	}
	JSON(w, http.StatusOK, logs)
}

func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		Error(w, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	return token, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			Error(w, http.StatusBadRequest, "request body is required")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// upstreamError forwards remote API failures, preserving the status and body
// text of non-2xx responses verbatim.
func upstreamError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		Error(w, apiErr.StatusCode, apiErr.Message)
		return
	}
	slog.Warn("upstream call failed", "error", err)
	Error(w, http.StatusBadGateway, fallback)
}
