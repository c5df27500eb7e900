// Package conversation orchestrates the chat flow: it is the sole writer of
// session and history state, consumes the quota tracker, calls the remote
// question-answering API, and drives the reveal engine for agent answers.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/309dot/persona-console/internal/apiclient"
	"github.com/309dot/persona-console/internal/domain"
	"github.com/309dot/persona-console/internal/history"
	"github.com/309dot/persona-console/internal/quota"
	"github.com/309dot/persona-console/internal/reveal"
	"github.com/309dot/persona-console/internal/session"
)

// AgentClient is the slice of the remote API the controller needs.
type AgentClient interface {
	CreateVisitor(ctx context.Context, payload apiclient.VisitorPayload) (*domain.SessionInfo, error)
	SendQuestion(ctx context.Context, sessionID, question string) (*apiclient.ChatResult, error)
}

// Options carries deployment-specific controller behavior.
type Options struct {
	// OutOfScopeText replaces a blocked response whose reason is absent.
	OutOfScopeText string
	// RetryNoticeText is appended as a system message when the answer call fails.
	RetryNoticeText string
	// QuotaResetOnVisitorEdit resets the quota when visitor info is edited
	// within an existing session. Off by default: quota lifetime follows the
	// session id, and editing visitor info keeps the id.
	QuotaResetOnVisitorEdit bool
}

// Outcome reports the two messages a submission produced: the visitor's
// question and exactly one agent-or-system reply.
type Outcome struct {
	Visitor domain.ChatMessage `json:"visitor"`
	Reply   domain.ChatMessage `json:"reply"`
	Blocked bool               `json:"blocked"`
}

// QuotaState is a snapshot of the session's question budget.
type QuotaState struct {
	Used      int `json:"used"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// Controller implements the conversation state machine.
type Controller struct {
	sessions *session.Store
	history  *history.Store
	quota    *quota.Tracker
	client   AgentClient
	engine   *reveal.Engine
	opts     Options

	mu        sync.Mutex
	inFlight  bool
	lastError string
	sink      reveal.Sink
}

// NewController wires the conversation controller.
func NewController(sessions *session.Store, hist *history.Store, tracker *quota.Tracker, client AgentClient, engine *reveal.Engine, opts Options) *Controller {
	return &Controller{
		sessions: sessions,
		history:  hist,
		quota:    tracker,
		client:   client,
		engine:   engine,
		opts:     opts,
	}
}

// SetRevealSink registers the display target that receives reveal frames for
// agent answers. A nil sink disables the typed reveal.
func (c *Controller) SetRevealSink(sink reveal.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Register creates a new visitor session via the remote API. A new session id
// always starts a fresh quota.
func (c *Controller) Register(ctx context.Context, name, affiliation, ref string) (*domain.SessionInfo, error) {
	info, err := c.client.CreateVisitor(ctx, apiclient.VisitorPayload{
		VisitorName:        name,
		VisitorAffiliation: affiliation,
		VisitRef:           ref,
	})
	if err != nil {
		return nil, fmt.Errorf("register visitor: %w", err)
	}

	if err := c.sessions.Set(ctx, *info); err != nil {
		return nil, err
	}
	c.quota.Reset()
	return info, nil
}

// UpdateVisitor replaces the visitor fields of the active session locally.
// The session id never changes here.
func (c *Controller) UpdateVisitor(ctx context.Context, name, affiliation string) (*domain.SessionInfo, error) {
	info, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNoSession
	}

	next := info.WithVisitor(name, affiliation)
	if err := c.sessions.Set(ctx, next); err != nil {
		return nil, err
	}
	if c.opts.QuotaResetOnVisitorEdit {
		c.quota.Reset()
	}
	return &next, nil
}

// Session returns the active session, or nil when none exists.
func (c *Controller) Session(ctx context.Context) (*domain.SessionInfo, error) {
	return c.sessions.Get(ctx)
}

// ClearSession drops the visitor identity. The next interaction must register.
func (c *Controller) ClearSession(ctx context.Context) error {
	c.engine.Cancel()
	return c.sessions.Clear(ctx)
}

// Messages returns the conversation history for the active session, seeding
// the greeting on first load.
func (c *Controller) Messages(ctx context.Context) ([]domain.ChatMessage, error) {
	info, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNoSession
	}
	return c.history.Load(ctx, info.SessionID)
}

// Quota reports the current question budget.
func (c *Controller) Quota() QuotaState {
	return QuotaState{
		Used:      c.quota.Used(),
		Total:     c.quota.Total(),
		Remaining: c.quota.Remaining(),
	}
}

// LastError returns the error-slot string for the UI, empty when clear.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ClearError empties the error slot.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = ""
}

// Submit runs one question through the full flow. Validation failures return
// a sentinel error and leave history and quota untouched. Once a submission
// is accepted, quota is consumed up front and the conversation always gains
// exactly one follow-up entry, whether the API call succeeds, blocks, or
// fails. Transport errors never propagate out of Submit.
func (c *Controller) Submit(ctx context.Context, question string) (*Outcome, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	info, err := c.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNoSession
	}

	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	visitorMsg, err := c.history.Append(ctx, info.SessionID, domain.MessageDraft{
		Role: domain.RoleVisitor,
		Text: question,
	})
	if err != nil {
		return nil, err
	}

	if err := c.history.RememberQuestion(ctx, question); err != nil {
		slog.Warn("failed to record recent question", "error", err)
	}

	// Quota is consumed by the attempt, before the call resolves, so a slow
	// or failed response cannot allow a burst of extra submissions.
	c.quota.Increment()

	result, err := c.client.SendQuestion(ctx, info.SessionID, question)
	if err != nil {
		return c.appendFailure(ctx, info.SessionID, visitorMsg, err)
	}
	return c.appendReply(ctx, info.SessionID, visitorMsg, result)
}

// ResetConversation clears the history for the active session and cancels any
// reveal in progress. Quota is a session-lifetime limit and stays untouched.
func (c *Controller) ResetConversation(ctx context.Context) error {
	info, err := c.sessions.Get(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		return ErrNoSession
	}

	c.engine.Cancel()
	return c.history.Clear(ctx, info.SessionID)
}

func (c *Controller) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return ErrBusy
	}
	if c.quota.Remaining() <= 0 {
		return ErrQuotaExhausted
	}
	c.inFlight = true
	c.lastError = ""
	return nil
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
}

func (c *Controller) appendFailure(ctx context.Context, sessionID string, visitorMsg domain.ChatMessage, cause error) (*Outcome, error) {
	slog.Warn("question call failed", "session_id", sessionID, "error", cause)
	c.setError(cause.Error())

	reply, err := c.history.Append(ctx, sessionID, domain.MessageDraft{
		Role: domain.RoleSystem,
		Text: c.opts.RetryNoticeText,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Visitor: visitorMsg, Reply: reply}, nil
}

func (c *Controller) appendReply(ctx context.Context, sessionID string, visitorMsg domain.ChatMessage, result *apiclient.ChatResult) (*Outcome, error) {
	draft, notice := c.normalize(result)

	reply, err := c.history.Append(ctx, sessionID, draft)
	if err != nil {
		return nil, err
	}
	if notice != "" {
		c.setError(notice)
	}

	if reply.Role == domain.RoleAgent {
		if sink := c.revealSink(); sink != nil {
			c.engine.Reveal(reply.Text, sink)
		}
	}
	return &Outcome{Visitor: visitorMsg, Reply: reply, Blocked: reply.Blocked}, nil
}

// normalize maps the duck-typed API response onto exactly one of agent-answer
// or system-notice:
//
//	blocked, reason present -> system(reason)
//	blocked, reason absent  -> system(out-of-scope notice)
//	not blocked             -> agent(answer)
//
// The returned notice fills the error slot for blocked responses.
func (c *Controller) normalize(result *apiclient.ChatResult) (domain.MessageDraft, string) {
	if result.Blocked {
		reason := strings.TrimSpace(result.Reason)
		if reason == "" {
			reason = c.opts.OutOfScopeText
		}
		return domain.MessageDraft{
			Role:    domain.RoleSystem,
			Text:    reason,
			Blocked: true,
		}, reason
	}

	return domain.MessageDraft{
		Role:     domain.RoleAgent,
		Text:     result.Answer,
		Category: result.Category,
	}, ""
}

func (c *Controller) revealSink() reveal.Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink
}

func (c *Controller) setError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = message
}
