package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/309dot/persona-console/internal/conversation"
	"github.com/309dot/persona-console/internal/domain"
)

// ChatStreamHandler serves the WebSocket chat stream. Each ask produces a
// thread on the wire: a question frame carrying a fresh thread id, reveal
// frames with the growing answer prefix, an answer frame that patches the
// thread with the final reply (the thread id and question text never change),
// and a done frame once the reveal finishes. Server-side history stays
// append-only; the patch exists only at the display layer.
type ChatStreamHandler struct {
	ctrl  *conversation.Controller
	isDev bool
}

// NewChatStreamHandler creates the WebSocket chat handler.
func NewChatStreamHandler(ctrl *conversation.Controller, isDev bool) *ChatStreamHandler {
	return &ChatStreamHandler{ctrl: ctrl, isDev: isDev}
}

// chatFrame is the wire format in both directions.
type chatFrame struct {
	Type     string                   `json:"type"`
	ThreadID string                   `json:"thread_id,omitempty"`
	Text     string                   `json:"text,omitempty"`
	At       string                   `json:"at,omitempty"`
	Blocked  bool                     `json:"blocked,omitempty"`
	Category string                   `json:"category,omitempty"`
	Quota    *conversation.QuotaState `json:"quota,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// wsConn serializes frame writes; reveal frames arrive from the engine's
// goroutine while the read loop may be writing.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeFrame(f chatFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(context.Background(), websocket.MessageText, data)
}

// threadSink forwards reveal ticks for one thread to the connection.
type threadSink struct {
	conn     *wsConn
	threadID string
}

func (s *threadSink) OnReveal(prefix string) {
	if err := s.conn.writeFrame(chatFrame{Type: "reveal", ThreadID: s.threadID, Text: prefix}); err != nil {
		slog.Debug("reveal frame write failed", "error", err)
	}
}

func (s *threadSink) OnDone(full string) {
	if err := s.conn.writeFrame(chatFrame{Type: "done", ThreadID: s.threadID, Text: full}); err != nil {
		slog.Debug("done frame write failed", "error", err)
	}
}

// ServeHTTP implements the WebSocket upgrade and read loop.
func (h *ChatStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.isDev {
		opts.InsecureSkipVerify = true
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	conn := &wsConn{conn: ws}
	defer func() {
		h.ctrl.SetRevealSink(nil)
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("websocket close failed", "error", closeErr)
		}
	}()

	for {
		_, data, err := ws.Read(r.Context())
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("websocket read ended", "error", err)
			}
			return
		}

		var frame chatFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.writeError(conn, "", "invalid frame")
			continue
		}

		switch frame.Type {
		case "ask":
			h.handleAsk(r.Context(), conn, frame.Text)
		default:
			h.writeError(conn, "", "unknown frame type")
		}
	}
}

func (h *ChatStreamHandler) handleAsk(ctx context.Context, conn *wsConn, question string) {
	threadID := uuid.NewString()

	// The question frame goes out before the network call so the UI can show
	// the pending thread while the answer is in flight.
	if err := conn.writeFrame(chatFrame{
		Type:     "question",
		ThreadID: threadID,
		Text:     question,
		At:       time.Now().Format(time.RFC3339),
	}); err != nil {
		return
	}

	h.ctrl.SetRevealSink(&threadSink{conn: conn, threadID: threadID})

	outcome, err := h.ctrl.Submit(ctx, question)
	if err != nil {
		h.writeError(conn, threadID, submitErrorText(err))
		return
	}

	answer := chatFrame{
		Type:     "answer",
		ThreadID: threadID,
		Text:     outcome.Reply.Text,
		At:       outcome.Reply.Timestamp,
		Blocked:  outcome.Reply.Blocked,
		Category: outcome.Reply.Category,
	}
	quota := h.ctrl.Quota()
	answer.Quota = &quota
	if err := conn.writeFrame(answer); err != nil {
		return
	}

	// System notices are not revealed tick by tick; close the thread now.
	if outcome.Reply.Role != domain.RoleAgent {
		if err := conn.writeFrame(chatFrame{Type: "done", ThreadID: threadID, Text: outcome.Reply.Text}); err != nil {
			slog.Debug("done frame write failed", "error", err)
		}
	}
}

func (h *ChatStreamHandler) writeError(conn *wsConn, threadID, message string) {
	if err := conn.writeFrame(chatFrame{Type: "error", ThreadID: threadID, Error: message}); err != nil {
		slog.Debug("error frame write failed", "error", err)
	}
}

func submitErrorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyQuestion),
		errors.Is(err, conversation.ErrNoSession),
		errors.Is(err, conversation.ErrQuotaExhausted),
		errors.Is(err, conversation.ErrBusy):
		return err.Error()
	default:
		return "failed to submit question"
	}
}
