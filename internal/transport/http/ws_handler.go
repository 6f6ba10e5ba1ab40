package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"concrete-quiz-service/internal/app"
	"concrete-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler runs quiz sessions over a websocket, one session at a time per connection.
type WSHandler struct {
	quizzes     *app.QuizService
	ledger      *app.LedgerService
	defaultBank string
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(quizzes *app.QuizService, ledger *app.LedgerService, defaultBank string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		quizzes:     quizzes,
		ledger:      ledger,
		defaultBank: defaultBank,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	BankID    string            `json:"bankId"`
	Questions []domain.Question `json:"questions"`
}

type answerPayload struct {
	Choice string `json:"choice"`
}

type startedPayload struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
	Total     int    `json:"total"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wsConn holds the state of one websocket client.
type wsConn struct {
	h        *WSHandler
	ctx      context.Context
	username string
	send     chan outboundMessage[any]
	closing  chan struct{}
	relays   sync.WaitGroup

	mu        sync.Mutex
	sessionID string
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}

	entry, err := h.ledger.Login(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	c := &wsConn{
		h:        h,
		ctx:      r.Context(),
		username: entry.Username,
		send:     make(chan outboundMessage[any], 16),
		closing:  make(chan struct{}),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range c.send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", slog.String("username", c.username), slog.String("error", err.Error()))
				failed = true
				// unblocks the read loop
				_ = conn.Close()
			}
		}
	}()

	c.send <- outboundMessage[any]{Type: "ledger", Payload: entry}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					c.sendError("invalid start payload")
					continue
				}
			}
			c.start(payload)
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.sendError("invalid answer payload")
				continue
			}
			c.answer(payload.Choice)
		case "save":
			c.save()
		default:
			c.sendError("unsupported message type")
		}
	}

	// a disconnect discards whatever has not been recorded
	if id := c.currentSession(); id != "" {
		h.quizzes.Abandon(context.Background(), id)
	}
	close(c.closing)
	c.relays.Wait()
	close(c.send)
	<-writerDone
}

func (c *wsConn) start(payload startPayload) {
	if id := c.currentSession(); id != "" {
		_, err := c.h.quizzes.Result(c.ctx, id)
		if errors.Is(err, domain.ErrSessionNotFinished) {
			c.sendError("a quiz session is already running")
			return
		}
		// a finished but unsaved session is discarded
		c.h.quizzes.Abandon(c.ctx, id)
	}

	var (
		session *app.Session
		err     error
	)
	switch {
	case len(payload.Questions) > 0:
		session, err = c.h.quizzes.StartSession(c.ctx, c.username, payload.Questions)
	default:
		bankID := payload.BankID
		if bankID == "" {
			bankID = c.h.defaultBank
		}
		session, err = c.h.quizzes.StartBankSession(c.ctx, c.username, bankID)
	}
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.mu.Lock()
	c.sessionID = session.ID()
	c.mu.Unlock()

	c.send <- outboundMessage[any]{Type: "started", Payload: startedPayload{
		SessionID: session.ID(),
		Username:  c.username,
		Total:     session.State().Total,
	}}

	events, cancel := session.Subscribe()
	c.relays.Add(1)
	go c.relay(session.ID(), events, cancel)
}

// relay forwards session events to the client and records the result once
// the session finishes.
func (c *wsConn) relay(sessionID string, events <-chan domain.SessionEvent, cancel func()) {
	defer c.relays.Done()
	defer cancel()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !c.push(outboundMessage[any]{Type: string(ev.Type), Payload: ev}) {
				return
			}
			switch ev.Type {
			case domain.EventFinished:
				c.complete(sessionID)
				return
			case domain.EventAbandoned:
				return
			}
		case <-c.closing:
			return
		}
	}
}

func (c *wsConn) answer(choice string) {
	id := c.currentSession()
	if id == "" {
		c.sendError(domain.ErrSessionNotFound.Error())
		return
	}
	if _, err := c.h.quizzes.Answer(c.ctx, id, choice); err != nil {
		c.sendError(err.Error())
	}
}

func (c *wsConn) save() {
	id := c.currentSession()
	if id == "" {
		c.sendError(domain.ErrSessionNotFound.Error())
		return
	}
	c.complete(id)
}

// complete hands the result to the ledger. On failure the session stays
// registered so the client can retry with "save".
func (c *wsConn) complete(sessionID string) {
	entry, err := c.h.quizzes.Complete(context.Background(), sessionID)
	if err != nil {
		c.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	c.mu.Lock()
	if c.sessionID == sessionID {
		c.sessionID = ""
	}
	c.mu.Unlock()
	c.push(outboundMessage[any]{Type: "ledger", Payload: entry})
}

func (c *wsConn) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// push queues msg unless the connection is closing.
func (c *wsConn) push(msg outboundMessage[any]) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.closing:
		return false
	}
}

func (c *wsConn) sendError(message string) {
	c.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
