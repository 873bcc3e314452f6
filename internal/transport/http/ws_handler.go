package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Websocket message types.
const (
	msgPresence       = "presence"
	msgAccepted       = "accepted"
	msgSubmitted      = "submitted"
	msgForceSubmitted = "forceSubmitted"
	msgSessionExpired = "sessionExpired"
	msgError          = "error"

	msgAnswer = "answer"
	msgSubmit = "submit"
)

// SessionChecker resolves the user behind the credentials a connection was opened with.
type SessionChecker interface {
	Authenticate(ctx context.Context, email, token string) (domain.User, error)
}

// Reasons carried by a sessionExpired message.
const (
	sessionEnded       = "expired"
	sessionInvalidated = "invalidated"
)

type WSHandler struct {
	sessions  SessionChecker
	presence  app.PresenceChannel
	collector *app.SubmissionCollector
	logger    *zap.Logger
	now       func() time.Time
	upgrader  websocket.Upgrader
}

func NewWSHandler(sessions SessionChecker, presence app.PresenceChannel, collector *app.SubmissionCollector, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		sessions:  sessions,
		presence:  presence,
		collector: collector,
		logger:    logger,
		now:       time.Now,
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

type answerPayload struct {
	QuestionID string        `json:"questionId"`
	Choice     domain.Answer `json:"choice"`
}

type acceptedPayload struct {
	QuestionID string `json:"questionId"`
	Answered   int    `json:"answered"`
	Total      int    `json:"total"`
}

type sessionExpiredPayload struct {
	ExpiredAt time.Time `json:"expiredAt"`
	Reason    string    `json:"reason"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS streams the presence channel to an authenticated client. Participants keep a
// draft answer map on the connection and submit it explicitly or when the countdown ends.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, h.logger, domain.ErrUnauthenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe, err := h.presence.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: msgError, Payload: errorPayload{Category: domain.CategoryOf(err), Message: err.Error()}})
		return
	}
	defer unsubscribe()

	c := &wsClient{
		handler:    h,
		conn:       conn,
		user:       user,
		send:       make(chan outboundMessage[any], 16),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		drafts:     make(map[string]domain.Answer),
	}

	go c.writeLoop()

	updatesDone := make(chan struct{})
	go func() {
		defer close(updatesDone)
		for {
			select {
			case p, ok := <-updates:
				if !ok {
					return
				}
				c.onPresence(ctx, p)
			case <-c.done:
				return
			}
		}
	}()

	expiry := time.AfterFunc(user.Session.ExpiresAt.Sub(h.now()), c.expireSession)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case msgAnswer:
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.pushError(domain.CategorySubmission, "invalid answer payload")
				continue
			}
			if c.checkSession(ctx) {
				c.onAnswer(payload)
			}
		case msgSubmit:
			if c.checkSession(ctx) {
				c.onSubmit(ctx)
			}
		default:
			c.pushError(domain.CategoryInternal, "unsupported message type")
		}
	}

	expiry.Stop()
	close(c.done)
	<-updatesDone
	c.stopDeadline()
	<-c.writerDone
}

// wsClient is the per-connection state. The presence goroutine, the read loop and the
// timers all touch it, so mutable fields live behind mu.
type wsClient struct {
	handler    *WSHandler
	conn       *websocket.Conn
	user       domain.User
	send       chan outboundMessage[any]
	done       chan struct{}
	writerDone chan struct{}

	mu        sync.Mutex
	presence  domain.Presence
	drafts    map[string]domain.Answer
	submitted bool
	deadline  *time.Timer
}

func (c *wsClient) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.handler.logger.Debug("ws write error", zap.String("email", c.user.Email), zap.Error(err))
				return
			}
			if msg.Type == msgSessionExpired {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"),
					time.Now().Add(time.Second))
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// push queues msg unless the connection is going away.
func (c *wsClient) push(msgType string, payload any) bool {
	select {
	case c.send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		return true
	case <-c.done:
		return false
	case <-c.writerDone:
		return false
	}
}

func (c *wsClient) pushError(category domain.Category, message string) {
	c.push(msgError, errorPayload{Category: category, Message: message})
}

func (c *wsClient) pushErr(err error) {
	c.pushError(domain.CategoryOf(err), err.Error())
}

func (c *wsClient) onPresence(ctx context.Context, p domain.Presence) {
	c.mu.Lock()
	prev := c.presence
	c.presence = p
	switch {
	case !p.Empty() && p.RunID != prev.RunID:
		// A new run starts with a clean answer sheet.
		c.drafts = make(map[string]domain.Answer)
		c.submitted = false
		c.armDeadlineLocked(ctx, p)
	case p.Empty():
		c.disarmDeadlineLocked()
	}
	c.mu.Unlock()

	c.push(msgPresence, p)

	if p.Empty() && p.Reason == domain.ReasonTimeout && !prev.Empty() {
		c.forceSubmit(ctx, prev.TestID, prev.RunID)
	}
}

func (c *wsClient) armDeadlineLocked(ctx context.Context, p domain.Presence) {
	c.disarmDeadlineLocked()
	if c.user.Role != domain.RoleParticipant || p.DeadlineAt.IsZero() {
		return
	}
	testID, runID := p.TestID, p.RunID
	c.deadline = time.AfterFunc(p.DeadlineAt.Sub(c.handler.now()), func() {
		c.forceSubmit(ctx, testID, runID)
	})
}

func (c *wsClient) disarmDeadlineLocked() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
}

func (c *wsClient) stopDeadline() {
	c.mu.Lock()
	c.disarmDeadlineLocked()
	c.mu.Unlock()
}

func (c *wsClient) onAnswer(payload answerPayload) {
	if c.user.Role != domain.RoleParticipant {
		c.pushErr(domain.ErrForbidden)
		return
	}
	c.mu.Lock()
	if c.presence.Empty() {
		c.mu.Unlock()
		c.pushErr(domain.ErrNoActiveTest)
		return
	}
	if c.submitted {
		c.mu.Unlock()
		c.pushErr(domain.ErrAlreadySubmitted)
		return
	}
	known := false
	for _, q := range c.presence.Questions {
		if q.ID == payload.QuestionID {
			known = true
			break
		}
	}
	if !known {
		c.mu.Unlock()
		c.pushErr(domain.ErrUnknownQuestion)
		return
	}
	c.drafts[payload.QuestionID] = payload.Choice
	ack := acceptedPayload{QuestionID: payload.QuestionID, Answered: len(c.drafts), Total: len(c.presence.Questions)}
	c.mu.Unlock()

	c.push(msgAccepted, ack)
}

func (c *wsClient) onSubmit(ctx context.Context) {
	if c.user.Role != domain.RoleParticipant {
		c.pushErr(domain.ErrForbidden)
		return
	}
	c.mu.Lock()
	req := app.SubmitRequest{
		Email:       c.user.Email,
		DisplayName: c.user.DisplayName,
		TestID:      c.presence.TestID,
		RunID:       c.presence.RunID,
		Answers:     copyAnswers(c.drafts),
	}
	c.mu.Unlock()

	receipt, err := c.handler.collector.Submit(ctx, req)
	if err != nil {
		c.pushErr(err)
		return
	}
	c.mu.Lock()
	if c.presence.RunID == receipt.Submission.RunID {
		c.submitted = true
		c.disarmDeadlineLocked()
	}
	c.mu.Unlock()
	c.push(msgSubmitted, receipt)
}

// forceSubmit sends whatever drafts exist for runID once, when its countdown elapses.
func (c *wsClient) forceSubmit(ctx context.Context, testID, runID string) {
	if c.user.Role != domain.RoleParticipant {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	// Drafts belong to the current run; a newer run must not be submitted under an old id.
	if c.submitted || runID == "" || (!c.presence.Empty() && c.presence.RunID != runID) {
		c.mu.Unlock()
		return
	}
	c.submitted = true
	c.disarmDeadlineLocked()
	answers := copyAnswers(c.drafts)
	c.mu.Unlock()

	if !c.checkSession(ctx) {
		return
	}
	receipt, err := c.handler.collector.Submit(ctx, app.SubmitRequest{
		Email:       c.user.Email,
		DisplayName: c.user.DisplayName,
		TestID:      testID,
		RunID:       runID,
		Answers:     answers,
		Forced:      true,
	})
	if errors.Is(err, domain.ErrAlreadySubmitted) {
		return
	}
	if err != nil {
		c.handler.logger.Warn("forced submission failed", zap.String("email", c.user.Email), zap.String("run_id", runID), zap.Error(err))
		c.pushErr(err)
		return
	}
	c.push(msgForceSubmitted, receipt)
}

// checkSession confirms the connection's session is still the user's live one. A session
// replaced by a newer login, cleared by an admin or past its expiry closes the socket.
func (c *wsClient) checkSession(ctx context.Context) bool {
	_, err := c.handler.sessions.Authenticate(ctx, c.user.Email, c.user.Session.Token)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrSessionExpired):
		c.expireSession()
	case errors.Is(err, domain.ErrUnauthenticated):
		c.handler.logger.Info("closing websocket: session invalidated", zap.String("email", c.user.Email))
		c.push(msgSessionExpired, sessionExpiredPayload{ExpiredAt: c.handler.now(), Reason: sessionInvalidated})
	default:
		c.pushErr(err)
	}
	return false
}

func (c *wsClient) expireSession() {
	c.handler.logger.Info("closing websocket: session expired", zap.String("email", c.user.Email))
	c.push(msgSessionExpired, sessionExpiredPayload{ExpiredAt: c.user.Session.ExpiresAt, Reason: sessionEnded})
}

func copyAnswers(in map[string]domain.Answer) map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
