package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/gorilla/websocket"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	alice := env.loggedIn(t, "alice@x.io")
	conn := env.dial(t, alice)

	var idle domain.Presence
	readUntil(t, conn, msgPresence, &idle)
	if !idle.Empty() {
		t.Fatalf("expected empty presence before any test, got %+v", idle)
	}

	ctx := context.Background()
	test, err := env.lifecycle.CreateTest(ctx, "Round 1", 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.lifecycle.Start(ctx, test.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	var live domain.Presence
	readUntil(t, conn, msgPresence, &live)
	if live.TestID != test.ID || len(live.Questions) != 3 {
		t.Fatalf("unexpected presence: %+v", live)
	}

	correct := map[string]any{"q1": 1, "q2": "Paris", "q3": 1}
	for i, q := range live.Questions {
		send(t, conn, msgAnswer, map[string]any{"questionId": q.ID, "choice": correct[q.ID]})
		var ack acceptedPayload
		readUntil(t, conn, msgAccepted, &ack)
		if ack.QuestionID != q.ID || ack.Answered != i+1 || ack.Total != 3 {
			t.Fatalf("unexpected ack: %+v", ack)
		}
	}

	send(t, conn, msgSubmit, nil)
	var receipt domain.Receipt
	readUntil(t, conn, msgSubmitted, &receipt)
	if receipt.Score != 3 || receipt.Total != 3 || receipt.Submission.Forced {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	send(t, conn, msgSubmit, nil)
	var failure errorPayload
	readUntil(t, conn, msgError, &failure)
	if failure.Category != domain.CategorySubmission {
		t.Fatalf("expected submission error on resubmit, got %+v", failure)
	}

	admin := env.loggedIn(t, "admin@x.io")
	_, body := env.do(t, admin, http.MethodGet, "/api/results", nil)
	lb := decode[domain.Leaderboard](t, body)
	if len(lb.Entries) != 1 || lb.Entries[0].Email != "alice@x.io" || lb.Entries[0].Score != 3 {
		t.Fatalf("unexpected results: %s", body)
	}
}

func TestWebSocketIncompleteSubmitRejected(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	conn := env.dial(t, env.loggedIn(t, "bob@x.io"))
	readUntil(t, conn, msgPresence, nil)

	env.startTest(t, 2)
	var live domain.Presence
	readUntil(t, conn, msgPresence, &live)

	send(t, conn, msgAnswer, map[string]any{"questionId": live.Questions[0].ID, "choice": 0})
	readUntil(t, conn, msgAccepted, nil)
	send(t, conn, msgSubmit, nil)

	var failure errorPayload
	readUntil(t, conn, msgError, &failure)
	if failure.Category != domain.CategorySubmission || !strings.Contains(failure.Message, "1 of 2") {
		t.Fatalf("unexpected error: %+v", failure)
	}

	send(t, conn, msgAnswer, map[string]any{"questionId": "nope", "choice": 0})
	readUntil(t, conn, msgError, &failure)
	if failure.Message != domain.ErrUnknownQuestion.Error() {
		t.Fatalf("expected unknown question, got %+v", failure)
	}
}

func TestWebSocketForcedSubmitAtDeadline(t *testing.T) {
	env := newTestEnv(t, envOptions{countdown: 500 * time.Millisecond})
	conn := env.dial(t, env.loggedIn(t, "alice@x.io"))
	readUntil(t, conn, msgPresence, nil)

	test := env.startTest(t, 3)
	var live domain.Presence
	readUntil(t, conn, msgPresence, &live)
	send(t, conn, msgAnswer, map[string]any{"questionId": live.Questions[0].ID, "choice": 0})

	var receipt domain.Receipt
	readUntil(t, conn, msgForceSubmitted, &receipt)
	if !receipt.Submission.Forced || receipt.Submission.TestID != test.ID || receipt.Total != 3 {
		t.Fatalf("unexpected forced receipt: %+v", receipt)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stopped, err := env.lifecycle.Get(context.Background(), test.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stopped.Status == domain.TestStopped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected test to stop at the deadline, got %s", stopped.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWebSocketAdminCannotAnswer(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	conn := env.dial(t, env.loggedIn(t, "admin@x.io"))
	readUntil(t, conn, msgPresence, nil)

	env.startTest(t, 1)
	var live domain.Presence
	readUntil(t, conn, msgPresence, &live)

	send(t, conn, msgAnswer, map[string]any{"questionId": live.Questions[0].ID, "choice": 0})
	var failure errorPayload
	readUntil(t, conn, msgError, &failure)
	if failure.Category != domain.CategoryAuth {
		t.Fatalf("expected auth error, got %+v", failure)
	}
}

func TestWebSocketClosesWhenSessionExpires(t *testing.T) {
	env := newTestEnv(t, envOptions{sessionTTL: 700 * time.Millisecond})
	conn := env.dial(t, env.loggedIn(t, "alice@x.io"))
	readUntil(t, conn, msgPresence, nil)
	var expired sessionExpiredPayload
	readUntil(t, conn, msgSessionExpired, &expired)
	if expired.Reason != sessionEnded {
		t.Fatalf("expected expired session, got %+v", expired)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to close after session expiry")
	}
}

func TestWebSocketRejectsReplacedSession(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	conn := env.dial(t, env.loggedIn(t, "alice@x.io"))
	readUntil(t, conn, msgPresence, nil)

	env.startTest(t, 3)
	var live domain.Presence
	readUntil(t, conn, msgPresence, &live)
	for _, q := range live.Questions {
		send(t, conn, msgAnswer, map[string]any{"questionId": q.ID, "choice": 0})
		readUntil(t, conn, msgAccepted, nil)
	}

	if err := env.sessions.Invalidate(context.Background(), "alice@x.io"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	env.loggedIn(t, "alice@x.io")

	send(t, conn, msgAnswer, map[string]any{"questionId": live.Questions[0].ID, "choice": 1})
	_ = conn.WriteJSON(map[string]any{"type": msgSubmit})

	var expired sessionExpiredPayload
	readUntil(t, conn, msgSessionExpired, &expired)
	if expired.Reason != sessionInvalidated {
		t.Fatalf("expected invalidated session, got %+v", expired)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == msgAccepted || msg.Type == msgSubmitted {
			t.Fatalf("replaced session got %s", msg.Type)
		}
	}

	_, body := env.do(t, env.loggedIn(t, "admin@x.io"), http.MethodGet, "/api/results", nil)
	if lb := decode[domain.Leaderboard](t, body); len(lb.Entries) != 0 {
		t.Fatalf("expected no submissions from the replaced session, got %s", body)
	}
}

func TestWebSocketRequiresSession(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env), nil)
	if err == nil {
		t.Fatalf("expected dial without session to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func (e *testEnv) startTest(t *testing.T, count int) domain.Test {
	t.Helper()
	ctx := context.Background()
	test, err := e.lifecycle.CreateTest(ctx, "Round", count)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	started, err := e.lifecycle.Start(ctx, test.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return started
}

func (e *testEnv) dial(t *testing.T, c *http.Client) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Jar: c.Jar, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(wsURL(e), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsURL(e *testEnv) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil skips messages until one of type expect arrives and decodes its payload into out.
func readUntil(t *testing.T, conn *websocket.Conn, expect string, out any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", expect, err)
		}
		if msg.Type != expect {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(msg.Payload, out); err != nil {
				t.Fatalf("decode %s payload: %v", expect, err)
			}
		}
		return
	}
}
