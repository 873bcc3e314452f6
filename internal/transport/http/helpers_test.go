package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"

	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	server    *httptest.Server
	sessions  *app.SessionRegistry
	lifecycle *app.LifecycleController
	presence  *memory.PresenceHub
}

type envOptions struct {
	countdown  time.Duration
	sessionTTL time.Duration
	loginRate  float64
	loginBurst int
}

func newTestEnv(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	if o.countdown == 0 {
		o.countdown = time.Minute
	}
	if o.sessionTTL == 0 {
		o.sessionTTL = time.Hour
	}
	if o.loginBurst == 0 {
		o.loginBurst = 100
	}

	users := memory.NewUserStore()
	tests := memory.NewTestStore()
	submissions := memory.NewSubmissionStore()
	presence := memory.NewPresenceHub()
	bank := memory.NewQuestionCache(memory.NewStaticQuestionLoader(sampleQuestions()), time.Minute)

	sessions := app.NewSessionRegistry(users, o.sessionTTL, bcrypt.MinCost)
	lifecycle := app.NewLifecycleController(tests, bank, presence, o.countdown)
	collector := app.NewSubmissionCollector(submissions, tests, presence)
	scoring := app.NewScoringEngine(tests, submissions)
	t.Cleanup(lifecycle.Close)

	handler := NewRouter(Deps{
		Sessions:     sessions,
		Lifecycle:    lifecycle,
		Collector:    collector,
		Scoring:      scoring,
		Presence:     presence,
		Bank:         bank,
		CookieSecret: []byte("0123456789abcdef0123456789abcdef"),
		LoginRate:    o.loginRate,
		LoginBurst:   o.loginBurst,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	env := &testEnv{server: server, sessions: sessions, lifecycle: lifecycle, presence: presence}
	env.register(t, "admin@x.io", "Admin", domain.RoleAdmin)
	env.register(t, "alice@x.io", "Alice", domain.RoleParticipant)
	env.register(t, "bob@x.io", "Bob", domain.RoleParticipant)
	return env
}

func (e *testEnv) register(t *testing.T, email, name string, role domain.Role) {
	t.Helper()
	_, err := e.sessions.Register(context.Background(), app.RegisterInput{
		Email: email, DisplayName: name, Password: "secret", Role: role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
}

func (e *testEnv) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

// loggedIn returns a client holding a session cookie for email.
func (e *testEnv) loggedIn(t *testing.T, email string) *http.Client {
	t.Helper()
	c := e.newClient(t)
	resp, body := e.do(t, c, http.MethodPost, "/api/login", map[string]string{"email": email, "password": "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, resp.StatusCode, body)
	}
	return c
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4", "5"}, Answer: domain.IndexAnswer(1)},
		{ID: "q2", Prompt: "Capital of France?", Choices: []string{"Rome", "Paris"}, Answer: domain.TextAnswer("Paris")},
		{ID: "q3", Prompt: "Largest planet?", Choices: []string{"Mars", "Jupiter"}, Answer: domain.IndexAnswer(1)},
	}
}
