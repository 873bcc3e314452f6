package http

import (
	"net/http"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"

	"go.uber.org/zap"
)

// Deps are the services the HTTP surface is wired to.
type Deps struct {
	Sessions  *app.SessionRegistry
	Lifecycle *app.LifecycleController
	Collector *app.SubmissionCollector
	Scoring   *app.ScoringEngine
	Presence  app.PresenceChannel
	Bank      QuestionCounter

	CookieSecret []byte
	SecureCookie bool
	LoginRate    float64
	LoginBurst   int
	Logger       *zap.Logger
}

// NewRouter builds the JSON API, the websocket endpoint and the health check.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := NewAuth(d.Sessions, d.CookieSecret, d.SecureCookie, logger)
	api := &APIHandler{
		sessions:  d.Sessions,
		lifecycle: d.Lifecycle,
		scoring:   d.Scoring,
		bank:      d.Bank,
		auth:      auth,
		limiter:   newLoginLimiter(d.LoginRate, d.LoginBurst),
		logger:    logger,
	}
	ws := NewWSHandler(d.Sessions, d.Presence, d.Collector, logger)

	anyUser := auth.RequireAuth
	admin := auth.RequireRoles(domain.RoleAdmin)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/signup", api.signup)
	mux.HandleFunc("POST /api/login", api.login)
	mux.Handle("POST /api/logout", anyUser(http.HandlerFunc(api.logout)))
	mux.Handle("GET /api/me", anyUser(http.HandlerFunc(api.me)))
	mux.Handle("GET /ws", anyUser(http.HandlerFunc(ws.ServeWS)))

	mux.Handle("POST /api/users", admin(http.HandlerFunc(api.register)))
	mux.Handle("DELETE /api/users", admin(http.HandlerFunc(api.deleteParticipants)))
	mux.Handle("GET /api/sessions", admin(http.HandlerFunc(api.listSessions)))
	mux.Handle("DELETE /api/sessions", admin(http.HandlerFunc(api.clearSessions)))
	mux.Handle("DELETE /api/sessions/{email}", admin(http.HandlerFunc(api.clearSession)))

	mux.Handle("POST /api/tests", admin(http.HandlerFunc(api.createTest)))
	mux.Handle("GET /api/tests", admin(http.HandlerFunc(api.listTests)))
	mux.Handle("GET /api/tests/active", admin(http.HandlerFunc(api.activeTest)))
	mux.Handle("POST /api/tests/{id}/start", admin(http.HandlerFunc(api.startTest)))
	mux.Handle("POST /api/tests/{id}/stop", admin(http.HandlerFunc(api.stopTest)))
	mux.Handle("DELETE /api/tests/{id}", admin(http.HandlerFunc(api.deleteTest)))

	mux.Handle("GET /api/questions/count", admin(http.HandlerFunc(api.questionCount)))
	mux.Handle("GET /api/results", admin(http.HandlerFunc(api.results)))
	mux.Handle("DELETE /api/results", admin(http.HandlerFunc(api.purgeResults)))
	mux.Handle("GET /api/answer-key", admin(http.HandlerFunc(api.answerKey)))
	return mux
}
