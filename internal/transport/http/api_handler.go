package http

import (
	"context"
	"net/http"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"

	"go.uber.org/zap"
)

// QuestionCounter reports the size of the question bank.
type QuestionCounter interface {
	Count(ctx context.Context) (int, error)
}

// APIHandler serves the JSON admin and account endpoints.
type APIHandler struct {
	sessions  *app.SessionRegistry
	lifecycle *app.LifecycleController
	scoring   *app.ScoringEngine
	bank      QuestionCounter
	auth      *Auth
	limiter   *loginLimiter
	logger    *zap.Logger
}

type userView struct {
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
	ExpiresAt   *time.Time  `json:"sessionExpiresAt,omitempty"`
}

func viewOf(u domain.User) userView {
	v := userView{Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
	if u.Session.Token != "" {
		exp := u.Session.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

func viewsOf(users []domain.User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	return out
}

func summariesOf(tests []domain.Test) []domain.Summary {
	out := make([]domain.Summary, 0, len(tests))
	for _, t := range tests {
		out = append(out, t.Summarize())
	}
	return out
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) login(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(r) {
		writeJSON(w, http.StatusTooManyRequests, errorPayload{Category: domain.CategoryAuth, Message: "too many login attempts"})
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Category: domain.CategoryAuth, Message: "invalid login payload"})
		return
	}
	user, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.auth.SetSession(w, r, user); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(user))
}

func (h *APIHandler) logout(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	if err := h.sessions.Invalidate(r.Context(), user.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	_ = h.auth.ClearSession(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) me(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, viewOf(user))
}

type registerRequest struct {
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

func (h *APIHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, domain.ErrInvalidUser)
		return
	}
	user, err := h.sessions.Register(r.Context(), app.RegisterInput{
		Email:       req.Email,
		DisplayName: req.Name,
		Password:    req.Password,
		Role:        req.Role,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(user))
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// signup is the public account endpoint. It shares the login limiter and never takes a role.
func (h *APIHandler) signup(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(r) {
		writeJSON(w, http.StatusTooManyRequests, errorPayload{Category: domain.CategoryAuth, Message: "too many signup attempts"})
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, domain.ErrInvalidUser)
		return
	}
	user, err := h.sessions.Signup(r.Context(), app.RegisterInput{
		Email:       req.Email,
		DisplayName: req.Name,
		Password:    req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(user))
}

func (h *APIHandler) deleteParticipants(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessions.DeleteParticipants(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *APIHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	users, err := h.sessions.ActiveSessions(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(users))
}

func (h *APIHandler) clearSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessions.ClearAllSessions(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *APIHandler) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Invalidate(r.Context(), r.PathValue("email")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTestRequest struct {
	Name          string `json:"name"`
	QuestionCount int    `json:"questionCount"`
}

func (h *APIHandler) createTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, domain.ErrInvalidTest)
		return
	}
	test, err := h.lifecycle.CreateTest(r.Context(), req.Name, req.QuestionCount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, test)
}

func (h *APIHandler) listTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.lifecycle.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summariesOf(tests))
}

func (h *APIHandler) activeTest(w http.ResponseWriter, r *http.Request) {
	test, ok, err := h.lifecycle.Active(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := struct {
		Test *domain.Summary `json:"test"`
	}{}
	if ok {
		s := test.Summarize()
		resp.Test = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) startTest(w http.ResponseWriter, r *http.Request) {
	test, err := h.lifecycle.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, test.Summarize())
}

func (h *APIHandler) stopTest(w http.ResponseWriter, r *http.Request) {
	test, err := h.lifecycle.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, test.Summarize())
}

func (h *APIHandler) deleteTest(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) questionCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.bank.Count(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *APIHandler) results(w http.ResponseWriter, r *http.Request) {
	lb, err := h.scoring.Results(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) purgeResults(w http.ResponseWriter, r *http.Request) {
	if err := h.scoring.PurgeResults(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) answerKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.scoring.AnswerKey(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}
