package http

import (
	"context"
	"net/http"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	cookieName = "quiz-session"
	emailValue = "email"
	tokenValue = "token"
)

type userKey struct{}

// Auth binds the signed session cookie to the SessionRegistry. The cookie only carries
// (email, token); validity is always decided by the registry.
type Auth struct {
	store    *sessions.CookieStore
	registry *app.SessionRegistry
	logger   *zap.Logger
}

func NewAuth(registry *app.SessionRegistry, secret []byte, secure bool, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Auth{store: store, registry: registry, logger: logger}
}

// SetSession writes the cookie for a freshly logged-in user.
func (a *Auth) SetSession(w http.ResponseWriter, r *http.Request, user domain.User) error {
	session, _ := a.store.Get(r, cookieName)
	session.Values[emailValue] = user.Email
	session.Values[tokenValue] = user.Session.Token
	session.Options.MaxAge = int(time.Until(user.Session.ExpiresAt).Seconds())
	return session.Save(r, w)
}

// ClearSession expires the cookie.
func (a *Auth) ClearSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := a.store.Get(r, cookieName)
	session.Values = map[interface{}]interface{}{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// RequireAuth rejects requests without a live session and stores the user in the context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := a.store.Get(r, cookieName)
		email, _ := session.Values[emailValue].(string)
		token, _ := session.Values[tokenValue].(string)

		user, err := a.registry.Authenticate(r.Context(), email, token)
		if err != nil {
			writeError(w, a.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// RequireRoles authenticates the request and allows only the listed roles.
func (a *Auth) RequireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := UserFrom(r.Context())
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, a.logger, domain.ErrForbidden)
		}))
	}
}

// UserFrom returns the authenticated user stored by RequireAuth.
func UserFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey{}).(domain.User)
	return user, ok
}
