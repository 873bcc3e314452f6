package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"live-quiz-service/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = time.Hour

// SessionRegistry issues and invalidates the single live session of each user.
type SessionRegistry struct {
	users      UserRepository
	ttl        time.Duration
	bcryptCost int
	opts       options
}

// NewSessionRegistry builds a registry; ttl <= 0 falls back to DefaultSessionTTL and
// bcryptCost <= 0 to bcrypt.DefaultCost.
func NewSessionRegistry(users UserRepository, ttl time.Duration, bcryptCost int, opts ...Option) *SessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &SessionRegistry{
		users:      users,
		ttl:        ttl,
		bcryptCost: bcryptCost,
		opts:       buildOptions(opts),
	}
}

// RegisterInput carries a new account.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
	Role        domain.Role
}

// Register creates a user with a hashed credential.
func (r *SessionRegistry) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.DisplayName)
	if email == "" || name == "" || in.Password == "" {
		return domain.User{}, domain.ErrInvalidUser
	}
	role := in.Role
	if role == "" {
		role = domain.RoleParticipant
	}
	if !role.Valid() {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", domain.ErrForbidden, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), r.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash credential: %w", err)
	}
	user := domain.User{
		Email:            email,
		DisplayName:      name,
		CredentialSecret: string(hash),
		Role:             role,
		CreatedAt:        r.opts.now(),
	}
	if err := r.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	r.opts.logger.Info("user registered", zap.String("email", email), zap.String("role", string(role)))
	return user, nil
}

// Signup is the public registration path; it always creates a participant.
func (r *SessionRegistry) Signup(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Role = domain.RoleParticipant
	return r.Register(ctx, in)
}

// Login verifies the credential and mints a new session when no live one exists.
func (r *SessionRegistry) Login(ctx context.Context, email, credential string) (domain.User, error) {
	email = NormalizeEmail(email)
	user, err := r.users.Get(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.CredentialSecret), []byte(credential)) != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	now := r.opts.now()
	if user.Session.Active(now) {
		r.opts.logger.Info("login rejected: session conflict", zap.String("email", email))
		return domain.User{}, domain.ErrSessionConflict
	}

	// An expired session is overwritten by the swap below.
	next := domain.Session{Token: r.opts.newID(), ExpiresAt: now.Add(r.ttl)}
	swapped, err := r.users.SwapSession(ctx, email, user.Session.Token, next)
	if err != nil {
		return domain.User{}, err
	}
	if !swapped {
		// Another login won the race between our read and our write.
		return domain.User{}, domain.ErrSessionConflict
	}
	user.Session = next
	r.opts.logger.Info("login", zap.String("email", email), zap.Time("expires_at", next.ExpiresAt))
	return user, nil
}

// Invalidate clears the user's session; used on logout and expiry.
func (r *SessionRegistry) Invalidate(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := r.users.ClearSession(ctx, email); err != nil {
		return err
	}
	r.opts.logger.Info("session invalidated", zap.String("email", email))
	return nil
}

// IsValid reports whether the session expiry is still in the future.
func (r *SessionRegistry) IsValid(s domain.Session) bool {
	return s.ExpiresAt.After(r.opts.now())
}

// Authenticate resolves the user behind an (email, token) pair held by a client.
func (r *SessionRegistry) Authenticate(ctx context.Context, email, token string) (domain.User, error) {
	if email == "" || token == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}
	user, err := r.users.Get(ctx, NormalizeEmail(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, err
	}
	if user.Session.Token != token {
		return domain.User{}, domain.ErrUnauthenticated
	}
	if !r.IsValid(user.Session) {
		return domain.User{}, domain.ErrSessionExpired
	}
	return user, nil
}

// ActiveSessions lists users holding a non-expired session.
func (r *SessionRegistry) ActiveSessions(ctx context.Context) ([]domain.User, error) {
	users, err := r.users.List(ctx)
	if err != nil {
		return nil, err
	}
	now := r.opts.now()
	active := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u.Session.Active(now) {
			active = append(active, u)
		}
	}
	return active, nil
}

// ClearAllSessions invalidates every live session and returns how many were cleared.
func (r *SessionRegistry) ClearAllSessions(ctx context.Context) (int, error) {
	active, err := r.ActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	for i, u := range active {
		if err := r.users.ClearSession(ctx, u.Email); err != nil {
			return i, err
		}
	}
	r.opts.logger.Info("all sessions cleared", zap.Int("count", len(active)))
	return len(active), nil
}

// DeleteParticipants removes every participant account. Admin accounts are kept.
func (r *SessionRegistry) DeleteParticipants(ctx context.Context) (int, error) {
	n, err := r.users.DeleteParticipants(ctx)
	if err != nil {
		return n, err
	}
	r.opts.logger.Info("participants deleted", zap.Int("count", n))
	return n, nil
}

// SweepExpired clears sessions whose expiry has passed. A session replaced by a newer
// login in the meantime is left alone.
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int, error) {
	users, err := r.users.List(ctx)
	if err != nil {
		return 0, err
	}
	now := r.opts.now()
	cleared := 0
	for _, u := range users {
		if u.Session.Token == "" || u.Session.ExpiresAt.After(now) {
			continue
		}
		ok, err := r.users.SwapSession(ctx, u.Email, u.Session.Token, domain.Session{})
		if err != nil {
			return cleared, err
		}
		if ok {
			cleared++
			r.opts.logger.Info("session expired", zap.String("email", u.Email))
		}
	}
	return cleared, nil
}

// NormalizeEmail is the natural-key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
