package domain

import (
	"errors"
	"fmt"
)

// Auth errors.
var (
	// ErrInvalidCredentials is returned when no user matches the identity and credential.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrSessionConflict is returned when the user already has a live session on another device.
	ErrSessionConflict = errors.New("already logged in on another device")
	// ErrSessionExpired is returned when a presented session token has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnauthenticated is returned when no session accompanies the request.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrForbidden is returned when the caller's role does not allow the action.
	ErrForbidden = errors.New("not allowed for this role")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound is returned by user stores for unknown identities.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUser is returned when registering without email, name or password.
	ErrInvalidUser = errors.New("email, name and password are required")
)

// Lifecycle errors.
var (
	ErrAnotherTestActive     = errors.New("another test is already running")
	ErrInsufficientQuestions = errors.New("not enough questions in the bank")
	ErrTestNotFound          = errors.New("test not found")
	ErrInvalidTest           = errors.New("test needs a name and a positive question count")
	ErrInvalidQuestion       = errors.New("question needs a prompt, two choices and a valid answer")
)

// Submission errors.
var (
	ErrAlreadySubmitted  = errors.New("answers already submitted for this test")
	ErrIncompleteAnswers = errors.New("every question must be answered before submitting")
	ErrNoActiveTest      = errors.New("no test is running")
	ErrUnknownQuestion   = errors.New("question is not part of the running test")
	ErrInvalidChoice     = errors.New("choice is not one of the question's options")
	ErrStaleRun          = errors.New("submission belongs to a run that is no longer active")
)

// StoreError wraps a failure of the underlying shared state store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore returns nil for a nil err and a *StoreError otherwise.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Category groups errors for presentation.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryLifecycle  Category = "lifecycle"
	CategorySubmission Category = "submission"
	CategoryStore      Category = "store"
	CategoryInternal   Category = "internal"
)

var categories = []struct {
	category Category
	errs     []error
}{
	{CategoryAuth, []error{ErrInvalidCredentials, ErrSessionConflict, ErrSessionExpired, ErrUnauthenticated, ErrForbidden, ErrEmailTaken, ErrUserNotFound, ErrInvalidUser}},
	{CategoryLifecycle, []error{ErrAnotherTestActive, ErrInsufficientQuestions, ErrTestNotFound, ErrInvalidTest, ErrInvalidQuestion}},
	{CategorySubmission, []error{ErrAlreadySubmitted, ErrIncompleteAnswers, ErrNoActiveTest, ErrUnknownQuestion, ErrInvalidChoice, ErrStaleRun}},
}

// CategoryOf classifies err according to the error taxonomy.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var se *StoreError
	if errors.As(err, &se) {
		return CategoryStore
	}
	for _, c := range categories {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.category
			}
		}
	}
	return CategoryInternal
}
