package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// UserRepository stores users keyed by email together with their embedded session.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	Get(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// SwapSession replaces the session only if the stored token still equals expectedToken.
	SwapSession(ctx context.Context, email, expectedToken string, next domain.Session) (bool, error)
	ClearSession(ctx context.Context, email string) error
	// DeleteParticipants removes every participant account and returns how many went.
	DeleteParticipants(ctx context.Context) (int, error)
}

// QuestionBank returns the current question bank (from cache/backing store).
type QuestionBank interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// TestRepository stores Test records and the single active-test claim.
type TestRepository interface {
	Save(ctx context.Context, test domain.Test) error
	Get(ctx context.Context, id string) (domain.Test, error)
	List(ctx context.Context) ([]domain.Test, error)
	Delete(ctx context.Context, id string) error

	// ClaimActive atomically takes the active slot for one run of testID. Any existing
	// claim, including another run of the same test, makes ok false; holder names the
	// test holding the slot.
	ClaimActive(ctx context.Context, testID, runID string) (holder string, ok bool, err error)
	// ReleaseActive frees the slot only if testID holds it with runID. An empty runID
	// matches any run of testID.
	ReleaseActive(ctx context.Context, testID, runID string) error
}

// PresenceChannel broadcasts the running test's questions to every subscriber.
type PresenceChannel interface {
	// Publish replaces the whole presence value in one write.
	Publish(ctx context.Context, presence domain.Presence) error
	// Clear empties the channel if it currently belongs to testID (any test when testID is empty).
	Clear(ctx context.Context, testID string, reason domain.ClearReason) error
	Current(ctx context.Context) (domain.Presence, error)
	// Subscribe delivers the current value immediately and every change after it.
	// The caller must invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context) (<-chan domain.Presence, func(), error)
}

// PresenceResyncer is implemented by presence channels whose local view can drift from
// the shared snapshot.
type PresenceResyncer interface {
	Resync(ctx context.Context) error
}

// SubmissionRepository appends answer submissions; one per (run, email).
type SubmissionRepository interface {
	Insert(ctx context.Context, submission domain.AnswerSubmission) error
	// List returns submissions in insertion order.
	List(ctx context.Context) ([]domain.AnswerSubmission, error)
	Purge(ctx context.Context) error
}
