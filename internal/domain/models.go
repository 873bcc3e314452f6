package domain

import (
	"fmt"
	"time"
)

// Role separates quiz administrators from participants.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleParticipant
}

// Session is the single live login of a user.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the session holds a token that has not expired at now.
func (s Session) Active(now time.Time) bool {
	return s.Token != "" && s.ExpiresAt.After(now)
}

// User is keyed by email. CredentialSecret holds a bcrypt hash.
type User struct {
	Email            string    `json:"email"`
	DisplayName      string    `json:"displayName"`
	CredentialSecret string    `json:"-"`
	Role             Role      `json:"role"`
	Session          Session   `json:"session"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Question is a multiple-choice entry of the question bank.
type Question struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Choices    []string `json:"choices"`
	Answer     Answer   `json:"answer"`
	Difficulty string   `json:"difficulty,omitempty"`
	Subject    string   `json:"subject,omitempty"`
}

// Clone returns a deep copy so snapshots never share choice slices with the bank.
func (q Question) Clone() Question {
	c := q
	c.Choices = append([]string(nil), q.Choices...)
	return c
}

// Normalize validates the question and rewrites its canonical answer in index form.
func (q *Question) Normalize() error {
	if q.Prompt == "" || len(q.Choices) < 2 {
		return ErrInvalidQuestion
	}
	answer, err := q.Answer.Resolve(q.Choices)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidQuestion, q.ID, err)
	}
	q.Answer = answer
	return nil
}

// CorrectChoice returns the text of the canonical answer.
func (q Question) CorrectChoice() string {
	if q.Answer.Kind == AnswerText {
		return q.Answer.Text
	}
	if q.Answer.Index >= 0 && q.Answer.Index < len(q.Choices) {
		return q.Choices[q.Answer.Index]
	}
	return ""
}

// TestStatus is the lifecycle state of a Test.
type TestStatus string

const (
	TestStopped TestStatus = "stopped"
	TestStarted TestStatus = "started"
)

// Test is a named, immutable snapshot of questions drawn from the bank.
type Test struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	RequestedQuestionCount int        `json:"requestedQuestionCount"`
	CreatedAt              time.Time  `json:"createdAt"`
	Status                 TestStatus `json:"status"`
	Questions              []Question `json:"questions"`

	// RunID and StartedAt describe the latest run. DeadlineAt is zero while stopped.
	RunID      string    `json:"runId,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	DeadlineAt time.Time `json:"deadlineAt,omitempty"`
}

// Started reports whether the test is the active one.
func (t Test) Started() bool {
	return t.Status == TestStarted
}

// Overdue reports whether a started test has passed its deadline.
func (t Test) Overdue(now time.Time) bool {
	return t.Started() && !t.DeadlineAt.IsZero() && !now.Before(t.DeadlineAt)
}

// Summary is the admin listing view of a test.
type Summary struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	RequestedQuestionCount int        `json:"requestedQuestionCount"`
	CreatedAt              time.Time  `json:"createdAt"`
	Status                 TestStatus `json:"status"`
	DeadlineAt             time.Time  `json:"deadlineAt,omitempty"`
}

// Summarize strips the question snapshot.
func (t Test) Summarize() Summary {
	return Summary{
		ID:                     t.ID,
		Name:                   t.Name,
		RequestedQuestionCount: t.RequestedQuestionCount,
		CreatedAt:              t.CreatedAt,
		Status:                 t.Status,
		DeadlineAt:             t.DeadlineAt,
	}
}

// PresentQuestion is the participant-facing copy of a started test's question.
// The canonical answer is deliberately absent.
type PresentQuestion struct {
	ID      string   `json:"id"`
	TestID  string   `json:"testId"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// ClearReason explains why the presence channel was emptied.
type ClearReason string

const (
	ReasonStopped ClearReason = "stopped"
	ReasonTimeout ClearReason = "timeout"
	ReasonDeleted ClearReason = "deleted"
)

// Presence is the full value of the broadcast channel. An empty Presence means no test is running.
type Presence struct {
	TestID     string            `json:"testId,omitempty"`
	RunID      string            `json:"runId,omitempty"`
	TestName   string            `json:"testName,omitempty"`
	Questions  []PresentQuestion `json:"questions"`
	DeadlineAt time.Time         `json:"deadlineAt,omitempty"`
	Reason     ClearReason       `json:"reason,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Empty reports whether no test is currently broadcast.
func (p Presence) Empty() bool {
	return p.TestID == "" || len(p.Questions) == 0
}

// PresenceFor builds the broadcast value for a started test.
func PresenceFor(t Test, now time.Time) Presence {
	questions := make([]PresentQuestion, 0, len(t.Questions))
	for _, q := range t.Questions {
		questions = append(questions, PresentQuestion{
			ID:      q.ID,
			TestID:  t.ID,
			Prompt:  q.Prompt,
			Choices: append([]string(nil), q.Choices...),
		})
	}
	return Presence{
		TestID:     t.ID,
		RunID:      t.RunID,
		TestName:   t.Name,
		Questions:  questions,
		DeadlineAt: t.DeadlineAt,
		UpdatedAt:  now,
	}
}

// AnswerSubmission is one participant's answers for one run of a test.
type AnswerSubmission struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"displayName"`
	TestID      string            `json:"testId"`
	TestName    string            `json:"testName"`
	RunID       string            `json:"runId"`
	Answers     map[string]Answer `json:"answers"`
	Forced      bool              `json:"forced"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// QuestionOutcome is the per-question breakdown of a scored submission.
type QuestionOutcome struct {
	QuestionID    string `json:"questionId"`
	Chosen        string `json:"chosen,omitempty"`
	CorrectChoice string `json:"correctChoice"`
	Correct       bool   `json:"correct"`
}

// LeaderboardEntry is one ranked row of the results view.
type LeaderboardEntry struct {
	Rank     int               `json:"rank"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Score    int               `json:"score"`
	Total    int               `json:"total"`
	Outcomes []QuestionOutcome `json:"outcomes,omitempty"`
}

// Leaderboard captures the ordered scoreboard for a test.
type Leaderboard struct {
	TestID    string             `json:"testId,omitempty"`
	TestName  string             `json:"testName,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Receipt is returned to the participant after a successful submission.
type Receipt struct {
	Submission AnswerSubmission `json:"submission"`
	Score      int              `json:"score"`
	Total      int              `json:"total"`
}

// AnswerKeyEntry is a question with its correct choice spelled out.
type AnswerKeyEntry struct {
	QuestionID    string `json:"questionId"`
	Prompt        string `json:"prompt"`
	CorrectChoice string `json:"correctChoice"`
}
