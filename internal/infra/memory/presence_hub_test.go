package memory

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestPresenceHubSubscribeReceivesCurrentAndUpdates(t *testing.T) {
	ctx := context.Background()
	hub := NewPresenceHub()

	ch, cancel, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if p := recv(t, ch); !p.Empty() {
		t.Fatalf("expected empty initial presence, got %+v", p)
	}

	_ = hub.Publish(ctx, samplePresence("t1"))
	if p := recv(t, ch); p.TestID != "t1" || len(p.Questions) != 1 {
		t.Fatalf("unexpected presence: %+v", p)
	}

	// Clearing for a different test leaves the current value alone.
	_ = hub.Clear(ctx, "t2", domain.ReasonStopped)
	if cur, _ := hub.Current(ctx); cur.TestID != "t1" {
		t.Fatalf("foreign clear removed presence")
	}

	_ = hub.Clear(ctx, "t1", domain.ReasonTimeout)
	p := recv(t, ch)
	if !p.Empty() || p.Reason != domain.ReasonTimeout {
		t.Fatalf("expected timeout clear, got %+v", p)
	}
}

func TestPresenceHubSlowSubscriberKeepsLatest(t *testing.T) {
	ctx := context.Background()
	hub := NewPresenceHub()
	ch, cancel, _ := hub.Subscribe(ctx)
	defer cancel()

	for i := 0; i < 20; i++ {
		_ = hub.Publish(ctx, samplePresence("t1"))
	}
	_ = hub.Publish(ctx, samplePresence("last"))

	var last domain.Presence
drain:
	for {
		select {
		case p := <-ch:
			last = p
		default:
			break drain
		}
	}
	if last.TestID != "last" {
		t.Fatalf("expected latest value to survive, got %q", last.TestID)
	}
}

func TestPresenceHubCancelClosesChannel(t *testing.T) {
	hub := NewPresenceHub()
	ch, cancel, _ := hub.Subscribe(context.Background())
	cancel()
	cancel()

	for range ch {
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func recv(t *testing.T, ch <-chan domain.Presence) domain.Presence {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for presence")
		return domain.Presence{}
	}
}

func samplePresence(testID string) domain.Presence {
	return domain.Presence{
		TestID:   testID,
		RunID:    "run-" + testID,
		TestName: "Quiz",
		Questions: []domain.PresentQuestion{
			{ID: "q1", TestID: testID, Prompt: "What is 2 + 2?", Choices: []string{"3", "4"}},
		},
		DeadlineAt: time.Now().Add(time.Minute),
	}
}
