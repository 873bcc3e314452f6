package app_test

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/app"
)

func TestSweeperStopsOverdueTestsAndExpiresSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute, true)
	register(t, h, "a@x.io")
	_, _ = h.sessions.Login(ctx, "a@x.io", "secret")
	test := h.startTest(t, "Round 1", 2)

	sweeper := app.NewSweeper(h.lifecycle, h.sessions, time.Second, nil)
	sweeper.Sweep(ctx)
	if got, _ := h.lifecycle.Get(ctx, test.ID); !got.Started() {
		t.Fatalf("sweep stopped a test before its deadline")
	}

	h.clock.Advance(2 * time.Hour)
	sweeper.Sweep(ctx)
	if got, _ := h.lifecycle.Get(ctx, test.ID); got.Started() {
		t.Fatalf("sweep left an overdue test running")
	}
	if u, _ := h.users.Get(ctx, "a@x.io"); u.Session.Token != "" {
		t.Fatalf("sweep left an expired session")
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, time.Minute, true)
	sweeper := app.NewSweeper(h.lifecycle, h.sessions, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}

type countingResync struct{ calls int }

func (r *countingResync) Resync(context.Context) error {
	r.calls++
	return nil
}

func TestSweeperResyncsPresence(t *testing.T) {
	h := newHarness(t, time.Minute, true)
	r := &countingResync{}
	sweeper := app.NewSweeper(h.lifecycle, h.sessions, time.Second, nil).ResyncPresence(r)

	sweeper.Sweep(context.Background())
	sweeper.Sweep(context.Background())
	if r.calls != 2 {
		t.Fatalf("expected a resync per sweep, got %d", r.calls)
	}
}
