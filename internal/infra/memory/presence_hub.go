package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// PresenceHub is an in-process implementation of app.PresenceChannel. Each subscriber
// gets a small buffered channel; a slow subscriber loses stale values, never the latest.
type PresenceHub struct {
	now func() time.Time

	mu          sync.Mutex
	current     domain.Presence
	subscribers map[chan domain.Presence]struct{}
}

func NewPresenceHub() *PresenceHub {
	return NewPresenceHubWithClock(time.Now)
}

func NewPresenceHubWithClock(now func() time.Time) *PresenceHub {
	return &PresenceHub{
		now:         now,
		current:     domain.Presence{Questions: []domain.PresentQuestion{}},
		subscribers: make(map[chan domain.Presence]struct{}),
	}
}

func (h *PresenceHub) Publish(_ context.Context, presence domain.Presence) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = presence
	h.broadcastLocked()
	return nil
}

func (h *PresenceHub) Clear(_ context.Context, testID string, reason domain.ClearReason) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if testID != "" && h.current.TestID != testID {
		return nil
	}
	h.current = domain.Presence{
		Questions: []domain.PresentQuestion{},
		Reason:    reason,
		UpdatedAt: h.now(),
	}
	h.broadcastLocked()
	return nil
}

func (h *PresenceHub) Current(_ context.Context) (domain.Presence, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, nil
}

func (h *PresenceHub) Subscribe(_ context.Context) (<-chan domain.Presence, func(), error) {
	ch := make(chan domain.Presence, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	ch <- h.current
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel, nil
}

// Subscribers returns the number of attached subscribers.
func (h *PresenceHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *PresenceHub) broadcastLocked() {
	p := h.current
	for ch := range h.subscribers {
		select {
		case ch <- p:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- p
		}
	}
}
