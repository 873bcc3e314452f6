package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// clearPresence empties the snapshot only while it belongs to ARGV[1] (any test when empty).
var clearPresence = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if ARGV[1] ~= "" and cur ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2])
redis.call("DEL", KEYS[2])
return 1
`)

// PresenceChannel stores the presence snapshot in Redis and fans changes out over pub/sub,
// so every instance's websocket clients see the same value.
// Notes:
//   - The snapshot key is the source of truth; PUBLISH only wakes subscribers.
//   - Local subscribers share one Redis subscription, relayed through an in-process hub.
type PresenceChannel struct {
	client *redis.Client
	hub    *memory.PresenceHub
	now    func() time.Time
	logger *zap.Logger

	once     sync.Once
	startErr error
	relaying atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewPresenceChannel(client *redis.Client, logger *zap.Logger) *PresenceChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceChannel{
		client: client,
		hub:    memory.NewPresenceHub(),
		now:    time.Now,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (p *PresenceChannel) Publish(ctx context.Context, presence domain.Presence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey, data, 0)
		pipe.Set(ctx, presenceTestKey, presence.TestID, 0)
		pipe.Publish(ctx, presenceChannel, data)
		return nil
	})
	return domain.WrapStore("publish presence", err)
}

func (p *PresenceChannel) Clear(ctx context.Context, testID string, reason domain.ClearReason) error {
	cleared := domain.Presence{Questions: []domain.PresentQuestion{}, Reason: reason, UpdatedAt: p.now()}
	data, err := json.Marshal(cleared)
	if err != nil {
		return err
	}
	n, err := clearPresence.Run(ctx, p.client, []string{presenceKey, presenceTestKey}, testID, data).Int()
	if err != nil {
		return domain.WrapStore("clear presence", err)
	}
	if n == 0 {
		return nil
	}
	return domain.WrapStore("publish presence", p.client.Publish(ctx, presenceChannel, data).Err())
}

func (p *PresenceChannel) Current(ctx context.Context) (domain.Presence, error) {
	data, err := p.client.Get(ctx, presenceKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Presence{Questions: []domain.PresentQuestion{}}, nil
	}
	if err != nil {
		return domain.Presence{}, domain.WrapStore("get presence", err)
	}
	var presence domain.Presence
	if err := json.Unmarshal(data, &presence); err != nil {
		return domain.Presence{}, domain.WrapStore("decode presence", err)
	}
	return presence, nil
}

// Subscribe attaches to the shared relay, starting it on first use.
func (p *PresenceChannel) Subscribe(ctx context.Context) (<-chan domain.Presence, func(), error) {
	p.once.Do(func() { p.startErr = p.start(ctx) })
	if p.startErr != nil {
		return nil, nil, p.startErr
	}
	return p.hub.Subscribe(ctx)
}

func (p *PresenceChannel) start(ctx context.Context) error {
	relayCtx, cancel := context.WithCancel(context.Background())
	pubsub := p.client.Subscribe(relayCtx, presenceChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		close(p.done)
		return domain.WrapStore("subscribe presence", err)
	}
	// Read the snapshot only after the subscription is live so no change is missed.
	current, err := p.Current(ctx)
	if err != nil {
		cancel()
		_ = pubsub.Close()
		close(p.done)
		return err
	}
	_ = p.hub.Publish(ctx, current)
	p.cancel = cancel
	p.relaying.Store(true)

	go func() {
		defer close(p.done)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-relayCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var presence domain.Presence
				if err := json.Unmarshal([]byte(msg.Payload), &presence); err != nil {
					p.logger.Warn("drop malformed presence update", zap.Error(err))
					continue
				}
				_ = p.hub.Publish(relayCtx, presence)
			}
		}
	}()
	return nil
}

// Resync re-reads the snapshot and republishes it locally when the relay has fallen
// behind, which happens when pub/sub messages are lost across a reconnect. It is a no-op
// until the first Subscribe.
func (p *PresenceChannel) Resync(ctx context.Context) error {
	if !p.relaying.Load() {
		return nil
	}
	remote, err := p.Current(ctx)
	if err != nil {
		return err
	}
	local, _ := p.hub.Current(ctx)
	if samePresence(remote, local) || remote.UpdatedAt.Before(local.UpdatedAt) {
		return nil
	}
	p.logger.Info("presence relay resynced",
		zap.String("test_id", remote.TestID),
		zap.String("run_id", remote.RunID),
		zap.String("stale_run_id", local.RunID),
	)
	return p.hub.Publish(ctx, remote)
}

func samePresence(a, b domain.Presence) bool {
	return a.TestID == b.TestID && a.RunID == b.RunID && a.Reason == b.Reason && a.UpdatedAt.Equal(b.UpdatedAt)
}

// Close stops the relay. Subscribers already attached stop receiving updates.
func (p *PresenceChannel) Close() error {
	p.once.Do(func() { close(p.done) })
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
	return nil
}
