package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

const (
	lockKeyPrefix      = "explorable:lock:"    // explorable:lock:{project_id} -> owner token
	eventChannelPrefix = "explorable:project:" // status events: explorable:project:{project_id}
)

// releaseScript deletes the lock only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// LockRepository provides a per-project in-flight lock.
type LockRepository struct {
	client *redis.Client
}

func NewLockRepository(client *redis.Client) *LockRepository {
	return &LockRepository{client: client}
}

// Acquire takes the lock for projectID for at most ttl. It returns
// domain.ErrProjectBusy when another run holds it. The returned release
// function is safe to call more than once.
func (r *LockRepository) Acquire(ctx context.Context, projectID string, ttl time.Duration) (func(), error) {
	key := lockKeyPrefix + projectID
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrProjectBusy
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err()
	}
	return release, nil
}

// EventPublisher fans status changes out over Redis Pub/Sub.
type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, rec domain.StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}
	if err := p.client.Publish(ctx, EventChannel(rec.ID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}
	return nil
}

// Subscribe returns status records published for projectID until ctx ends.
func (p *EventPublisher) Subscribe(ctx context.Context, projectID string) (<-chan domain.StatusRecord, error) {
	sub := p.client.Subscribe(ctx, EventChannel(projectID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan domain.StatusRecord, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rec domain.StatusRecord
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					continue
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func EventChannel(projectID string) string {
	return eventChannelPrefix + projectID
}
