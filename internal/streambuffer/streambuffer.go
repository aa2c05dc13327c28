// Package streambuffer implements the per-(source, channel) FIFO that
// accumulates raw messages until a size or age trigger fires, backed by
// Redis Streams.
package streambuffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/threadloom/threadloom/internal/model"
)

// Tuning constants, documented rather than environment-configurable.
const (
	SizeTrigger = 50
	AgeTrigger  = 300 * time.Second
	lockTTL     = 30 * time.Second
)

// redisClient is the subset of *redis.Client Buffer depends on, narrowed
// so tests can substitute a fake without a live Redis server.
type redisClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XLen(ctx context.Context, key string) *redis.IntCmd
	XRange(ctx context.Context, key, start, stop string) *redis.XMessageSliceCmd
	XDel(ctx context.Context, key string, ids ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Buffer publishes messages into per-(sourceType, channelScope) Redis
// Streams and reports when a batch is ready to flush.
type Buffer struct {
	client redisClient
}

// New creates a Buffer backed by an existing Redis client.
func New(client *redis.Client) *Buffer {
	return &Buffer{client: client}
}

func streamKey(sourceType, channelScope string) string {
	return fmt.Sprintf("messages:%s:%s", sourceType, channelScope)
}

func firstSeenKey(sourceType, channelScope string) string {
	return fmt.Sprintf("batch_first_seen:%s:%s", sourceType, channelScope)
}

func lockKey(sourceType, channelScope string) string {
	return fmt.Sprintf("lock:messages:%s:%s", sourceType, channelScope)
}

// Publish appends a message to the stream for (sourceType, channelScope)
// and reports whether the size or age trigger is now satisfied. Firing is
// advisory: the caller still has to call Flush, which re-checks under an
// advisory lock, so reporting true from two concurrent Publish calls
// never double-dispatches the same batch.
func (b *Buffer) Publish(ctx context.Context, sourceType, channelScope string, msg model.RawMessage) (bool, error) {
	key := streamKey(sourceType, channelScope)

	payload, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("streambuffer: marshal message: %w", err)
	}

	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"message": string(payload)},
	}).Err(); err != nil {
		return false, fmt.Errorf("streambuffer: xadd: %w", err)
	}

	count, err := b.client.XLen(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("streambuffer: xlen: %w", err)
	}

	fsKey := firstSeenKey(sourceType, channelScope)
	wasFirst, err := b.client.SetNX(ctx, fsKey, time.Now().Unix(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("streambuffer: setnx first-seen: %w", err)
	}

	var elapsed time.Duration
	if !wasFirst {
		firstUnix, err := b.client.Get(ctx, fsKey).Int64()
		if err == nil {
			elapsed = time.Since(time.Unix(firstUnix, 0))
		}
	}

	return count >= SizeTrigger || elapsed >= AgeTrigger, nil
}

// Dispatch is invoked with every message currently buffered for a channel.
// Returning an error aborts the flush: messages stay in the stream and are
// retried on the next trigger.
type Dispatch func(ctx context.Context, messages []model.RawMessage) error

// Flush acquires a short-lived advisory lock for (sourceType,
// channelScope), reads every buffered message, hands them to dispatch,
// and only then deletes them and resets the age marker — read, dispatch,
// then delete, never the other order. If the lock is already held by
// another flush in flight, Flush returns (false, nil) without error: the
// caller should treat that as "someone else is handling it."
func (b *Buffer) Flush(ctx context.Context, sourceType, channelScope string, dispatch Dispatch) (bool, error) {
	lk := lockKey(sourceType, channelScope)
	acquired, err := b.client.SetNX(ctx, lk, "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("streambuffer: acquire lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer b.client.Del(ctx, lk)

	key := streamKey(sourceType, channelScope)
	entries, err := b.client.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return false, fmt.Errorf("streambuffer: xrange: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	messages := make([]model.RawMessage, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		raw, ok := e.Values["message"].(string)
		if !ok {
			continue
		}
		var m model.RawMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}

	if err := dispatch(ctx, messages); err != nil {
		return false, fmt.Errorf("streambuffer: dispatch: %w", err)
	}

	if err := b.client.XDel(ctx, key, ids...).Err(); err != nil {
		return false, fmt.Errorf("streambuffer: xdel: %w", err)
	}
	b.client.Del(ctx, firstSeenKey(sourceType, channelScope))
	return true, nil
}
