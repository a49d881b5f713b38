package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCommandTTL bounds how long a chat's button labels stay resolvable.
// It roughly matches the lifetime of a messenger UI session.
const DefaultCommandTTL = 30 * time.Minute

// CommandCache maps button label text back to the callback payload that was
// sent with it, per chat. JivoSite webhooks return only the clicked button's
// label, so the payload has to be recovered from here. Entries live in a
// Redis hash per chat with a TTL, keeping the cache bounded.
type CommandCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCommandCache(rdb *redis.Client, ttl time.Duration) *CommandCache {
	if ttl <= 0 {
		ttl = DefaultCommandTTL
	}
	return &CommandCache{rdb: rdb, ttl: ttl}
}

func (c *CommandCache) key(chatID string) string {
	return "chatshop:commands:" + chatID
}

// Put replaces the label->payload mapping for a chat and refreshes its TTL.
func (c *CommandCache) Put(ctx context.Context, chatID string, commands map[string]string) error {
	if len(commands) == 0 {
		return nil
	}
	key := c.key(chatID)

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, commands)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache commands for chat %s: %w", chatID, err)
	}
	return nil
}

// Resolve looks up the callback payload for a clicked button label. The
// second return is false when the chat has no cached mapping or the label is
// unknown.
func (c *CommandCache) Resolve(ctx context.Context, chatID, label string) (string, bool) {
	payload, err := c.rdb.HGet(ctx, c.key(chatID), label).Result()
	if err != nil {
		return "", false
	}
	return payload, true
}
