package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ChatCache keeps a bounded, recency-ordered window of chat turns per
// (tenant, contact). It is a convenience view for the management UI
// and responder context; the durable message log stays the source of
// truth for quota and audit.
type ChatCache struct {
	client *Client
	logger *zap.Logger
	depth  int64
	ttl    time.Duration
}

// ChatTurn is one cached conversation entry.
type ChatTurn struct {
	Direction string    `json:"direction"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// NewChatCache creates a cache retaining the latest depth turns per
// conversation.
func NewChatCache(client *Client, logger *zap.Logger, depth int) *ChatCache {
	if depth <= 0 {
		depth = 20
	}
	return &ChatCache{
		client: client,
		logger: logger,
		depth:  int64(depth),
		ttl:    7 * 24 * time.Hour,
	}
}

func (c *ChatCache) buildKey(tenantID, contactID string) string {
	return fmt.Sprintf("chat:%s:%s", tenantID, contactID)
}

// Push prepends a turn and trims the window in one pipeline.
func (c *ChatCache) Push(ctx context.Context, tenantID, contactID string, turn ChatTurn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal chat turn: %w", err)
	}

	key := c.buildKey(tenantID, contactID)

	pipe := c.client.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, c.depth-1)
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// Recent returns cached turns, newest first.
func (c *ChatCache) Recent(ctx context.Context, tenantID, contactID string) ([]ChatTurn, error) {
	key := c.buildKey(tenantID, contactID)

	raw, err := c.client.rdb.LRange(ctx, key, 0, c.depth-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	turns := make([]ChatTurn, 0, len(raw))
	for _, item := range raw {
		var turn ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			c.logger.Warn("skipping malformed cached chat turn", zap.Error(err))
			continue
		}
		turns = append(turns, turn)
	}

	return turns, nil
}
