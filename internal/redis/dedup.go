package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DedupTTL is how long processed provider message IDs are retained.
// The provider redelivers whole batches on any non-200 response and
// sometimes on its own initiative; 24h comfortably covers its retry
// horizon.
const DedupTTL = 24 * time.Hour

// EventDedup suppresses reprocessing of webhook sub-events the
// provider delivers more than once, keyed by provider message ID.
type EventDedup struct {
	client *Client
	logger *zap.Logger
}

// NewEventDedup creates a new dedup service.
func NewEventDedup(client *Client, logger *zap.Logger) *EventDedup {
	return &EventDedup{
		client: client,
		logger: logger,
	}
}

func (d *EventDedup) buildKey(tenantID, providerMessageID string) string {
	return fmt.Sprintf("wamid:%s:%s", tenantID, providerMessageID)
}

// FirstDelivery atomically marks a provider message ID as seen and
// reports whether this is its first delivery. SET NX keeps the check
// and the reservation a single operation under concurrent batches.
func (d *EventDedup) FirstDelivery(ctx context.Context, tenantID, providerMessageID string) (bool, error) {
	key := d.buildKey(tenantID, providerMessageID)

	set, err := d.client.rdb.SetNX(ctx, key, "1", DedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		d.logger.Debug("duplicate provider event skipped",
			zap.String("tenant_id", tenantID),
			zap.String("provider_message_id", providerMessageID),
		)
	}

	return set, nil
}
