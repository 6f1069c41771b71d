package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateMessage appends one row to the message log. Rows are the unit
// of audit truth and are never updated except for the dispatch-outcome
// status on outbound rows.
func (r *Repository) CreateMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, tenant_id, contact_id, direction, content, source, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		msg.ID,
		msg.TenantID,
		msg.ContactID,
		msg.Direction,
		msg.Content,
		msg.Source,
		msg.Status,
	).Scan(&msg.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create message",
			zap.Error(err),
			zap.String("message_id", msg.ID.String()),
			zap.String("tenant_id", msg.TenantID.String()),
		)
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

// SetMessageStatus records the dispatch outcome on an outbound row.
func (r *Repository) SetMessageStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Pool().Exec(
		ctx,
		"UPDATE messages SET status = $1 WHERE id = $2 AND direction = $3",
		status, id, DirectionOutbound,
	)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessagesByTenant retrieves recent messages for a tenant,
// newest first, with pagination.
func (r *Repository) ListMessagesByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Message, error) {
	query := `
		SELECT id, tenant_id, contact_id, direction, content, source, status, created_at
		FROM messages
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.ContactID,
			&m.Direction,
			&m.Content,
			&m.Source,
			&m.Status,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return messages, nil
}

// CountOutboundToday counts a tenant's outbound rows created on the
// given UTC day. Used by the management API to display tier usage.
func (r *Repository) CountOutboundToday(ctx context.Context, tenantID uuid.UUID, day string) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(
		ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE tenant_id = $1 AND direction = $2 AND (created_at AT TIME ZONE 'UTC')::date = $3::date`,
		tenantID, DirectionOutbound, day,
	).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("count outbound messages: %w", err)
	}

	return count, nil
}

// RecordProviderEvent appends one row to the operational audit trail.
// tenantID is nil when the routing key resolved to no tenant.
func (r *Repository) RecordProviderEvent(ctx context.Context, tenantID *uuid.UUID, kind string, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := r.db.Pool().Exec(
		ctx,
		"INSERT INTO provider_events (id, tenant_id, kind, payload) VALUES ($1, $2, $3, $4)",
		uuid.New(), tenantID, kind, payload,
	)
	if err != nil {
		r.logger.Error("failed to record provider event",
			zap.Error(err),
			zap.String("kind", kind),
		)
		return fmt.Errorf("insert provider event: %w", err)
	}

	return nil
}

// ListProviderEvents retrieves recent audit events for a tenant.
func (r *Repository) ListProviderEvents(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*ProviderEvent, error) {
	query := `
		SELECT id, tenant_id, kind, payload, created_at
		FROM provider_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query provider events: %w", err)
	}
	defer rows.Close()

	var events []*ProviderEvent
	for rows.Next() {
		var e ProviderEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan provider event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}
