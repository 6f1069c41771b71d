package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IncrementQuota bumps the (tenant, metric, day) counter as a single
// atomic upsert. Safe under concurrent webhook requests and scheduler
// ticks touching the same tenant.
func (r *Repository) IncrementQuota(ctx context.Context, tenantID uuid.UUID, metric, day string) error {
	query := `
		INSERT INTO quota_counters (tenant_id, metric, day, used)
		VALUES ($1, $2, $3::date, 1)
		ON CONFLICT (tenant_id, metric, day) DO UPDATE SET used = quota_counters.used + 1
	`

	if _, err := r.db.Pool().Exec(ctx, query, tenantID, metric, day); err != nil {
		return fmt.Errorf("increment quota counter: %w", err)
	}

	return nil
}

// GetQuotaUsed reads the (tenant, metric, day) counter. A missing row
// means zero consumption; day rollover needs no explicit reset.
func (r *Repository) GetQuotaUsed(ctx context.Context, tenantID uuid.UUID, metric, day string) (int, error) {
	var used int
	err := r.db.Pool().QueryRow(
		ctx,
		"SELECT used FROM quota_counters WHERE tenant_id = $1 AND metric = $2 AND day = $3::date",
		tenantID, metric, day,
	).Scan(&used)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query quota counter: %w", err)
	}

	return used, nil
}
