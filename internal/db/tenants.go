package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CreateTenant inserts a new tenant.
func (r *Repository) CreateTenant(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO tenants (id, name, auto_reply_enabled, ai_daily_limit, send_tier_limit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		tenant.ID,
		tenant.Name,
		tenant.AutoReplyEnabled,
		tenant.AIDailyLimit,
		tenant.SendTierLimit,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create tenant",
			zap.Error(err),
			zap.String("tenant_id", tenant.ID.String()),
		)
		return fmt.Errorf("insert tenant: %w", err)
	}

	r.logger.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("name", tenant.Name),
	)

	return nil
}

// GetTenant retrieves a tenant by ID.
func (r *Repository) GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	query := `
		SELECT id, name, auto_reply_enabled, ai_daily_limit, send_tier_limit, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var t Tenant
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.AutoReplyEnabled,
		&t.AIDailyLimit,
		&t.SendTierLimit,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}

	return &t, nil
}

// UpdateTenantLimits updates the reply-automation flag and the daily
// quota limits for a tenant.
func (r *Repository) UpdateTenantLimits(ctx context.Context, id uuid.UUID, autoReply bool, aiDailyLimit, sendTierLimit int) error {
	query := `
		UPDATE tenants
		SET auto_reply_enabled = $1, ai_daily_limit = $2, send_tier_limit = $3, updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, autoReply, aiDailyLimit, sendTierLimit, id)
	if err != nil {
		r.logger.Error("failed to update tenant limits",
			zap.Error(err),
			zap.String("tenant_id", id.String()),
		)
		return fmt.Errorf("update tenant limits: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ResolveTenantByPhoneNumberID maps an inbound routing key to the
// tenant that owns it. A single indexed lookup; ErrNotFound means
// the event belongs to a number this deployment never provisioned.
func (r *Repository) ResolveTenantByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Tenant, error) {
	query := `
		SELECT t.id, t.name, t.auto_reply_enabled, t.ai_daily_limit, t.send_tier_limit, t.created_at, t.updated_at
		FROM tenants t
		JOIN credentials c ON c.tenant_id = t.id
		WHERE c.phone_number_id = $1
	`

	var t Tenant
	err := r.db.Pool().QueryRow(ctx, query, phoneNumberID).Scan(
		&t.ID,
		&t.Name,
		&t.AutoReplyEnabled,
		&t.AIDailyLimit,
		&t.SendTierLimit,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant by phone_number_id: %w", err)
	}

	return &t, nil
}

// UpsertCredentials inserts or replaces the credential set for
// (tenant, provider). Token fields must already be encrypted.
func (r *Repository) UpsertCredentials(ctx context.Context, creds *Credentials) error {
	query := `
		INSERT INTO credentials (id, tenant_id, provider, phone_number_id, access_token_enc, ai_api_key_enc, ai_model)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			phone_number_id = EXCLUDED.phone_number_id,
			access_token_enc = EXCLUDED.access_token_enc,
			ai_api_key_enc = EXCLUDED.ai_api_key_enc,
			ai_model = EXCLUDED.ai_model,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		creds.ID,
		creds.TenantID,
		creds.Provider,
		creds.PhoneNumberID,
		creds.AccessTokenEnc,
		creds.AIAPIKeyEnc,
		creds.AIModel,
	).Scan(&creds.ID, &creds.CreatedAt, &creds.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to upsert credentials",
			zap.Error(err),
			zap.String("tenant_id", creds.TenantID.String()),
			zap.String("provider", creds.Provider),
		)
		return fmt.Errorf("upsert credentials: %w", err)
	}

	return nil
}

// GetCredentials retrieves the encrypted credential set for a tenant
// and provider. ErrNotFound means "cannot dispatch", not a fault.
func (r *Repository) GetCredentials(ctx context.Context, tenantID uuid.UUID, provider string) (*Credentials, error) {
	query := `
		SELECT id, tenant_id, provider, phone_number_id, access_token_enc, ai_api_key_enc, ai_model, created_at, updated_at
		FROM credentials
		WHERE tenant_id = $1 AND provider = $2
	`

	var c Credentials
	err := r.db.Pool().QueryRow(ctx, query, tenantID, provider).Scan(
		&c.ID,
		&c.TenantID,
		&c.Provider,
		&c.PhoneNumberID,
		&c.AccessTokenEnc,
		&c.AIAPIKeyEnc,
		&c.AIModel,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}

	return &c, nil
}
