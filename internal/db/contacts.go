package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// UpsertContact creates the contact for (tenant, phone) if absent and
// returns the row either way. A non-empty name on the upsert refreshes
// a previously empty one; an existing name is never blanked.
func (r *Repository) UpsertContact(ctx context.Context, tenantID uuid.UUID, phone, name, email string) (*Contact, error) {
	query := `
		INSERT INTO contacts (id, tenant_id, phone, name, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, phone) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), contacts.name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), contacts.email),
			updated_at = NOW()
		RETURNING id, tenant_id, phone, name, email, created_at, updated_at
	`

	var c Contact
	err := r.db.Pool().QueryRow(ctx, query, uuid.New(), tenantID, phone, name, email).Scan(
		&c.ID,
		&c.TenantID,
		&c.Phone,
		&c.Name,
		&c.Email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("failed to upsert contact",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		return nil, fmt.Errorf("upsert contact: %w", err)
	}

	return &c, nil
}

// GetContact retrieves a contact by ID.
func (r *Repository) GetContact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	query := `
		SELECT id, tenant_id, phone, name, email, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`

	var c Contact
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.TenantID,
		&c.Phone,
		&c.Name,
		&c.Email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}

	return &c, nil
}

// AddOptOut registers a standing suppression for (tenant, phone).
// Re-registering an existing opt-out is a no-op.
func (r *Repository) AddOptOut(ctx context.Context, tenantID uuid.UUID, phone string) error {
	query := `
		INSERT INTO opt_outs (tenant_id, phone)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Pool().Exec(ctx, query, tenantID, phone); err != nil {
		r.logger.Error("failed to add opt-out",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		return fmt.Errorf("insert opt-out: %w", err)
	}

	r.logger.Info("opt-out registered",
		zap.String("tenant_id", tenantID.String()),
	)

	return nil
}

// IsOptedOut reports whether (tenant, phone) has an opt-out marker.
func (r *Repository) IsOptedOut(ctx context.Context, tenantID uuid.UUID, phone string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(
		ctx,
		"SELECT EXISTS (SELECT 1 FROM opt_outs WHERE tenant_id = $1 AND phone = $2)",
		tenantID, phone,
	).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("query opt-out: %w", err)
	}

	return exists, nil
}
