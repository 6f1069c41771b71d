package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CreateTemplate inserts a new campaign template.
func (r *Repository) CreateTemplate(ctx context.Context, tpl *Template) error {
	query := `
		INSERT INTO templates (id, tenant_id, name, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query, tpl.ID, tpl.TenantID, tpl.Name, tpl.Body).
		Scan(&tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	return nil
}

// GetTemplate retrieves a template by ID.
func (r *Repository) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	query := `
		SELECT id, tenant_id, name, body, created_at, updated_at
		FROM templates
		WHERE id = $1
	`

	var t Template
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Body, &t.CreatedAt, &t.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}

	return &t, nil
}

// CreateCampaign inserts a new campaign. Campaigns are created PAUSED
// and only resume makes them eligible for the scheduler.
func (r *Repository) CreateCampaign(ctx context.Context, c *Campaign) error {
	query := `
		INSERT INTO campaigns (id, tenant_id, template_id, status, rate_per_minute)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query, c.ID, c.TenantID, c.TemplateID, c.Status, c.RatePerMinute).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create campaign",
			zap.Error(err),
			zap.String("campaign_id", c.ID.String()),
		)
		return fmt.Errorf("insert campaign: %w", err)
	}

	r.logger.Info("campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("tenant_id", c.TenantID.String()),
		zap.Int("rate_per_minute", c.RatePerMinute),
	)

	return nil
}

// GetCampaign retrieves a campaign by ID.
func (r *Repository) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	query := `
		SELECT id, tenant_id, template_id, status, rate_per_minute, last_sent_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`

	var c Campaign
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID, &c.TenantID, &c.TemplateID, &c.Status, &c.RatePerMinute,
		&c.LastSentAt, &c.CreatedAt, &c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}

	return &c, nil
}

// ListActiveCampaigns returns every campaign the scheduler should
// evaluate this tick, oldest first.
func (r *Repository) ListActiveCampaigns(ctx context.Context) ([]*Campaign, error) {
	query := `
		SELECT id, tenant_id, template_id, status, rate_per_minute, last_sent_at, created_at, updated_at
		FROM campaigns
		WHERE status = 'ACTIVE'
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		var c Campaign
		err := rows.Scan(
			&c.ID, &c.TenantID, &c.TemplateID, &c.Status, &c.RatePerMinute,
			&c.LastSentAt, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return campaigns, nil
}

// TransitionCampaign moves a campaign from one status to another as a
// single conditional update. Returns false when the campaign was not
// in the expected state, which keeps terminal states terminal under
// concurrent user actions and scheduler ticks.
func (r *Repository) TransitionCampaign(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	result, err := r.db.Pool().Exec(
		ctx,
		"UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("transition campaign: %w", err)
	}

	if result.RowsAffected() > 0 {
		r.logger.Info("campaign transitioned",
			zap.String("campaign_id", id.String()),
			zap.String("from", from),
			zap.String("to", to),
		)
		return true, nil
	}

	return false, nil
}

// TouchCampaignLastSent records the time of the latest successful
// dispatch for rate limiting.
func (r *Repository) TouchCampaignLastSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Pool().Exec(
		ctx,
		"UPDATE campaigns SET last_sent_at = $1, updated_at = NOW() WHERE id = $2",
		at, id,
	)
	if err != nil {
		return fmt.Errorf("touch campaign last_sent_at: %w", err)
	}
	return nil
}

// AddCampaignContacts seeds PENDING join rows for a campaign.
// Duplicate (campaign, contact) pairs are ignored. Returns the number
// of rows actually inserted.
func (r *Repository) AddCampaignContacts(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error) {
	added := 0
	for _, contactID := range contactIDs {
		result, err := r.db.Pool().Exec(
			ctx,
			`INSERT INTO campaign_contacts (id, campaign_id, contact_id, status)
			 VALUES ($1, $2, $3, 'PENDING')
			 ON CONFLICT (campaign_id, contact_id) DO NOTHING`,
			uuid.New(), campaignID, contactID,
		)
		if err != nil {
			return added, fmt.Errorf("insert campaign contact: %w", err)
		}
		added += int(result.RowsAffected())
	}

	r.logger.Info("campaign contacts seeded",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("added", added),
	)

	return added, nil
}

// NextPendingCampaignContact selects the oldest PENDING contact for a
// campaign, joined with the contact's phone. FIFO by creation order.
func (r *Repository) NextPendingCampaignContact(ctx context.Context, campaignID uuid.UUID) (*CampaignContact, error) {
	query := `
		SELECT cc.id, cc.campaign_id, cc.contact_id, cc.status, cc.created_at, cc.updated_at, c.phone
		FROM campaign_contacts cc
		JOIN contacts c ON c.id = cc.contact_id
		WHERE cc.campaign_id = $1 AND cc.status = 'PENDING'
		ORDER BY cc.created_at ASC
		LIMIT 1
	`

	var cc CampaignContact
	err := r.db.Pool().QueryRow(ctx, query, campaignID).Scan(
		&cc.ID, &cc.CampaignID, &cc.ContactID, &cc.Status,
		&cc.CreatedAt, &cc.UpdatedAt, &cc.Phone,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query next pending campaign contact: %w", err)
	}

	return &cc, nil
}

// TransitionCampaignContact moves a join row out of PENDING as a
// single conditional update. Returns false when the row had already
// left PENDING; terminal states cannot transition again.
func (r *Repository) TransitionCampaignContact(ctx context.Context, id uuid.UUID, to string) (bool, error) {
	result, err := r.db.Pool().Exec(
		ctx,
		"UPDATE campaign_contacts SET status = $1, updated_at = NOW() WHERE id = $2 AND status = 'PENDING'",
		to, id,
	)
	if err != nil {
		return false, fmt.Errorf("transition campaign contact: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// CampaignContactCounts returns status counts for progress display.
func (r *Repository) CampaignContactCounts(ctx context.Context, campaignID uuid.UUID) (map[string]int, error) {
	rows, err := r.db.Pool().Query(
		ctx,
		"SELECT status, COUNT(*) FROM campaign_contacts WHERE campaign_id = $1 GROUP BY status",
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("query campaign contact counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return counts, nil
}
