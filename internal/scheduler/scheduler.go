// Package scheduler advances active campaigns on a fixed tick.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
	"github.com/zapgatehq/zapgate/internal/metrics"
	"github.com/zapgatehq/zapgate/internal/quota"
	"github.com/zapgatehq/zapgate/internal/secrets"
	"github.com/zapgatehq/zapgate/internal/whatsapp"
)

// Repository is the slice of the database layer the scheduler needs.
type Repository interface {
	ListActiveCampaigns(ctx context.Context) ([]*db.Campaign, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*db.Tenant, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*db.Template, error)
	NextPendingCampaignContact(ctx context.Context, campaignID uuid.UUID) (*db.CampaignContact, error)
	TransitionCampaignContact(ctx context.Context, id uuid.UUID, to string) (bool, error)
	TransitionCampaign(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	TouchCampaignLastSent(ctx context.Context, id uuid.UUID, at time.Time) error
	IsOptedOut(ctx context.Context, tenantID uuid.UUID, phone string) (bool, error)
	CreateMessage(ctx context.Context, msg *db.Message) error
	RecordProviderEvent(ctx context.Context, tenantID *uuid.UUID, kind string, payload []byte) error
}

// CredentialSource resolves decrypted tenant credentials.
type CredentialSource interface {
	For(ctx context.Context, tenantID uuid.UUID, provider string) (*secrets.ProviderCredentials, error)
}

// Dispatcher sends one outbound message through the provider.
type Dispatcher interface {
	SendText(ctx context.Context, creds whatsapp.Credentials, toPhone, body string) error
}

// Gate checks and records send-tier consumption.
type Gate interface {
	CanConsume(ctx context.Context, tenant *db.Tenant, metric quota.Metric) (bool, error)
	Consume(ctx context.Context, tenantID uuid.UUID, metric quota.Metric) error
}

// Scheduler moves every ACTIVE campaign forward by at most one
// contact per tick. Throughput beyond the per-campaign rate comes
// from running more campaigns, never from bigger ticks.
type Scheduler struct {
	repo       Repository
	creds      CredentialSource
	dispatcher Dispatcher
	gate       Gate
	config     Config
	logger     *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// Config holds scheduler settings.
type Config struct {
	TickInterval time.Duration
}

// New creates a scheduler.
func New(repo Repository, creds CredentialSource, dispatcher Dispatcher, gate Gate, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 5 * time.Second
	}
	return &Scheduler{
		repo:       repo,
		creds:      creds,
		dispatcher: dispatcher,
		gate:       gate,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Start runs the tick loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.logger.Info("campaign scheduler started",
		zap.Duration("tick_interval", s.config.TickInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("campaign scheduler stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances each ACTIVE campaign by at most one contact.
func (s *Scheduler) Tick(ctx context.Context) {
	started := s.now()

	campaigns, err := s.repo.ListActiveCampaigns(ctx)
	if err != nil {
		s.logger.Error("failed to list active campaigns", zap.Error(err))
		return
	}

	for _, c := range campaigns {
		s.advance(ctx, c)
	}

	metrics.ObserveSchedulerTick(time.Since(started))
}

// advance performs one unit of work for a campaign. A campaign error
// never blocks the other campaigns in the same tick.
func (s *Scheduler) advance(ctx context.Context, campaign *db.Campaign) {
	log := s.logger.With(
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("tenant_id", campaign.TenantID.String()),
	)

	now := s.now()
	if campaign.LastSentAt != nil {
		interval := sendInterval(campaign.RatePerMinute)
		if now.Sub(*campaign.LastSentAt) < interval {
			metrics.RecordSchedulerAdvance("paced")
			return
		}
	}

	tenant, err := s.repo.GetTenant(ctx, campaign.TenantID)
	if err != nil {
		log.Error("failed to load campaign tenant", zap.Error(err))
		metrics.RecordSchedulerAdvance("error")
		return
	}

	cc, err := s.repo.NextPendingCampaignContact(ctx, campaign.ID)
	if errors.Is(err, db.ErrNotFound) {
		// Contact list exhausted. The conditional transition keeps
		// this idempotent across ticks and competing instances.
		done, trErr := s.repo.TransitionCampaign(ctx, campaign.ID, db.CampaignStatusActive, db.CampaignStatusCompleted)
		if trErr != nil {
			log.Error("failed to complete campaign", zap.Error(trErr))
			return
		}
		if done {
			log.Info("campaign completed")
		}
		metrics.RecordSchedulerAdvance("completed")
		return
	}
	if err != nil {
		log.Error("failed to pick next campaign contact", zap.Error(err))
		metrics.RecordSchedulerAdvance("error")
		return
	}

	optedOut, err := s.repo.IsOptedOut(ctx, tenant.ID, cc.Phone)
	if err != nil {
		log.Error("opt-out check failed", zap.Error(err))
		metrics.RecordSchedulerAdvance("error")
		return
	}
	if optedOut {
		s.finishContact(ctx, log, cc.ID, db.CampaignContactSkipped)
		metrics.RecordSchedulerAdvance("skipped")
		return
	}

	tpl, err := s.repo.GetTemplate(ctx, campaign.TemplateID)
	if err != nil {
		// A missing template can never send. Anything else is a store
		// hiccup and the contact stays PENDING for the next tick.
		if errors.Is(err, db.ErrNotFound) {
			log.Error("campaign template missing", zap.Error(err))
			s.finishContact(ctx, log, cc.ID, db.CampaignContactFailed)
			metrics.RecordSchedulerAdvance("failed")
			return
		}
		log.Error("failed to load campaign template", zap.Error(err))
		metrics.RecordSchedulerAdvance("error")
		return
	}

	provCreds, err := s.creds.For(ctx, tenant.ID, db.ProviderWhatsApp)
	if err != nil {
		// Absent or undecryptable credentials are misconfiguration;
		// a store failure is not, and the contact stays PENDING.
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, secrets.ErrDecrypt) {
			log.Error("campaign credentials unusable", zap.Error(err))
			s.finishContact(ctx, log, cc.ID, db.CampaignContactFailed)
			metrics.RecordSchedulerAdvance("failed")
			return
		}
		log.Error("failed to load campaign credentials", zap.Error(err))
		metrics.RecordSchedulerAdvance("error")
		return
	}

	ok, err := s.gate.CanConsume(ctx, tenant, quota.MetricSendTier)
	if err != nil {
		log.Error("send-tier check failed", zap.Error(err))
		metrics.RecordSchedulerAdvance("error")
		return
	}
	if !ok {
		// Quota pressure is transient. The contact stays PENDING so
		// the campaign resumes by itself after the day rolls over.
		tenantID := tenant.ID
		if auditErr := s.repo.RecordProviderEvent(ctx, &tenantID, db.EventTierBlocked, nil); auditErr != nil {
			log.Error("failed to record tier-blocked event", zap.Error(auditErr))
		}
		metrics.RecordQuotaBlock(string(quota.MetricSendTier))
		metrics.RecordSchedulerAdvance("tier_blocked")
		return
	}

	if err := s.gate.Consume(ctx, tenant.ID, quota.MetricSendTier); err != nil {
		log.Error("failed to record send-tier consumption", zap.Error(err))
	}

	moved, err := s.repo.TransitionCampaignContact(ctx, cc.ID, db.CampaignContactSent)
	if err != nil {
		log.Error("failed to transition campaign contact", zap.Error(err))
		metrics.RecordSchedulerAdvance("error")
		return
	}
	if !moved {
		// Another instance won the row.
		metrics.RecordSchedulerAdvance("contended")
		return
	}

	if err := s.repo.TouchCampaignLastSent(ctx, campaign.ID, now); err != nil {
		log.Error("failed to update campaign send time", zap.Error(err))
	}

	contactID := cc.ContactID
	outbound := &db.Message{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		ContactID: &contactID,
		Direction: db.DirectionOutbound,
		Content:   tpl.Body,
		Source:    db.SourceCampaign,
		Status:    db.MessageStatusSent,
	}

	dispatchErr := s.dispatcher.SendText(ctx, whatsapp.Credentials{
		PhoneNumberID: provCreds.PhoneNumberID,
		AccessToken:   provCreds.AccessToken,
	}, cc.Phone, tpl.Body)
	if dispatchErr != nil {
		// The contact transition is one-way and already committed.
		// The message row records the real outcome.
		log.Error("campaign dispatch failed", zap.Error(dispatchErr))
		outbound.Status = db.MessageStatusFailed
		tenantID := tenant.ID
		if auditErr := s.repo.RecordProviderEvent(ctx, &tenantID, db.EventDispatchFailed, nil); auditErr != nil {
			log.Error("failed to record dispatch failure", zap.Error(auditErr))
		}
		metrics.RecordDispatch("campaign", "failure")
	} else {
		metrics.RecordDispatch("campaign", "success")
	}

	if err := s.repo.CreateMessage(ctx, outbound); err != nil {
		log.Error("failed to log campaign message", zap.Error(err))
	}
	metrics.RecordSchedulerAdvance("sent")
}

func (s *Scheduler) finishContact(ctx context.Context, log *zap.Logger, id uuid.UUID, status string) {
	moved, err := s.repo.TransitionCampaignContact(ctx, id, status)
	if err != nil {
		log.Error("failed to transition campaign contact",
			zap.Error(err),
			zap.String("to", status),
		)
		return
	}
	if !moved {
		log.Debug("campaign contact already transitioned",
			zap.String("to", status),
		)
	}
}

// sendInterval translates a per-minute rate into the minimum gap
// between two sends of the same campaign.
func sendInterval(ratePerMinute int) time.Duration {
	if ratePerMinute < 1 {
		ratePerMinute = 1
	}
	return time.Minute / time.Duration(ratePerMinute)
}
