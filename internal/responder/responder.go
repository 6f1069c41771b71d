// Package responder decides the automated reply to an inbound
// message: deterministic fast-path rules first, then quota-gated AI
// generation, then a generic fallback.
package responder

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
	"github.com/zapgatehq/zapgate/internal/quota"
)

// Generator produces a reply text from an inbound text.
type Generator interface {
	Generate(ctx context.Context, apiKey, model, inboundText string) (string, error)
}

// quotaGate is the slice of the quota gate the responder needs.
type quotaGate interface {
	CanConsume(ctx context.Context, tenant *db.Tenant, metric quota.Metric) (bool, error)
	Consume(ctx context.Context, tenantID uuid.UUID, metric quota.Metric) error
}

// auditLog records operational events like quota exhaustion.
type auditLog interface {
	RecordProviderEvent(ctx context.Context, tenantID *uuid.UUID, kind string, payload []byte) error
}

// Config holds responder policy.
type Config struct {
	// GenerationTimeout bounds the external call; on expiry the call
	// is abandoned and the fallback reply is used.
	GenerationTimeout time.Duration

	// ChargeOnAttempt charges AI quota for every generation attempt.
	// The default charges only confirmed non-empty responses, so a
	// tenant does not burn budget on provider outages.
	ChargeOnAttempt bool
}

// AICredentials are the per-tenant generation settings for one call.
type AICredentials struct {
	APIKey string
	Model  string
}

// Responder composes the reply decision.
type Responder struct {
	rules  []Rule
	gen    Generator
	gate   quotaGate
	audit  auditLog
	config Config
	logger *zap.Logger
}

// New creates a responder with the default rule set.
func New(gen Generator, gate quotaGate, audit auditLog, cfg Config, logger *zap.Logger) *Responder {
	if cfg.GenerationTimeout == 0 {
		cfg.GenerationTimeout = 10 * time.Second
	}

	return &Responder{
		rules:  DefaultRules(),
		gen:    gen,
		gate:   gate,
		audit:  audit,
		config: cfg,
		logger: logger,
	}
}

// Respond returns the reply text for one inbound message. It always
// returns a usable reply; internal failures degrade to the fallback.
func (r *Responder) Respond(ctx context.Context, tenant *db.Tenant, creds AICredentials, inboundText string) string {
	for _, rule := range r.rules {
		if rule.Match(inboundText) {
			r.logger.Debug("fast-path rule matched",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("rule", rule.Name),
			)
			return rule.Reply
		}
	}

	// An unset limit disables generation outright; that is not quota
	// exhaustion and produces no audit noise.
	if !tenant.AutoReplyEnabled || tenant.AIDailyLimit <= 0 {
		return FallbackReply
	}

	ok, err := r.gate.CanConsume(ctx, tenant, quota.MetricAIReply)
	if err != nil {
		r.logger.Error("AI quota check failed, using fallback",
			zap.Error(err),
			zap.String("tenant_id", tenant.ID.String()),
		)
		return FallbackReply
	}
	if !ok {
		// Not surfaced to the end user; operators see it in the trail.
		tenantID := tenant.ID
		if err := r.audit.RecordProviderEvent(ctx, &tenantID, db.EventAIQuotaExceeded, nil); err != nil {
			r.logger.Error("failed to record quota-exceeded event", zap.Error(err))
		}
		return FallbackReply
	}

	genCtx, cancel := context.WithTimeout(ctx, r.config.GenerationTimeout)
	defer cancel()

	if r.config.ChargeOnAttempt {
		if err := r.gate.Consume(ctx, tenant.ID, quota.MetricAIReply); err != nil {
			r.logger.Error("failed to record AI consumption", zap.Error(err))
		}
	}

	reply, err := r.gen.Generate(genCtx, creds.APIKey, creds.Model, inboundText)
	if err != nil || strings.TrimSpace(reply) == "" {
		r.logger.Warn("generation failed, using fallback",
			zap.Error(err),
			zap.String("tenant_id", tenant.ID.String()),
		)
		return FallbackReply
	}

	if !r.config.ChargeOnAttempt {
		if err := r.gate.Consume(ctx, tenant.ID, quota.MetricAIReply); err != nil {
			r.logger.Error("failed to record AI consumption", zap.Error(err))
		}
	}

	return reply
}
