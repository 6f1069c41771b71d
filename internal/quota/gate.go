// Package quota enforces per-tenant daily ceilings on AI replies and
// outbound sends. Counters are keyed by (tenant, metric, UTC day), so
// day rollover needs no reset process.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
)

// Metric identifies one quota-gated resource.
type Metric string

const (
	MetricAIReply  Metric = "AI_REPLY"
	MetricSendTier Metric = "SEND_TIER"
)

// counterRepo is the slice of the repository the gate needs.
type counterRepo interface {
	IncrementQuota(ctx context.Context, tenantID uuid.UUID, metric, day string) error
	GetQuotaUsed(ctx context.Context, tenantID uuid.UUID, metric, day string) (int, error)
}

// Gate checks and records daily consumption. Counters record
// attempts: Consume runs once the gate passes and before dispatch
// confirmation, so a downstream failure still counts for the day.
// That slight over-count is deliberate; rolling back a shared counter
// after a fire-and-forget send is worse.
type Gate struct {
	repo   counterRepo
	logger *zap.Logger

	// Now is injectable for fixed-clock tests. Day boundaries always
	// use UTC so midnight never double-counts across paths.
	Now func() time.Time
}

// NewGate creates a quota gate.
func NewGate(repo counterRepo, logger *zap.Logger) *Gate {
	return &Gate{
		repo:   repo,
		logger: logger,
		Now:    time.Now,
	}
}

// DayKey returns today's counter key in the reference timezone.
func (g *Gate) DayKey() string {
	return g.Now().UTC().Format("2006-01-02")
}

func limitFor(tenant *db.Tenant, metric Metric) int {
	switch metric {
	case MetricAIReply:
		return tenant.AIDailyLimit
	case MetricSendTier:
		return tenant.SendTierLimit
	default:
		return 0
	}
}

// CanConsume reports whether the tenant has budget left for the
// metric today. A limit of zero or below means the feature is
// disabled, not unlimited.
func (g *Gate) CanConsume(ctx context.Context, tenant *db.Tenant, metric Metric) (bool, error) {
	limit := limitFor(tenant, metric)
	if limit <= 0 {
		return false, nil
	}

	used, err := g.repo.GetQuotaUsed(ctx, tenant.ID, string(metric), g.DayKey())
	if err != nil {
		return false, err
	}

	if used >= limit {
		g.logger.Debug("quota exhausted",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("metric", string(metric)),
			zap.Int("used", used),
			zap.Int("limit", limit),
		)
		return false, nil
	}

	return true, nil
}

// Consume records one unit against today's counter.
func (g *Gate) Consume(ctx context.Context, tenantID uuid.UUID, metric Metric) error {
	return g.repo.IncrementQuota(ctx, tenantID, string(metric), g.DayKey())
}
