package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tenant is one customer organization. Quotas, credentials and all
// message rows are scoped to a tenant.
type Tenant struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	AutoReplyEnabled bool      `json:"auto_reply_enabled"`
	AIDailyLimit     int       `json:"ai_daily_limit"`
	SendTierLimit    int       `json:"send_tier_limit"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Credentials is the per-tenant provider routing key and send token.
// Token fields hold ciphertext; decryption happens at point of use.
type Credentials struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	Provider       string    `json:"provider"`
	PhoneNumberID  string    `json:"phone_number_id"`
	AccessTokenEnc string    `json:"-"`
	AIAPIKeyEnc    string    `json:"-"`
	AIModel        string    `json:"ai_model"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Provider constants
const (
	ProviderWhatsApp = "whatsapp"
)

// Contact is a phone-number identity scoped to one tenant.
// (tenant_id, phone) is unique; phone is stored digits-only.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one append-only log row. Immutable once written, except
// that an outbound row's status may record the dispatch outcome.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	ContactID *uuid.UUID `json:"contact_id,omitempty"`
	Direction string     `json:"direction"`
	Content   string     `json:"content"`
	Source    string     `json:"source"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Direction constants
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
	DirectionStatus   = "STATUS"
)

// Source constants
const (
	SourceWebhook  = "WEBHOOK"
	SourceAI       = "AI"
	SourceHuman    = "HUMAN"
	SourceAgent    = "AGENT"
	SourceCampaign = "CAMPAIGN"
)

// Message status constants
const (
	MessageStatusReceived = "RECEIVED"
	MessageStatusQueued   = "QUEUED"
	MessageStatusSent     = "SENT"
	MessageStatusFailed   = "FAILED"
)

// Template is a reusable outbound message body for campaigns.
type Template struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Campaign is a bulk-send job iterating a contact list at a bounded rate.
type Campaign struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	TemplateID    uuid.UUID  `json:"template_id"`
	Status        string     `json:"status"`
	RatePerMinute int        `json:"rate_per_minute"`
	LastSentAt    *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Campaign status constants. ACTIVE and PAUSED flip under user
// control; CANCELLED and COMPLETED are terminal.
const (
	CampaignStatusActive    = "ACTIVE"
	CampaignStatusPaused    = "PAUSED"
	CampaignStatusCancelled = "CANCELLED"
	CampaignStatusCompleted = "COMPLETED"
)

// CampaignContact joins a campaign to a contact. Transitions out of
// PENDING are one-way and owned by the scheduler.
type CampaignContact struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	ContactID  uuid.UUID `json:"contact_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Joined from contacts for scheduler use.
	Phone string `json:"phone,omitempty"`
}

// Campaign contact status constants
const (
	CampaignContactPending = "PENDING"
	CampaignContactSent    = "SENT"
	CampaignContactSkipped = "SKIPPED"
	CampaignContactFailed  = "FAILED"
)

// ProviderEvent is one row of the operational audit trail. TenantID
// is nil for events whose routing key resolved to no tenant.
type ProviderEvent struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  *uuid.UUID      `json:"tenant_id,omitempty"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Provider event kinds
const (
	EventUnresolvedRouting = "unresolved_routing"
	EventTierBlocked       = "tier_blocked"
	EventAIQuotaExceeded   = "ai_quota_exceeded"
	EventDispatchFailed    = "dispatch_failed"
)
