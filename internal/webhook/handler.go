// Package webhook receives provider push events, attributes them to
// tenants, and drives the auto-reply path.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
	"github.com/zapgatehq/zapgate/internal/metrics"
	"github.com/zapgatehq/zapgate/internal/quota"
	gwredis "github.com/zapgatehq/zapgate/internal/redis"
	"github.com/zapgatehq/zapgate/internal/responder"
	"github.com/zapgatehq/zapgate/internal/secrets"
	"github.com/zapgatehq/zapgate/internal/whatsapp"
)

// Repository is the slice of the database layer ingestion needs.
type Repository interface {
	ResolveTenantByPhoneNumberID(ctx context.Context, phoneNumberID string) (*db.Tenant, error)
	UpsertContact(ctx context.Context, tenantID uuid.UUID, phone, name, email string) (*db.Contact, error)
	CreateMessage(ctx context.Context, msg *db.Message) error
	SetMessageStatus(ctx context.Context, id uuid.UUID, status string) error
	IsOptedOut(ctx context.Context, tenantID uuid.UUID, phone string) (bool, error)
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

// Replier decides the automated reply for an inbound text.
type Replier interface {
	Respond(ctx context.Context, tenant *db.Tenant, creds responder.AICredentials, inboundText string) string
}

// Gate checks and records send-tier consumption.
type Gate interface {
	CanConsume(ctx context.Context, tenant *db.Tenant, metric quota.Metric) (bool, error)
	Consume(ctx context.Context, tenantID uuid.UUID, metric quota.Metric) error
}

// Deduper suppresses redelivered provider message IDs.
type Deduper interface {
	FirstDelivery(ctx context.Context, tenantID, providerMessageID string) (bool, error)
}

// ChatCache mirrors recent turns for the conversation view.
type ChatCache interface {
	Push(ctx context.Context, tenantID, contactID string, turn gwredis.ChatTurn) error
}

// Handler processes the provider webhook. Dedup and cache are
// optional; without redis both degrade to no-ops.
type Handler struct {
	logger      *zap.Logger
	repo        Repository
	creds       CredentialSource
	dispatcher  Dispatcher
	replier     Replier
	gate        Gate
	dedup       Deduper
	cache       ChatCache
	verifyToken string
}

// Config holds webhook handler settings.
type Config struct {
	VerifyToken string
}

// New creates a webhook handler.
func New(
	logger *zap.Logger,
	repo Repository,
	creds CredentialSource,
	dispatcher Dispatcher,
	replier Replier,
	gate Gate,
	dedup Deduper,
	cache ChatCache,
	cfg Config,
) *Handler {
	return &Handler{
		logger:      logger,
		repo:        repo,
		creds:       creds,
		dispatcher:  dispatcher,
		replier:     replier,
		gate:        gate,
		dedup:       dedup,
		cache:       cache,
		verifyToken: cfg.VerifyToken,
	}
}

// Verify handles the provider's GET verification handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
	w.WriteHeader(http.StatusForbidden)
}

// Receive handles event delivery. Only an unparseable body earns a
// 400 (the provider retries the batch); every processed batch gets a
// 200 even when individual sub-events fail, because a non-200 would
// redeliver sub-events that already went through.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			h.processChange(ctx, change)
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

func (h *Handler) processChange(ctx context.Context, change whatsapp.Change) {
	routingKey := change.Value.Metadata.PhoneNumberID

	tenant, err := h.repo.ResolveTenantByPhoneNumberID(ctx, routingKey)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			h.logger.Error("tenant resolution failed", zap.Error(err))
			metrics.RecordWebhookEvent("change", "error")
			return
		}
		// Unresolved events still land in the audit trail so
		// operators can diagnose misconfigured routing.
		raw, _ := json.Marshal(change.Value)
		if auditErr := h.repo.RecordProviderEvent(ctx, nil, db.EventUnresolvedRouting, raw); auditErr != nil {
			h.logger.Error("failed to record unresolved event", zap.Error(auditErr))
		}
		h.logger.Info("no tenant for routing key, skipping",
			zap.String("phone_number_id", routingKey),
		)
		metrics.RecordWebhookEvent("change", "unresolved")
		return
	}

	for _, msg := range change.Value.Messages {
		h.processMessage(ctx, tenant, change.Value, msg)
	}

	for _, status := range change.Value.Statuses {
		h.processStatus(ctx, tenant, status)
	}
}

// processMessage handles one inbound message sub-event. A failure
// here must not abort the remaining sub-events of the batch.
func (h *Handler) processMessage(ctx context.Context, tenant *db.Tenant, value whatsapp.ChangeValue, msg whatsapp.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic while processing message sub-event",
				zap.Any("panic", rec),
				zap.String("tenant_id", tenant.ID.String()),
			)
		}
	}()

	if msg.Text == nil || msg.Text.Body == "" {
		metrics.RecordWebhookEvent("message", "ignored")
		return
	}

	if h.dedup != nil && msg.ID != "" {
		first, err := h.dedup.FirstDelivery(ctx, tenant.ID.String(), msg.ID)
		if err != nil {
			h.logger.Warn("dedup check failed, processing anyway", zap.Error(err))
		} else if !first {
			metrics.RecordWebhookEvent("message", "duplicate")
			return
		}
	}

	phone := db.NormalizePhone(msg.From)
	name := senderName(value, msg.From)

	contact, err := h.repo.UpsertContact(ctx, tenant.ID, phone, name, "")
	if err != nil {
		h.logger.Error("failed to upsert contact", zap.Error(err))
		metrics.RecordWebhookEvent("message", "error")
		return
	}

	contactID := contact.ID
	inbound := &db.Message{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		ContactID: &contactID,
		Direction: db.DirectionInbound,
		Content:   msg.Text.Body,
		Source:    db.SourceWebhook,
		Status:    db.MessageStatusReceived,
	}
	if err := h.repo.CreateMessage(ctx, inbound); err != nil {
		h.logger.Error("failed to log inbound message", zap.Error(err))
		metrics.RecordWebhookEvent("message", "error")
		return
	}
	h.cacheTurn(ctx, tenant.ID, contact.ID, db.DirectionInbound, msg.Text.Body)
	metrics.RecordWebhookEvent("message", "ingested")

	optedOut, err := h.repo.IsOptedOut(ctx, tenant.ID, phone)
	if err != nil {
		h.logger.Error("opt-out check failed, not replying", zap.Error(err))
		return
	}
	if optedOut {
		h.logger.Debug("contact opted out, no reply",
			zap.String("tenant_id", tenant.ID.String()),
		)
		return
	}

	h.reply(ctx, tenant, contact, msg.Text.Body)
}

// reply runs the responder and dispatches the outbound message.
func (h *Handler) reply(ctx context.Context, tenant *db.Tenant, contact *db.Contact, inboundText string) {
	var aiCreds responder.AICredentials
	provCreds, credsErr := h.creds.For(ctx, tenant.ID, db.ProviderWhatsApp)
	if credsErr == nil {
		aiCreds = responder.AICredentials{APIKey: provCreds.AIAPIKey, Model: provCreds.AIModel}
	}

	replyText := h.replier.Respond(ctx, tenant, aiCreds, inboundText)

	contactID := contact.ID
	outbound := &db.Message{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		ContactID: &contactID,
		Direction: db.DirectionOutbound,
		Content:   replyText,
		Source:    db.SourceAI,
		Status:    db.MessageStatusQueued,
	}
	if err := h.repo.CreateMessage(ctx, outbound); err != nil {
		h.logger.Error("failed to log outbound reply", zap.Error(err))
		return
	}

	ok, err := h.gate.CanConsume(ctx, tenant, quota.MetricSendTier)
	if err != nil {
		h.logger.Error("send-tier check failed, not dispatching", zap.Error(err))
		return
	}
	if !ok {
		tenantID := tenant.ID
		if auditErr := h.repo.RecordProviderEvent(ctx, &tenantID, db.EventTierBlocked, nil); auditErr != nil {
			h.logger.Error("failed to record tier-blocked event", zap.Error(auditErr))
		}
		metrics.RecordQuotaBlock(string(quota.MetricSendTier))
		return
	}

	if credsErr != nil {
		// The reply stays logged but undeliverable; a missing
		// credential set is terminal for this unit of work only.
		h.logger.Warn("no credentials for tenant, reply not sent",
			zap.String("tenant_id", tenant.ID.String()),
		)
		if err := h.repo.SetMessageStatus(ctx, outbound.ID, db.MessageStatusFailed); err != nil {
			h.logger.Error("failed to mark reply failed", zap.Error(err))
		}
		return
	}

	if err := h.gate.Consume(ctx, tenant.ID, quota.MetricSendTier); err != nil {
		h.logger.Error("failed to record send-tier consumption", zap.Error(err))
	}

	// Fire and forget: the webhook response never waits on the
	// provider call.
	go h.dispatch(tenant.ID, contact, outbound, whatsapp.Credentials{
		PhoneNumberID: provCreds.PhoneNumberID,
		AccessToken:   provCreds.AccessToken,
	})
}

func (h *Handler) dispatch(tenantID uuid.UUID, contact *db.Contact, outbound *db.Message, creds whatsapp.Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.dispatcher.SendText(ctx, creds, contact.Phone, outbound.Content); err != nil {
		h.logger.Error("reply dispatch failed",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
			zap.String("message_id", outbound.ID.String()),
		)
		if dbErr := h.repo.SetMessageStatus(ctx, outbound.ID, db.MessageStatusFailed); dbErr != nil {
			h.logger.Error("failed to mark reply failed", zap.Error(dbErr))
		}
		tid := tenantID
		if auditErr := h.repo.RecordProviderEvent(ctx, &tid, db.EventDispatchFailed, nil); auditErr != nil {
			h.logger.Error("failed to record dispatch failure", zap.Error(auditErr))
		}
		metrics.RecordDispatch("reply", "failure")
		return
	}

	if err := h.repo.SetMessageStatus(ctx, outbound.ID, db.MessageStatusSent); err != nil {
		h.logger.Error("failed to mark reply sent", zap.Error(err))
	}
	h.cacheTurn(ctx, tenantID, contact.ID, db.DirectionOutbound, outbound.Content)
	metrics.RecordDispatch("reply", "success")
}

// processStatus logs one delivery-status callback. No contact
// association is required.
func (h *Handler) processStatus(ctx context.Context, tenant *db.Tenant, status whatsapp.Status) {
	msg := &db.Message{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Direction: db.DirectionStatus,
		Content:   status.ID + " " + status.Status,
		Source:    db.SourceWebhook,
		Status:    strings.ToUpper(status.Status),
	}
	if err := h.repo.CreateMessage(ctx, msg); err != nil {
		h.logger.Error("failed to log status event", zap.Error(err))
		metrics.RecordWebhookEvent("status", "error")
		return
	}
	metrics.RecordWebhookEvent("status", "ingested")
}

func (h *Handler) cacheTurn(ctx context.Context, tenantID, contactID uuid.UUID, direction, content string) {
	if h.cache == nil {
		return
	}
	turn := gwredis.ChatTurn{Direction: direction, Content: content, At: time.Now()}
	if err := h.cache.Push(ctx, tenantID.String(), contactID.String(), turn); err != nil {
		h.logger.Debug("chat cache push failed", zap.Error(err))
	}
}

// senderName finds the display name the provider attached for a
// sender, if any.
func senderName(value whatsapp.ChangeValue, from string) string {
	for _, c := range value.Contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	return ""
}
