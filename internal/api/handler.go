// Package api exposes the tenant management surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
	"github.com/zapgatehq/zapgate/internal/importer"
	"github.com/zapgatehq/zapgate/internal/quota"
	gwredis "github.com/zapgatehq/zapgate/internal/redis"
)

// Repository defines the database operations the management API uses.
type Repository interface {
	CreateTenant(ctx context.Context, tenant *db.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*db.Tenant, error)
	UpdateTenantLimits(ctx context.Context, id uuid.UUID, autoReply bool, aiDailyLimit, sendTierLimit int) error
	UpsertContact(ctx context.Context, tenantID uuid.UUID, phone, name, email string) (*db.Contact, error)
	GetContact(ctx context.Context, id uuid.UUID) (*db.Contact, error)
	AddOptOut(ctx context.Context, tenantID uuid.UUID, phone string) error
	ListMessagesByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.Message, error)
	ListProviderEvents(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.ProviderEvent, error)
	GetQuotaUsed(ctx context.Context, tenantID uuid.UUID, metric, day string) (int, error)
	CountOutboundToday(ctx context.Context, tenantID uuid.UUID, day string) (int, error)
	CreateTemplate(ctx context.Context, tpl *db.Template) error
	CreateCampaign(ctx context.Context, c *db.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	TransitionCampaign(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	AddCampaignContacts(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error)
	CampaignContactCounts(ctx context.Context, campaignID uuid.UUID) (map[string]int, error)
}

// CredentialWriter stores provider credentials, encrypting at rest.
type CredentialWriter interface {
	Save(ctx context.Context, tenantID uuid.UUID, provider, phoneNumberID, accessToken, aiAPIKey, aiModel string) error
}

// ConversationCache reads the recent-turn window. May be nil.
type ConversationCache interface {
	Recent(ctx context.Context, tenantID, contactID string) ([]gwredis.ChatTurn, error)
}

// DayKeyer supplies the quota day key so usage reads line up with
// the gate's clock.
type DayKeyer interface {
	DayKey() string
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for the management endpoints.
type Handler struct {
	logger *zap.Logger
	repo   Repository
	creds  CredentialWriter
	cache  ConversationCache
	days   DayKeyer
}

// NewHandler creates a management API handler.
func NewHandler(logger *zap.Logger, repo Repository, creds CredentialWriter, cache ConversationCache, days DayKeyer) *Handler {
	return &Handler{
		logger: logger,
		repo:   repo,
		creds:  creds,
		cache:  cache,
		days:   days,
	}
}

// Routes mounts all management endpoints on a router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tenants", h.CreateTenant)
	r.Get("/tenants/{id}", h.GetTenant)
	r.Patch("/tenants/{id}/limits", h.UpdateTenantLimits)
	r.Put("/tenants/{id}/credentials", h.PutCredentials)
	r.Post("/tenants/{id}/templates", h.CreateTemplate)
	r.Post("/tenants/{id}/campaigns", h.CreateCampaign)
	r.Post("/tenants/{id}/optouts", h.AddOptOut)
	r.Get("/tenants/{id}/quota", h.GetQuotaUsage)
	r.Get("/tenants/{id}/messages", h.ListMessages)
	r.Get("/tenants/{id}/events", h.ListEvents)
	r.Get("/tenants/{id}/contacts/{contactID}/recent", h.RecentConversation)

	r.Get("/campaigns/{id}", h.GetCampaign)
	r.Post("/campaigns/{id}/contacts", h.ImportCampaignContacts)
	r.Post("/campaigns/{id}/pause", h.PauseCampaign)
	r.Post("/campaigns/{id}/resume", h.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", h.CancelCampaign)
}

// TenantRequest is the create-tenant body.
type TenantRequest struct {
	Name             string `json:"name"`
	AutoReplyEnabled bool   `json:"auto_reply_enabled"`
	AIDailyLimit     int    `json:"ai_daily_limit"`
	SendTierLimit    int    `json:"send_tier_limit"`
}

// CreateTenant handles POST /tenants
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name is required")
		return
	}

	tenant := &db.Tenant{
		ID:               uuid.New(),
		Name:             req.Name,
		AutoReplyEnabled: req.AutoReplyEnabled,
		AIDailyLimit:     req.AIDailyLimit,
		SendTierLimit:    req.SendTierLimit,
	}
	if err := h.repo.CreateTenant(r.Context(), tenant); err != nil {
		h.logger.Error("failed to create tenant", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create tenant", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, tenant)
}

// GetTenant handles GET /tenants/{id}
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	tenant, err := h.repo.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Tenant not found", "")
			return
		}
		h.logger.Error("failed to get tenant", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get tenant", "")
		return
	}

	h.writeJSON(w, http.StatusOK, tenant)
}

// LimitsRequest is the update-limits body.
type LimitsRequest struct {
	AutoReplyEnabled bool `json:"auto_reply_enabled"`
	AIDailyLimit     int  `json:"ai_daily_limit"`
	SendTierLimit    int  `json:"send_tier_limit"`
}

// UpdateTenantLimits handles PATCH /tenants/{id}/limits
func (h *Handler) UpdateTenantLimits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.AIDailyLimit < 0 || req.SendTierLimit < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid limits", "limits must not be negative")
		return
	}

	if err := h.repo.UpdateTenantLimits(r.Context(), id, req.AutoReplyEnabled, req.AIDailyLimit, req.SendTierLimit); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Tenant not found", "")
			return
		}
		h.logger.Error("failed to update limits", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update limits", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CredentialsRequest is the credential upsert body. Secrets arrive in
// plaintext over TLS and are encrypted before they touch the database.
type CredentialsRequest struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
	AIAPIKey      string `json:"ai_api_key"`
	AIModel       string `json:"ai_model"`
}

// PutCredentials handles PUT /tenants/{id}/credentials
func (h *Handler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.PhoneNumberID == "" || req.AccessToken == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "phone_number_id and access_token are required")
		return
	}

	if err := h.creds.Save(r.Context(), id, db.ProviderWhatsApp, req.PhoneNumberID, req.AccessToken, req.AIAPIKey, req.AIModel); err != nil {
		h.logger.Error("failed to save credentials",
			zap.Error(err),
			zap.String("tenant_id", id.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "storage_error", "Failed to save credentials", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TemplateRequest is the create-template body.
type TemplateRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// CreateTemplate handles POST /tenants/{id}/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Name == "" || req.Body == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name and body are required")
		return
	}

	tpl := &db.Template{ID: uuid.New(), TenantID: id, Name: req.Name, Body: req.Body}
	if err := h.repo.CreateTemplate(r.Context(), tpl); err != nil {
		h.logger.Error("failed to create template", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create template", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, tpl)
}

// CampaignRequest is the create-campaign body.
type CampaignRequest struct {
	TemplateID    string `json:"template_id"`
	RatePerMinute int    `json:"rate_per_minute"`
}

// CreateCampaign handles POST /tenants/{id}/campaigns. Campaigns are
// born PAUSED; resume starts the scheduler picking them up.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid template_id", "template_id must be a valid UUID")
		return
	}
	if req.RatePerMinute < 1 {
		req.RatePerMinute = 1
	}

	campaign := &db.Campaign{
		ID:            uuid.New(),
		TenantID:      tenantID,
		TemplateID:    templateID,
		Status:        db.CampaignStatusPaused,
		RatePerMinute: req.RatePerMinute,
	}
	if err := h.repo.CreateCampaign(r.Context(), campaign); err != nil {
		h.logger.Error("failed to create campaign", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create campaign", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, campaign)
}

// CampaignResponse wraps a campaign with its contact progress.
type CampaignResponse struct {
	Campaign *db.Campaign   `json:"campaign"`
	Contacts map[string]int `json:"contacts"`
}

// GetCampaign handles GET /campaigns/{id}
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	campaign, err := h.repo.GetCampaign(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	counts, err := h.repo.CampaignContactCounts(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to count campaign contacts", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	h.writeJSON(w, http.StatusOK, CampaignResponse{Campaign: campaign, Contacts: counts})
}

// ImportResponse reports a contact upload outcome.
type ImportResponse struct {
	Imported int `json:"imported"`
	Attached int `json:"attached"`
	Skipped  int `json:"skipped"`
}

// ImportCampaignContacts handles POST /campaigns/{id}/contacts. The
// body is a CSV upload; rows become tenant contacts and PENDING
// campaign entries.
func (h *Handler) ImportCampaignContacts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	campaign, err := h.repo.GetCampaign(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	parsed, err := importer.ParseContacts(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unusable contact list", err.Error())
		return
	}

	contactIDs := make([]uuid.UUID, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		contact, err := h.repo.UpsertContact(r.Context(), campaign.TenantID, row.Phone, row.Name, row.Email)
		if err != nil {
			h.logger.Error("failed to upsert imported contact", zap.Error(err))
			continue
		}
		contactIDs = append(contactIDs, contact.ID)
	}

	attached, err := h.repo.AddCampaignContacts(r.Context(), id, contactIDs)
	if err != nil {
		h.logger.Error("failed to attach campaign contacts", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to attach contacts", "")
		return
	}

	h.writeJSON(w, http.StatusOK, ImportResponse{
		Imported: len(contactIDs),
		Attached: attached,
		Skipped:  parsed.Skipped,
	})
}

// PauseCampaign handles POST /campaigns/{id}/pause
func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.transitionCampaign(w, r, db.CampaignStatusActive, db.CampaignStatusPaused)
}

// ResumeCampaign handles POST /campaigns/{id}/resume
func (h *Handler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.transitionCampaign(w, r, db.CampaignStatusPaused, db.CampaignStatusActive)
}

// CancelCampaign handles POST /campaigns/{id}/cancel. Cancellation is
// allowed from either runnable state and is terminal.
func (h *Handler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	for _, from := range []string{db.CampaignStatusActive, db.CampaignStatusPaused} {
		moved, err := h.repo.TransitionCampaign(r.Context(), id, from, db.CampaignStatusCancelled)
		if err != nil {
			h.logger.Error("failed to cancel campaign", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to cancel campaign", "")
			return
		}
		if moved {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	h.writeError(w, http.StatusConflict, "invalid_transition", "Campaign not cancellable", "campaign is not in a runnable state")
}

func (h *Handler) transitionCampaign(w http.ResponseWriter, r *http.Request, from, to string) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	moved, err := h.repo.TransitionCampaign(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("failed to transition campaign",
			zap.Error(err),
			zap.String("from", from),
			zap.String("to", to),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to transition campaign", "")
		return
	}
	if !moved {
		h.writeError(w, http.StatusConflict, "invalid_transition", "Campaign not in expected state",
			"transition requires status "+from)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// OptOutRequest is the opt-out registration body.
type OptOutRequest struct {
	Phone string `json:"phone"`
}

// AddOptOut handles POST /tenants/{id}/optouts
func (h *Handler) AddOptOut(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req OptOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	phone := db.NormalizePhone(req.Phone)
	if phone == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid phone", "phone must contain digits")
		return
	}

	if err := h.repo.AddOptOut(r.Context(), id, phone); err != nil {
		h.logger.Error("failed to add opt-out", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to add opt-out", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// QuotaResponse reports today's usage against the tenant limits.
// OutboundRowsToday comes from the message log and can disagree with
// SendUsed by blocked-then-logged rows; both are shown so operators
// can spot the gap.
type QuotaResponse struct {
	Day               string `json:"day"`
	AIUsed            int    `json:"ai_used"`
	AIDailyLimit      int    `json:"ai_daily_limit"`
	SendUsed          int    `json:"send_used"`
	SendTierLimit     int    `json:"send_tier_limit"`
	OutboundRowsToday int    `json:"outbound_rows_today"`
}

// GetQuotaUsage handles GET /tenants/{id}/quota
func (h *Handler) GetQuotaUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	tenant, err := h.repo.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Tenant not found", "")
			return
		}
		h.logger.Error("failed to get tenant", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get tenant", "")
		return
	}

	day := h.days.DayKey()
	aiUsed, err := h.repo.GetQuotaUsed(r.Context(), id, string(quota.MetricAIReply), day)
	if err != nil {
		h.logger.Error("failed to read AI quota", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to read quota", "")
		return
	}
	sendUsed, err := h.repo.GetQuotaUsed(r.Context(), id, string(quota.MetricSendTier), day)
	if err != nil {
		h.logger.Error("failed to read send quota", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to read quota", "")
		return
	}
	outboundRows, err := h.repo.CountOutboundToday(r.Context(), id, day)
	if err != nil {
		h.logger.Error("failed to count outbound rows", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to read quota", "")
		return
	}

	h.writeJSON(w, http.StatusOK, QuotaResponse{
		Day:               day,
		AIUsed:            aiUsed,
		AIDailyLimit:      tenant.AIDailyLimit,
		SendUsed:          sendUsed,
		SendTierLimit:     tenant.SendTierLimit,
		OutboundRowsToday: outboundRows,
	})
}

// ListMessages handles GET /tenants/{id}/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pageParams(r, 50, 200)
	messages, err := h.repo.ListMessagesByTenant(r.Context(), id, limit, offset)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list messages", "")
		return
	}
	if messages == nil {
		messages = []*db.Message{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// ListEvents handles GET /tenants/{id}/events, exposing the
// operational audit trail (quota blocks, dispatch failures).
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pageParams(r, 50, 200)
	events, err := h.repo.ListProviderEvents(r.Context(), id, limit, offset)
	if err != nil {
		h.logger.Error("failed to list provider events", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list events", "")
		return
	}
	if events == nil {
		events = []*db.ProviderEvent{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// RecentConversation handles GET /tenants/{id}/contacts/{contactID}/recent
func (h *Handler) RecentConversation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	contactID, ok := h.pathUUID(w, r, "contactID")
	if !ok {
		return
	}

	contact, err := h.repo.GetContact(r.Context(), contactID)
	if err != nil || contact.TenantID != tenantID {
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			h.logger.Error("failed to get contact", zap.Error(err))
		}
		h.writeError(w, http.StatusNotFound, "not_found", "Contact not found", "")
		return
	}

	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "cache_unavailable", "Conversation cache not configured", "")
		return
	}

	turns, err := h.cache.Recent(r.Context(), tenantID.String(), contactID.String())
	if err != nil {
		h.logger.Error("failed to read conversation cache", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "cache_error", "Failed to read conversation", "")
		return
	}
	if turns == nil {
		turns = []gwredis.ChatTurn{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func pageParams(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid identifier", param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	}); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}
