package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
	"github.com/zapgatehq/zapgate/internal/quota"
	"github.com/zapgatehq/zapgate/internal/responder"
	"github.com/zapgatehq/zapgate/internal/secrets"
	"github.com/zapgatehq/zapgate/internal/whatsapp"
)

type mockRepo struct {
	mu            sync.Mutex
	tenants       map[string]*db.Tenant
	contacts      map[string]*db.Contact
	messages      []*db.Message
	statusUpdates map[uuid.UUID]string
	optOuts       map[string]bool
	events        []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		tenants:       make(map[string]*db.Tenant),
		contacts:      make(map[string]*db.Contact),
		statusUpdates: make(map[uuid.UUID]string),
		optOuts:       make(map[string]bool),
	}
}

func (m *mockRepo) ResolveTenantByPhoneNumberID(_ context.Context, phoneNumberID string) (*db.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[phoneNumberID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (m *mockRepo) UpsertContact(_ context.Context, tenantID uuid.UUID, phone, name, _ string) (*db.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID.String() + "|" + phone
	if c, ok := m.contacts[key]; ok {
		return c, nil
	}
	c := &db.Contact{ID: uuid.New(), TenantID: tenantID, Phone: phone, Name: name}
	m.contacts[key] = c
	return c, nil
}

func (m *mockRepo) CreateMessage(_ context.Context, msg *db.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockRepo) SetMessageStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusUpdates[id] = status
	return nil
}

func (m *mockRepo) IsOptedOut(_ context.Context, tenantID uuid.UUID, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.optOuts[tenantID.String()+"|"+phone], nil
}

func (m *mockRepo) RecordProviderEvent(_ context.Context, _ *uuid.UUID, kind string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, kind)
	return nil
}

func (m *mockRepo) messagesByDirection(direction string) []*db.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.Message
	for _, msg := range m.messages {
		if msg.Direction == direction {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockRepo) eventKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type mockCreds struct {
	creds *secrets.ProviderCredentials
	err   error
}

func (m *mockCreds) For(context.Context, uuid.UUID, string) (*secrets.ProviderCredentials, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.creds, nil
}

type mockDispatcher struct {
	mu   sync.Mutex
	sent []string
	err  error
	done chan struct{}
}

func (m *mockDispatcher) SendText(_ context.Context, _ whatsapp.Credentials, toPhone, _ string) error {
	m.mu.Lock()
	m.sent = append(m.sent, toPhone)
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
	return m.err
}

func (m *mockDispatcher) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type mockReplier struct {
	reply string
}

func (m *mockReplier) Respond(context.Context, *db.Tenant, responder.AICredentials, string) string {
	return m.reply
}

type mockGate struct {
	mu       sync.Mutex
	allow    bool
	consumed int
}

func (m *mockGate) CanConsume(context.Context, *db.Tenant, quota.Metric) (bool, error) {
	return m.allow, nil
}

func (m *mockGate) Consume(context.Context, uuid.UUID, quota.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed++
	return nil
}

type mockDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *mockDedup) FirstDelivery(_ context.Context, tenantID, msgID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	key := tenantID + "|" + msgID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

const testPhoneNumberID = "109876543210"

func setupHandler(t *testing.T) (*Handler, *mockRepo, *mockDispatcher, *mockGate, *db.Tenant) {
	t.Helper()
	repo := newMockRepo()
	tenant := &db.Tenant{
		ID:               uuid.New(),
		Name:             "Acme Dental",
		AutoReplyEnabled: true,
		AIDailyLimit:     50,
		SendTierLimit:    1000,
	}
	repo.tenants[testPhoneNumberID] = tenant

	dispatcher := &mockDispatcher{}
	gate := &mockGate{allow: true}
	creds := &mockCreds{creds: &secrets.ProviderCredentials{
		PhoneNumberID: testPhoneNumberID,
		AccessToken:   "tok",
	}}

	h := New(zap.NewNop(), repo, creds, dispatcher, &mockReplier{reply: "auto reply"}, gate, &mockDedup{}, nil, Config{VerifyToken: "secret-token"})
	return h, repo, dispatcher, gate, tenant
}

func inboundBody(msgID, from, text string) []byte {
	payload := fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "+1 555 0100", "phone_number_id": %q},
					"contacts": [{"profile": {"name": "Maria"}, "wa_id": %q}],
					"messages": [{"from": %q, "id": %q, "timestamp": "1714000000", "type": "text", "text": {"body": %q}}]
				}
			}]
		}]
	}`, testPhoneNumberID, from, from, msgID, text)
	return []byte(payload)
}

func postWebhook(t *testing.T, h *Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func TestVerify_CorrectToken(t *testing.T) {
	h, _, _, _, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("expected challenge echoed back, got %q", rec.Body.String())
	}
}

func TestVerify_WrongToken(t *testing.T) {
	h, _, _, _, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestReceive_MalformedBody(t *testing.T) {
	h, _, _, _, _ := setupHandler(t)

	rec := postWebhook(t, h, []byte("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestReceive_InboundMessageRepliesAndDispatches(t *testing.T) {
	h, repo, dispatcher, gate, tenant := setupHandler(t)
	dispatcher.done = make(chan struct{})

	rec := postWebhook(t, h, inboundBody("wamid.1", "5511912345678", "oi"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	select {
	case <-dispatcher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never happened")
	}

	inbound := repo.messagesByDirection(db.DirectionInbound)
	if len(inbound) != 1 {
		t.Fatalf("expected 1 inbound message, got %d", len(inbound))
	}
	if inbound[0].TenantID != tenant.ID {
		t.Error("inbound message attributed to wrong tenant")
	}
	if inbound[0].Content != "oi" {
		t.Errorf("expected inbound content preserved, got %q", inbound[0].Content)
	}

	outbound := repo.messagesByDirection(db.DirectionOutbound)
	if len(outbound) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(outbound))
	}
	if outbound[0].Content != "auto reply" {
		t.Errorf("expected responder output, got %q", outbound[0].Content)
	}
	if outbound[0].Source != db.SourceAI {
		t.Errorf("expected source AI, got %q", outbound[0].Source)
	}

	if got := dispatcher.sentTo(); len(got) != 1 || got[0] != "5511912345678" {
		t.Errorf("expected dispatch to normalized phone, got %v", got)
	}
	if gate.consumed != 1 {
		t.Errorf("expected one send-tier consumption, got %d", gate.consumed)
	}

	// The dispatch goroutine also flips the queued row to SENT.
	deadline := time.Now().Add(2 * time.Second)
	for {
		repo.mu.Lock()
		status := repo.statusUpdates[outbound[0].ID]
		repo.mu.Unlock()
		if status == db.MessageStatusSent {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("outbound message never marked SENT, last status %q", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReceive_UnresolvedRoutingKeySkipped(t *testing.T) {
	h, repo, dispatcher, _, _ := setupHandler(t)

	body := bytes.Replace(inboundBody("wamid.2", "5511912345678", "oi"),
		[]byte(testPhoneNumberID), []byte("000000000000"), -1)

	rec := postWebhook(t, h, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unresolved routing must still return 200, got %d", rec.Code)
	}
	if len(repo.messagesByDirection(db.DirectionInbound)) != 0 {
		t.Error("no message row should exist for an unresolved tenant")
	}
	if got := repo.eventKinds(); len(got) != 1 || got[0] != db.EventUnresolvedRouting {
		t.Errorf("expected one unresolved_routing event, got %v", got)
	}
	if len(dispatcher.sentTo()) != 0 {
		t.Error("nothing should be dispatched for an unresolved tenant")
	}
}

func TestReceive_TierBlockedStopsBeforeDispatch(t *testing.T) {
	h, repo, dispatcher, gate, _ := setupHandler(t)
	gate.allow = false

	rec := postWebhook(t, h, inboundBody("wamid.3", "5511912345678", "oi"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	outbound := repo.messagesByDirection(db.DirectionOutbound)
	if len(outbound) != 1 {
		t.Fatalf("reply row is still logged when blocked, got %d rows", len(outbound))
	}
	if outbound[0].Status != db.MessageStatusQueued {
		t.Errorf("blocked reply stays QUEUED, got %q", outbound[0].Status)
	}
	if got := repo.eventKinds(); len(got) != 1 || got[0] != db.EventTierBlocked {
		t.Errorf("expected tier_blocked audit event, got %v", got)
	}
	if len(dispatcher.sentTo()) != 0 {
		t.Error("no dispatch may happen past the tier gate")
	}
	if gate.consumed != 0 {
		t.Error("blocked sends must not consume quota")
	}
}

func TestReceive_OptedOutContactGetsNoReply(t *testing.T) {
	h, repo, dispatcher, _, tenant := setupHandler(t)
	repo.optOuts[tenant.ID.String()+"|5511912345678"] = true

	rec := postWebhook(t, h, inboundBody("wamid.4", "5511912345678", "oi"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if len(repo.messagesByDirection(db.DirectionInbound)) != 1 {
		t.Error("inbound message from an opted-out contact is still logged")
	}
	if len(repo.messagesByDirection(db.DirectionOutbound)) != 0 {
		t.Error("opted-out contact must not receive a reply")
	}
	if len(dispatcher.sentTo()) != 0 {
		t.Error("nothing should be dispatched to an opted-out contact")
	}
}

func TestReceive_DuplicateDeliveryIgnored(t *testing.T) {
	h, repo, _, _, _ := setupHandler(t)

	body := inboundBody("wamid.5", "5511912345678", "oi")
	postWebhook(t, h, body)
	postWebhook(t, h, body)

	if got := len(repo.messagesByDirection(db.DirectionInbound)); got != 1 {
		t.Errorf("redelivered message must be ingested once, got %d rows", got)
	}
}

func TestReceive_StatusEventLogged(t *testing.T) {
	h, repo, _, _, tenant := setupHandler(t)

	payload := fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"phone_number_id": %q},
					"statuses": [{"id": "wamid.9", "status": "delivered", "timestamp": "1714000000", "recipient_id": "5511912345678"}]
				}
			}]
		}]
	}`, testPhoneNumberID)

	rec := postWebhook(t, h, []byte(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rows := repo.messagesByDirection(db.DirectionStatus)
	if len(rows) != 1 {
		t.Fatalf("expected 1 status row, got %d", len(rows))
	}
	if rows[0].TenantID != tenant.ID {
		t.Error("status row attributed to wrong tenant")
	}
	if !strings.Contains(rows[0].Content, "delivered") {
		t.Errorf("status row should carry the provider status, got %q", rows[0].Content)
	}
	if rows[0].ContactID != nil {
		t.Error("status rows carry no contact association")
	}
}

func TestReceive_MissingCredentialsMarksReplyFailed(t *testing.T) {
	repo := newMockRepo()
	tenant := &db.Tenant{ID: uuid.New(), AutoReplyEnabled: true, AIDailyLimit: 10, SendTierLimit: 100}
	repo.tenants[testPhoneNumberID] = tenant

	dispatcher := &mockDispatcher{}
	h := New(zap.NewNop(), repo, &mockCreds{err: db.ErrNotFound}, dispatcher,
		&mockReplier{reply: "auto reply"}, &mockGate{allow: true}, &mockDedup{}, nil,
		Config{VerifyToken: "secret-token"})

	postWebhook(t, h, inboundBody("wamid.6", "5511912345678", "oi"))

	outbound := repo.messagesByDirection(db.DirectionOutbound)
	if len(outbound) != 1 {
		t.Fatalf("expected 1 outbound row, got %d", len(outbound))
	}
	repo.mu.Lock()
	status := repo.statusUpdates[outbound[0].ID]
	repo.mu.Unlock()
	if status != db.MessageStatusFailed {
		t.Errorf("reply without credentials must be marked FAILED, got %q", status)
	}
	if len(dispatcher.sentTo()) != 0 {
		t.Error("no dispatch possible without credentials")
	}
}

func TestReceive_DispatchFailureRecordsAudit(t *testing.T) {
	h, repo, dispatcher, _, _ := setupHandler(t)
	dispatcher.err = errors.New("provider 500")
	dispatcher.done = make(chan struct{})

	postWebhook(t, h, inboundBody("wamid.7", "5511912345678", "oi"))

	select {
	case <-dispatcher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never attempted")
	}

	outbound := repo.messagesByDirection(db.DirectionOutbound)
	if len(outbound) != 1 {
		t.Fatalf("expected 1 outbound row, got %d", len(outbound))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		repo.mu.Lock()
		status := repo.statusUpdates[outbound[0].ID]
		events := append([]string(nil), repo.events...)
		repo.mu.Unlock()
		if status == db.MessageStatusFailed && len(events) == 1 && events[0] == db.EventDispatchFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected FAILED status and dispatch_failed event, got status %q events %v", status, events)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReceive_SecondChangeProcessedAfterFirstFails(t *testing.T) {
	h, repo, _, _, _ := setupHandler(t)

	payload := fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [
				{
					"field": "messages",
					"value": {
						"messaging_product": "whatsapp",
						"metadata": {"phone_number_id": "000000000000"},
						"messages": [{"from": "5511900000001", "id": "wamid.a", "type": "text", "text": {"body": "lost"}}]
					}
				},
				{
					"field": "messages",
					"value": {
						"messaging_product": "whatsapp",
						"metadata": {"phone_number_id": %q},
						"messages": [{"from": "5511900000002", "id": "wamid.b", "type": "text", "text": {"body": "kept"}}]
					}
				}
			]
		}]
	}`, testPhoneNumberID)

	rec := postWebhook(t, h, []byte(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	inbound := repo.messagesByDirection(db.DirectionInbound)
	if len(inbound) != 1 || inbound[0].Content != "kept" {
		t.Fatalf("second change must process despite the first failing, got %+v", inbound)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+55 11 91234-5678": "5511912345678",
		"5511912345678":     "5511912345678",
		"(11) 98765-4321":   "11987654321",
	}
	for raw, want := range cases {
		if got := db.NormalizePhone(raw); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", raw, got, want)
		}
	}
}
