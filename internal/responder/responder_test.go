package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
	"github.com/zapgatehq/zapgate/internal/quota"
)

type mockGenerator struct {
	reply  string
	err    error
	delay  time.Duration
	called int
}

func (m *mockGenerator) Generate(ctx context.Context, apiKey, model, inboundText string) (string, error) {
	m.called++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.reply, m.err
}

type mockGate struct {
	allow    bool
	consumed int
}

func (m *mockGate) CanConsume(ctx context.Context, tenant *db.Tenant, metric quota.Metric) (bool, error) {
	return m.allow, nil
}

func (m *mockGate) Consume(ctx context.Context, tenantID uuid.UUID, metric quota.Metric) error {
	m.consumed++
	return nil
}

type mockAudit struct {
	events []string
}

func (m *mockAudit) RecordProviderEvent(ctx context.Context, tenantID *uuid.UUID, kind string, payload []byte) error {
	m.events = append(m.events, kind)
	return nil
}

func aiTenant(enabled bool) *db.Tenant {
	return &db.Tenant{ID: uuid.New(), Name: "acme", AutoReplyEnabled: enabled, AIDailyLimit: 100}
}

func newTestResponder(gen *mockGenerator, gate *mockGate, audit *mockAudit, cfg Config) *Responder {
	return New(gen, gate, audit, cfg, zap.NewNop())
}

func TestRespond_FastPathBypassesQuota(t *testing.T) {
	gen := &mockGenerator{reply: "generated"}
	gate := &mockGate{allow: true}
	r := newTestResponder(gen, gate, &mockAudit{}, Config{})

	reply := r.Respond(context.Background(), aiTenant(true), AICredentials{APIKey: "k"}, "oi")
	if reply != DefaultRules()[0].Reply {
		t.Errorf("expected greeting fast-path reply, got %q", reply)
	}
	if gen.called != 0 {
		t.Error("fast path must not invoke generation")
	}
	if gate.consumed != 0 {
		t.Error("fast path must not consume quota")
	}
}

func TestRespond_AutomationDisabledFallsBack(t *testing.T) {
	gen := &mockGenerator{reply: "generated"}
	gate := &mockGate{allow: true}
	r := newTestResponder(gen, gate, &mockAudit{}, Config{})

	reply := r.Respond(context.Background(), aiTenant(false), AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if reply != FallbackReply {
		t.Errorf("expected fallback, got %q", reply)
	}
	if gen.called != 0 {
		t.Error("disabled automation must not invoke generation")
	}
}

func TestRespond_GenerationSuccess(t *testing.T) {
	gen := &mockGenerator{reply: "o prazo é de 3 dias úteis"}
	gate := &mockGate{allow: true}
	r := newTestResponder(gen, gate, &mockAudit{}, Config{})

	reply := r.Respond(context.Background(), aiTenant(true), AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if reply != "o prazo é de 3 dias úteis" {
		t.Errorf("expected generated reply, got %q", reply)
	}
	if gate.consumed != 1 {
		t.Errorf("expected one consumption, got %d", gate.consumed)
	}
}

func TestRespond_QuotaExhaustedAuditsAndFallsBack(t *testing.T) {
	gen := &mockGenerator{reply: "generated"}
	gate := &mockGate{allow: false}
	audit := &mockAudit{}
	r := newTestResponder(gen, gate, audit, Config{})

	reply := r.Respond(context.Background(), aiTenant(true), AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if reply != FallbackReply {
		t.Errorf("expected fallback, got %q", reply)
	}
	if gen.called != 0 {
		t.Error("exhausted quota must not invoke generation")
	}
	if len(audit.events) != 1 || audit.events[0] != db.EventAIQuotaExceeded {
		t.Errorf("expected one ai_quota_exceeded event, got %v", audit.events)
	}
}

func TestRespond_GenerationErrorFallsBackWithoutCharge(t *testing.T) {
	gen := &mockGenerator{err: errors.New("provider down")}
	gate := &mockGate{allow: true}
	r := newTestResponder(gen, gate, &mockAudit{}, Config{})

	reply := r.Respond(context.Background(), aiTenant(true), AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if reply != FallbackReply {
		t.Errorf("expected fallback, got %q", reply)
	}
	if gate.consumed != 0 {
		t.Error("charge-on-success policy must not charge failed attempts")
	}
}

func TestRespond_ChargeOnAttemptPolicy(t *testing.T) {
	gen := &mockGenerator{err: errors.New("provider down")}
	gate := &mockGate{allow: true}
	r := newTestResponder(gen, gate, &mockAudit{}, Config{ChargeOnAttempt: true})

	_ = r.Respond(context.Background(), aiTenant(true), AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if gate.consumed != 1 {
		t.Errorf("charge-on-attempt policy should charge the failed attempt, got %d", gate.consumed)
	}
}

func TestRespond_ZeroLimitDisablesGeneration(t *testing.T) {
	gen := &mockGenerator{reply: "generated"}
	gate := &mockGate{allow: false}
	audit := &mockAudit{}
	r := newTestResponder(gen, gate, audit, Config{})

	tenant := aiTenant(true)
	tenant.AIDailyLimit = 0

	reply := r.Respond(context.Background(), tenant, AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if reply != FallbackReply {
		t.Errorf("expected fallback, got %q", reply)
	}
	if gen.called != 0 {
		t.Error("zero limit must never invoke generation")
	}
	if gate.consumed != 0 {
		t.Error("zero limit must never create a counter row")
	}
	if len(audit.events) != 0 {
		t.Errorf("a disabled feature is not quota exhaustion, got %v", audit.events)
	}
}

func TestRespond_TimeoutFallsBack(t *testing.T) {
	gen := &mockGenerator{reply: "late", delay: 200 * time.Millisecond}
	gate := &mockGate{allow: true}
	r := newTestResponder(gen, gate, &mockAudit{}, Config{GenerationTimeout: 20 * time.Millisecond})

	reply := r.Respond(context.Background(), aiTenant(true), AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if reply != FallbackReply {
		t.Errorf("expected fallback on timeout, got %q", reply)
	}
}

func TestRespond_EmptyGenerationFallsBack(t *testing.T) {
	gen := &mockGenerator{reply: "   "}
	gate := &mockGate{allow: true}
	r := newTestResponder(gen, gate, &mockAudit{}, Config{})

	reply := r.Respond(context.Background(), aiTenant(true), AICredentials{APIKey: "k"}, "qual é o prazo de entrega?")
	if reply != FallbackReply {
		t.Errorf("expected fallback for blank generation, got %q", reply)
	}
}
