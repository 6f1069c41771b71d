package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/circuitbreaker"
)

func testCreds() Credentials {
	return Credentials{PhoneNumberID: "1098765", AccessToken: "token-abc"}
}

func TestClient_SendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq SendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.out1"}]}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL}, nil, zap.NewNop())

	err := client.SendText(context.Background(), testCreds(), "5511999999999", "oi")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotPath != "/1098765/messages" {
		t.Errorf("expected path /1098765/messages, got %s", gotPath)
	}
	if gotAuth != "Bearer token-abc" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.To != "5511999999999" || gotReq.Text.Body != "oi" {
		t.Errorf("unexpected payload: %+v", gotReq)
	}
	if gotReq.MessagingProduct != "whatsapp" || gotReq.Type != "text" {
		t.Errorf("unexpected envelope fields: %+v", gotReq)
	}
}

func TestClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL}, nil, zap.NewNop())

	err := client.SendText(context.Background(), testCreds(), "5511999999999", "oi")
	if err == nil {
		t.Fatal("expected error for provider rejection")
	}
}

func TestClient_BreakerOpensAndFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:            "whatsapp",
		MaxFailures:     2,
		RecoveryTimeout: time.Minute,
	}, zap.NewNop())
	client := NewClient(ClientConfig{BaseURL: srv.URL}, breaker, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := client.SendText(ctx, testCreds(), "5511999999999", "oi"); err == nil {
			t.Fatalf("send %d should fail", i)
		}
	}

	if breaker.GetState() != circuitbreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", breaker.GetState())
	}

	srv.Close() // an open breaker must not reach the server at all
	if err := client.SendText(ctx, testCreds(), "5511999999999", "oi"); err == nil {
		t.Fatal("open breaker should fail fast")
	}
}
