package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestChatCache_PushAndRecent(t *testing.T) {
	client, _, cleanup := setupTestClient(t)
	defer cleanup()

	cache := NewChatCache(client, zap.NewNop(), 10)
	ctx := context.Background()

	_ = cache.Push(ctx, "t1", "c1", ChatTurn{Direction: "INBOUND", Content: "oi", At: time.Now()})
	_ = cache.Push(ctx, "t1", "c1", ChatTurn{Direction: "OUTBOUND", Content: "olá!", At: time.Now()})

	turns, err := cache.Recent(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "olá!" {
		t.Errorf("expected newest turn first, got %q", turns[0].Content)
	}
}

func TestChatCache_BoundedDepth(t *testing.T) {
	client, _, cleanup := setupTestClient(t)
	defer cleanup()

	cache := NewChatCache(client, zap.NewNop(), 3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cache.Push(ctx, "t1", "c1", ChatTurn{Direction: "INBOUND", Content: fmt.Sprintf("msg-%d", i)})
	}

	turns, _ := cache.Recent(ctx, "t1", "c1")
	if len(turns) != 3 {
		t.Fatalf("expected window of 3, got %d", len(turns))
	}
	if turns[0].Content != "msg-9" {
		t.Errorf("expected most recent turn retained, got %q", turns[0].Content)
	}
}

func TestChatCache_ConversationsIsolated(t *testing.T) {
	client, _, cleanup := setupTestClient(t)
	defer cleanup()

	cache := NewChatCache(client, zap.NewNop(), 10)
	ctx := context.Background()

	_ = cache.Push(ctx, "t1", "c1", ChatTurn{Content: "for c1"})
	_ = cache.Push(ctx, "t1", "c2", ChatTurn{Content: "for c2"})

	turns, _ := cache.Recent(ctx, "t1", "c1")
	if len(turns) != 1 || turns[0].Content != "for c1" {
		t.Fatalf("conversation windows should not leak across contacts: %+v", turns)
	}
}
