package local

import (
	"context"
	"path/filepath"
	"testing"

	"contest-engine/internal/domain"
)

func TestOutboxSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pending", "sync.json")

	first := NewOutbox(path)
	if err := first.Save(ctx, domain.SyncPayload{SessionID: "s1", UserID: "u1", Score: 300}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Save(ctx, domain.SyncPayload{SessionID: "s2", UserID: "u1", Score: 450}); err != nil {
		t.Fatalf("save again: %v", err)
	}

	reopened := NewOutbox(path)
	payload, ok, err := reopened.Load(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if payload.SessionID != "s2" || payload.Score != 450 {
		t.Fatalf("expected the latest payload, got %+v", payload)
	}
}

func TestOutboxIsScopedToOwner(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutbox(filepath.Join(t.TempDir(), "sync.json"))
	if err := outbox.Save(ctx, domain.SyncPayload{SessionID: "s1", UserID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, ok, _ := outbox.Load(ctx, "u2"); ok {
		t.Fatalf("another user must not see the payload")
	}
	if err := outbox.Clear(ctx, "u2"); err != nil {
		t.Fatalf("clear other: %v", err)
	}
	if _, ok, _ := outbox.Load(ctx, "u1"); !ok {
		t.Fatalf("clear by another user must keep the payload")
	}
	if err := outbox.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if users, _ := outbox.PendingUsers(ctx); len(users) != 0 {
		t.Fatalf("expected no pending users, got %v", users)
	}
}
