package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grandcafe/concierge/pkg/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	created := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	action := newAction("a1", "conv-1", created)
	if err := store.Create(ctx, action); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Tool != "create_shift" || got.ConversationID != "conv-1" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Parameters["date"] != "2026-09-04" {
		t.Errorf("parameters lost: %+v", got.Parameters)
	}
	if !got.CreatedAt.Equal(created) || !got.ExpiresAt.Equal(created.Add(DefaultTTL)) {
		t.Errorf("timestamps lost: %+v", got)
	}
}

func TestSQLiteStore_SecondCreateRejected(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now()

	if err := store.Create(ctx, newAction("a1", "conv-1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, newAction("a2", "conv-1", now)); !errors.Is(err, ErrActionOpen) {
		t.Fatalf("second Create err = %v, want ErrActionOpen", err)
	}
}

func TestSQLiteStore_ResolveExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.Create(ctx, newAction("a1", "conv-1", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	resolved, err := store.Resolve(ctx, "a1", models.ActionConfirmed)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.ActionConfirmed {
		t.Fatalf("status = %s, want confirmed", resolved.Status)
	}
	if _, err := store.Resolve(ctx, "a1", models.ActionRejected); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second Resolve err = %v, want ErrAlreadyResolved", err)
	}
}

func TestSQLiteStore_ExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	created := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	current := created
	store.now = func() time.Time { return current }

	if err := store.Create(ctx, newAction("a1", "conv-1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	current = created.Add(DefaultTTL + time.Second)
	if _, err := store.Resolve(ctx, "a1", models.ActionConfirmed); !errors.Is(err, ErrExpired) {
		t.Fatalf("confirm past TTL err = %v, want ErrExpired", err)
	}

	// Action already expired lazily; a fresh pending action sweeps clean.
	if err := store.Create(ctx, newAction("a2", "conv-2", current)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	current = current.Add(DefaultTTL + time.Second)
	n, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep expired %d, want 1", n)
	}

	if _, ok, _ := store.Open(ctx, "conv-2"); ok {
		t.Error("expired action still reported open")
	}
}
