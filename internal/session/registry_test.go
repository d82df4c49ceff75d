package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/kv"
)

func newRegistryForTest(t *testing.T) (*miniredis.Miniredis, *Registry) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, NewRegistry(kv.NewStore(client, time.Second))
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	_, registry := newRegistryForTest(t)

	id, err := registry.Create(ctx, 7, domain.RoleEditor, 7*time.Hour, "192.0.2.1", "go-test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	rec, err := registry.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.UserID != 7 || rec.Role != domain.RoleEditor {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.IPAddress != "192.0.2.1" || rec.UserAgent != "go-test" {
		t.Fatalf("client metadata lost: %+v", rec)
	}

	// The store TTL tracks the logical lifetime.
	lifetime := rec.ExpiresAt.Sub(rec.LoginTime)
	if diff := lifetime - 7*time.Hour; diff < -time.Second || diff > time.Second {
		t.Fatalf("logical lifetime %v, want ~7h", lifetime)
	}
	if rec.TTL <= 0 || rec.TTL > 7*time.Hour {
		t.Fatalf("store ttl %v outside (0, 7h]", rec.TTL)
	}
}

func TestCreateRejectsNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	_, registry := newRegistryForTest(t)

	if _, err := registry.Create(ctx, 1, domain.RoleUser, 0, "", ""); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestGetMissingSession(t *testing.T) {
	ctx := context.Background()
	_, registry := newRegistryForTest(t)

	if _, err := registry.Get(ctx, "deadbeef"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, registry := newRegistryForTest(t)

	id, err := registry.Create(ctx, 1, domain.RoleUser, time.Hour, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := registry.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := registry.Get(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := registry.Delete(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestRecordVanishesAfterTTL(t *testing.T) {
	ctx := context.Background()
	server, registry := newRegistryForTest(t)

	id, err := registry.Create(ctx, 1, domain.RoleUser, time.Hour, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	server.FastForward(time.Hour + time.Second)
	if _, err := registry.Get(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after ttl, got %v", err)
	}
}

func TestListReturnsAllLiveSessions(t *testing.T) {
	ctx := context.Background()
	server, registry := newRegistryForTest(t)

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		id, err := registry.Create(ctx, uint(i+1), domain.RoleUser, time.Hour, "", "")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids[id] = true
	}
	shortID, err := registry.Create(ctx, 99, domain.RoleUser, time.Minute, "", "")
	if err != nil {
		t.Fatalf("create short session: %v", err)
	}

	server.FastForward(2 * time.Minute)

	records, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for _, rec := range records {
		if rec.SessionID == shortID {
			t.Fatal("expired session still listed")
		}
		if !ids[rec.SessionID] {
			t.Fatalf("unexpected session %q", rec.SessionID)
		}
	}
}
