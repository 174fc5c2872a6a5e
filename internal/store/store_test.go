package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/introspect-ai/sophia/internal/persona"
	"github.com/introspect-ai/sophia/internal/store"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if SOPHIA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SOPHIA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOPHIA_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [store.Store] over an empty schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS conversations, users CASCADE`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	s, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if id == 0 {
		t.Fatal("CreateUser returned id 0")
	}

	u, err := s.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Name != "alice" {
		t.Errorf("name = %q", u.Name)
	}
	if u.Prompt != persona.Default {
		t.Error("new user not seeded with the default persona prompt")
	}

	gotID, err := s.GetUserID(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserID: %v", err)
	}
	if gotID != id {
		t.Errorf("GetUserID = %d, want %d", gotID, id)
	}
}

func TestCreateUser_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	second, err := s.GetOrCreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser (existing): %v", err)
	}
	if first != second {
		t.Errorf("ids differ: %d vs %d", first, second)
	}
}

func TestUnknownUserLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUserID(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetUserID err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetUser(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetUser err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetPrompt(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetPrompt err = %v, want ErrNotFound", err)
	}
	if err := s.SetPrompt(ctx, 404, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetPrompt err = %v, want ErrNotFound", err)
	}
}

func TestPromptRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.SetPrompt(ctx, id, "be direct"); err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	got, err := s.GetPrompt(ctx, id)
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if got != "be direct" {
		t.Errorf("prompt = %q", got)
	}
}

func TestSummaryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// No turns yet: empty summary, no error.
	got, err := s.GetSummary(ctx, id)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if got != "" {
		t.Errorf("fresh summary = %q, want empty", got)
	}

	if err := s.UpsertSummary(ctx, id, "first summary"); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
	if err := s.UpsertSummary(ctx, id, "second summary"); err != nil {
		t.Fatalf("UpsertSummary (overwrite): %v", err)
	}

	got, err = s.GetSummary(ctx, id)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if got != "second summary" {
		t.Errorf("summary = %q, want the latest write", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// New already migrated once; a second run must be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestConcurrentUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			errs <- s.UpsertSummary(ctx, id, fmt.Sprintf("summary %d", n))
		}(i)
	}
	for i := 0; i < 10; i++ {
		if err := <-errs; err != nil {
			t.Errorf("UpsertSummary: %v", err)
		}
	}

	// Exactly one conversations row survives regardless of interleaving.
	if _, err := s.GetSummary(ctx, id); err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
}
