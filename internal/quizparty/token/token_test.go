package token

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/quizparty-games/quizparty/internal/cache"
	"github.com/quizparty-games/quizparty/internal/database"
)

func testStore(t *testing.T, withCache bool) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := database.NewFromEnv(ctx, &database.Config{FilePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(ctx) })

	var c cache.Cache
	if withCache {
		c, err = cache.NewLRU(16)
		if err != nil {
			t.Fatalf("create cache: %v", err)
		}
	}

	return New(db, c)
}

func TestIssueResolve(t *testing.T) {
	t.Parallel()

	store := testStore(t, true)

	tok, err := store.Issue("alex")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if len(tok) != 64 {
		t.Fatalf("expected 64 hex chars got %d", len(tok))
	}

	got, err := store.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if got != "alex" {
		t.Errorf("expected alex got %s", got)
	}
}

func TestIssueUnique(t *testing.T) {
	t.Parallel()

	store := testStore(t, false)

	tok1, err := store.Issue("alex")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	tok2, err := store.Issue("alex")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if tok1 == tok2 {
		t.Error("expected distinct tokens")
	}
}

func TestResolveSurvivesColdCache(t *testing.T) {
	t.Parallel()

	store := testStore(t, false)

	tok, err := store.Issue("sam")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	got, err := store.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if got != "sam" {
		t.Errorf("expected sam got %s", got)
	}
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()

	store := testStore(t, true)

	if _, err := store.Resolve("deadbeef"); err != ErrNotFound {
		t.Fatalf("expected %v got %v", ErrNotFound, err)
	}
}
