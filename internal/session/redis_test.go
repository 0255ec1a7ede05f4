package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gemini-playground/internal/models"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, uuid.New(), time.Hour), mr, client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s, _, _ := newRedisStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.SetUserName(ctx, created.ID, "Ada"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	if err := s.SetResult(ctx, created.ID, models.ResultAnswer, "42"); err != nil {
		t.Fatalf("set result: %v", err)
	}
	if err := s.AppendTurns(ctx, created.ID,
		models.ChatTurn{Role: models.RoleUser, Content: "one"},
		models.ChatTurn{Role: models.RoleAssistant, Content: "two"},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendTurns(ctx, created.ID,
		models.ChatTurn{Role: models.RoleUser, Content: "three"},
	); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserName != "Ada" || got.Result(models.ResultAnswer) != "42" {
		t.Fatalf("unexpected session %+v", got)
	}

	want := []string{"one", "two", "three"}
	if len(got.History) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got.History))
	}
	for i, turn := range got.History {
		if turn.Content != want[i] {
			t.Errorf("turn %d: expected %q, got %q", i, want[i], turn.Content)
		}
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", created.CreatedAt, got.CreatedAt)
	}
}

func TestRedisStore_MissingSession(t *testing.T) {
	s, _, _ := newRedisStore(t)
	ctx := context.Background()
	id := uuid.New()

	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
	if err := s.SetUserName(ctx, id, "Ada"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from SetUserName, got %v", err)
	}
	if err := s.AppendTurns(ctx, id, models.ChatTurn{Content: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from AppendTurns, got %v", err)
	}
}

func TestRedisStore_Expires(t *testing.T) {
	s, mr, _ := newRedisStore(t)
	ctx := context.Background()

	created, _ := s.Create(ctx)
	mr.FastForward(2 * time.Hour)

	if _, err := s.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestRedisStore_OtherInstanceCannotSeeSessions(t *testing.T) {
	s, _, client := newRedisStore(t)
	ctx := context.Background()

	created, _ := s.Create(ctx)

	restarted := NewRedisStore(client, uuid.New(), time.Hour)
	if _, err := restarted.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a new instance to start empty, got %v", err)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	s, mr, _ := newRedisStore(t)
	ctx := context.Background()

	created, _ := s.Create(ctx)
	s.AppendTurns(ctx, created.ID, models.ChatTurn{Content: "x"})

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys left, got %v", keys)
	}
}
