package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"gemini-playground/internal/models"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(time.Hour)
	t.Cleanup(s.Close)
	return s
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID || got.UserName != "" || len(got.History) != 0 {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestMemoryStore_HistoryIsOrderedAndAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, _ := s.Create(ctx)

	for i := 0; i < 5; i++ {
		err := s.AppendTurns(ctx, sess.ID,
			models.ChatTurn{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)},
			models.ChatTurn{Role: models.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, _ := s.Get(ctx, sess.ID)
	if len(got.History) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(got.History))
	}
	for i := 0; i < 5; i++ {
		if got.History[2*i].Content != fmt.Sprintf("q%d", i) || got.History[2*i+1].Content != fmt.Sprintf("a%d", i) {
			t.Fatalf("history out of order at %d: %+v", i, got.History)
		}
	}

	// Mutating a snapshot must not leak into the store.
	got.History[0].Content = "tampered"
	got.History = got.History[:1]

	again, _ := s.Get(ctx, sess.ID)
	if len(again.History) != 10 || again.History[0].Content != "q0" {
		t.Fatalf("stored history was mutated through a snapshot")
	}
}

func TestMemoryStore_ConcurrentAppendsKeepPairs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, _ := s.Create(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendTurns(ctx, sess.ID,
				models.ChatTurn{Role: models.RoleUser, Content: fmt.Sprint(i)},
				models.ChatTurn{Role: models.RoleAssistant, Content: fmt.Sprint(i)},
			)
		}(i)
	}
	wg.Wait()

	got, _ := s.Get(ctx, sess.ID)
	if len(got.History) != 40 {
		t.Fatalf("expected 40 turns, got %d", len(got.History))
	}
	for i := 0; i < len(got.History); i += 2 {
		u, a := got.History[i], got.History[i+1]
		if u.Role != models.RoleUser || a.Role != models.RoleAssistant || u.Content != a.Content {
			t.Fatalf("turn pair split at %d: %+v %+v", i, u, a)
		}
	}
}

func TestMemoryStore_UserNameAndResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, _ := s.Create(ctx)

	if err := s.SetUserName(ctx, sess.ID, "Ada"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	if err := s.SetResult(ctx, sess.ID, models.ResultAnswer, "42"); err != nil {
		t.Fatalf("set result: %v", err)
	}

	got, _ := s.Get(ctx, sess.ID)
	if got.UserName != "Ada" {
		t.Errorf("expected name Ada, got %q", got.UserName)
	}
	if got.Result(models.ResultAnswer) != "42" {
		t.Errorf("expected answer 42, got %q", got.Result(models.ResultAnswer))
	}
	if got.Result(models.ResultCaption) != "" {
		t.Errorf("expected empty caption result")
	}
}

func TestMemoryStore_ExpiryAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	sess, _ := s.Create(ctx)

	now = now.Add(2 * time.Hour)
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	if err := s.AppendTurns(ctx, sess.ID, models.ChatTurn{Role: models.RoleUser}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected append to expired session to fail, got %v", err)
	}

	other, _ := s.Create(ctx)
	s.Delete(ctx, other.ID)
	if _, err := s.Get(ctx, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}
