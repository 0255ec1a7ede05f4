package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gemini-playground/internal/models"
)

type entry struct {
	session   models.Session
	expiresAt time.Time
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	ttl      time.Duration
	stopChan chan struct{}
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[uuid.UUID]*entry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}

	// Cleanup goroutine
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()

	return s
}

func (s *MemoryStore) Close() {
	close(s.stopChan)
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.sessions {
		if now.After(e.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// live returns the entry for id and extends its lifetime. Caller holds mu.
func (s *MemoryStore) live(id uuid.UUID) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if now.After(e.expiresAt) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	e.expiresAt = now.Add(s.ttl)
	return e, nil
}

func (s *MemoryStore) Create(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := &entry{
		session: models.Session{
			ID:        uuid.New(),
			History:   []models.ChatTurn{},
			Results:   make(map[models.ResultKind]string),
			CreatedAt: now,
		},
		expiresAt: now.Add(s.ttl),
	}
	s.sessions[e.session.ID] = e

	return snapshot(&e.session), nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return snapshot(&e.session), nil
}

func (s *MemoryStore) SetUserName(ctx context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	e.session.UserName = name
	return nil
}

func (s *MemoryStore) AppendTurns(ctx context.Context, id uuid.UUID, turns ...models.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	e.session.History = append(e.session.History, turns...)
	return nil
}

func (s *MemoryStore) SetResult(ctx context.Context, id uuid.UUID, kind models.ResultKind, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	e.session.Results[kind] = text
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// snapshot copies a session so callers never alias the stored history.
func snapshot(src *models.Session) *models.Session {
	dst := *src
	dst.History = make([]models.ChatTurn, len(src.History))
	copy(dst.History, src.History)
	dst.Results = make(map[models.ResultKind]string, len(src.Results))
	for k, v := range src.Results {
		dst.Results[k] = v
	}
	return &dst
}
