package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"gemini-playground/internal/models"
)

var ErrNotFound = errors.New("session not found")

// Store keeps per-browser session state. History is append-only: turns are
// only ever added at the end, in call order.
type Store interface {
	Create(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SetUserName(ctx context.Context, id uuid.UUID, name string) error
	AppendTurns(ctx context.Context, id uuid.UUID, turns ...models.ChatTurn) error
	SetResult(ctx context.Context, id uuid.UUID, kind models.ResultKind, text string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
