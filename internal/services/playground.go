package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gemini-playground/internal/models"
	"gemini-playground/internal/session"
)

// Playground implements the four modes on top of a Model and a session
// store. Every handler, HTML or JSON, goes through it.
type Playground struct {
	model Model
	store session.Store
	chats sessionLocks
	now   func() time.Time
}

func NewPlayground(model Model, store session.Store) *Playground {
	return &Playground{
		model: model,
		store: store,
		chats: sessionLocks{locks: make(map[uuid.UUID]*sessionLock)},
		now:   time.Now,
	}
}

// sessionLocks hands out one mutex per session, dropped once nobody holds
// or waits on it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()

		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func required(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Fields: map[string]string{field: message}}
	}
	return nil
}

func (p *Playground) Session(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := p.store.Get(ctx, id)
	if err == session.ErrNotFound {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	return sess, err
}

func (p *Playground) SetUserName(ctx context.Context, id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if err := required("name", name, "Please enter your name"); err != nil {
		return err
	}
	return p.store.SetUserName(ctx, id, name)
}

// SendChat sends message with the session's history and records both turns
// once the model has replied. Nothing is recorded on failure.
func (p *Playground) SendChat(ctx context.Context, id uuid.UUID, message string) (string, []models.ChatTurn, error) {
	return p.chat(ctx, id, message, func(history []models.ChatTurn) (string, error) {
		return p.model.SendMessage(ctx, history, message)
	})
}

// StreamChat is SendChat with the reply delivered through onChunk as it
// arrives.
func (p *Playground) StreamChat(ctx context.Context, id uuid.UUID, message string, onChunk func(string) error) (string, []models.ChatTurn, error) {
	return p.chat(ctx, id, message, func(history []models.ChatTurn) (string, error) {
		return p.model.SendMessageStream(ctx, history, message, onChunk)
	})
}

func (p *Playground) chat(ctx context.Context, id uuid.UUID, message string, send func([]models.ChatTurn) (string, error)) (string, []models.ChatTurn, error) {
	if err := required("message", message, "Please type a message"); err != nil {
		return "", nil, err
	}

	// One exchange at a time per session, so each reply sees every earlier turn.
	unlock := p.chats.lock(id)
	defer unlock()

	sess, err := p.Session(ctx, id)
	if err != nil {
		return "", nil, err
	}

	userTurn := models.ChatTurn{Role: models.RoleUser, Content: message, CreatedAt: p.now()}

	reply, err := send(sess.History)
	if err != nil {
		return "", nil, err
	}

	replyTurn := models.ChatTurn{Role: models.RoleAssistant, Content: reply, CreatedAt: p.now()}
	if err := p.store.AppendTurns(ctx, id, userTurn, replyTurn); err != nil {
		return "", nil, err
	}

	history := append(sess.History, userTurn, replyTurn)
	return reply, history, nil
}

// Caption validates image, captions it with CaptionPrompt and keeps the
// caption for download.
func (p *Playground) Caption(ctx context.Context, id uuid.UUID, image []byte) (string, string, error) {
	mimeType, err := DetectImage(image)
	if err != nil {
		return "", "", err
	}

	caption, err := p.model.CaptionImage(ctx, CaptionPrompt, image, mimeType)
	if err != nil {
		return "", "", err
	}

	if err := p.store.SetResult(ctx, id, models.ResultCaption, caption); err != nil {
		return "", "", err
	}
	return caption, mimeType, nil
}

// Embed returns the embedding and its formatted text, which is also kept
// for download.
func (p *Playground) Embed(ctx context.Context, id uuid.UUID, text string) ([]float32, string, error) {
	if err := required("text", text, "Please enter some text to get embeddings."); err != nil {
		return nil, "", err
	}

	values, err := p.model.EmbedText(ctx, text)
	if err != nil {
		return nil, "", err
	}

	formatted := FormatEmbedding(values)
	if err := p.store.SetResult(ctx, id, models.ResultEmbedding, formatted); err != nil {
		return nil, "", err
	}
	return values, formatted, nil
}

func (p *Playground) Ask(ctx context.Context, id uuid.UUID, question string) (string, error) {
	if err := required("question", question, "Please type a question to get an answer."); err != nil {
		return "", err
	}

	answer, err := p.model.AskQuestion(ctx, question)
	if err != nil {
		return "", err
	}

	if err := p.store.SetResult(ctx, id, models.ResultAnswer, answer); err != nil {
		return "", err
	}
	return answer, nil
}

// Download returns the text for kind exactly as it was last rendered.
func (p *Playground) Download(ctx context.Context, id uuid.UUID, kind models.ResultKind) (string, error) {
	if !kind.Valid() {
		return "", &NotFoundError{Message: "Unknown download"}
	}

	sess, err := p.Session(ctx, id)
	if err != nil {
		return "", err
	}

	var text string
	if kind == models.ResultChat {
		text = ChatTranscript(sess.History)
	} else {
		text = sess.Result(kind)
	}

	if text == "" {
		return "", &NotFoundError{Message: "Nothing to download yet"}
	}
	return text, nil
}
