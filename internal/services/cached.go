package services

import (
	"context"
	"encoding/json"

	"gemini-playground/internal/cache"
	"gemini-playground/internal/models"
)

// Model is the set of remote operations the handlers depend on.
type Model interface {
	SendMessage(ctx context.Context, history []models.ChatTurn, message string) (string, error)
	SendMessageStream(ctx context.Context, history []models.ChatTurn, message string, onChunk func(string) error) (string, error)
	CaptionImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	AskQuestion(ctx context.Context, question string) (string, error)
}

var _ Model = (*GeminiService)(nil)

// CachedModel memoizes the stateless operations of a Model. Chat calls pass
// straight through since their output depends on the session's history.
type CachedModel struct {
	Model
	cache *cache.Cache
}

func NewCachedModel(m Model, c *cache.Cache) *CachedModel {
	return &CachedModel{Model: m, cache: c}
}

func (m *CachedModel) CaptionImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	key := cache.Key("caption", []byte(prompt), []byte(mimeType), image)
	val, err := m.cache.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		caption, err := m.Model.CaptionImage(ctx, prompt, image, mimeType)
		return []byte(caption), err
	})
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (m *CachedModel) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key("embed", []byte(text))
	val, err := m.cache.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		values, err := m.Model.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(values)
	})
	if err != nil {
		return nil, err
	}

	var values []float32
	if err := json.Unmarshal(val, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (m *CachedModel) AskQuestion(ctx context.Context, question string) (string, error) {
	key := cache.Key("ask", []byte(question))
	val, err := m.cache.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		answer, err := m.Model.AskQuestion(ctx, question)
		return []byte(answer), err
	})
	if err != nil {
		return "", err
	}
	return string(val), nil
}
