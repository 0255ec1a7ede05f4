package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gemini-playground/internal/models"
)

// CaptionPrompt is sent alongside every uploaded image.
const CaptionPrompt = "write a short, engaging and descriptive caption for this image"

type GeminiService struct {
	client      *genai.Client
	chatModel   *genai.GenerativeModel
	visionModel *genai.GenerativeModel
	embedModel  *genai.EmbeddingModel
	rateChan    chan struct{} // Token bucket
}

func NewGeminiService(
	apiKey string,
	chatModel string,
	visionModel string,
	embeddingModel string,
	concurrentReqs int,
) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	em := client.EmbeddingModel(embeddingModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	// Token bucket for concurrent requests
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:      client,
		chatModel:   client.GenerativeModel(chatModel),
		visionModel: client.GenerativeModel(visionModel),
		embedModel:  em,
		rateChan:    rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// StartChat opens a chat session seeded with the given history.
func (s *GeminiService) StartChat(history []models.ChatTurn) *genai.ChatSession {
	cs := s.chatModel.StartChat()
	cs.History = toContents(history)
	return cs
}

// SendMessage replays history into a fresh chat session and sends message.
func (s *GeminiService) SendMessage(ctx context.Context, history []models.ChatTurn, message string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := s.StartChat(history).SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("Gemini chat error: %w", err)
	}
	logFinish("chat", resp)

	return extractText(resp), nil
}

// SendMessageStream is SendMessage in streaming mode. onChunk is called for
// every non-empty fragment in arrival order; the full reply is returned.
func (s *GeminiService) SendMessageStream(ctx context.Context, history []models.ChatTurn, message string, onChunk func(string) error) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	it := s.StartChat(history).SendMessageStream(ctx, genai.Text(message))

	var reply strings.Builder
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("Gemini chat stream error: %w", err)
		}

		chunk := extractText(resp)
		if chunk == "" {
			continue
		}
		reply.WriteString(chunk)
		if err := onChunk(chunk); err != nil {
			return "", err
		}
	}

	return reply.String(), nil
}

// CaptionImage sends prompt and the raw image bytes to the vision model.
// mimeType must be image/jpeg or image/png.
func (s *GeminiService) CaptionImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := s.visionModel.GenerateContent(ctx, genai.Text(prompt), genai.ImageData(format, image))
	if err != nil {
		return "", fmt.Errorf("Gemini vision error: %w", err)
	}
	logFinish("vision", resp)

	return extractText(resp), nil
}

func (s *GeminiService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	resp, err := s.embedModel.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("Gemini embedding error: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("Gemini returned no embedding")
	}

	return resp.Embedding.Values, nil
}

func (s *GeminiService) AskQuestion(ctx context.Context, question string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := s.chatModel.GenerateContent(ctx, genai.Text(question))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	logFinish("ask", resp)

	return extractText(resp), nil
}

// Helper functions

func logFinish(op string, resp *genai.GenerateContentResponse) {
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini %s candidate %d stopped due to %s", op, i, cand.FinishReason)
		}
	}
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// toContents maps stored turns onto Gemini's "user"/"model" roles.
func toContents(history []models.ChatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}
	return contents
}
