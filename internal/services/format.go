package services

import (
	"strconv"
	"strings"

	"gemini-playground/internal/models"
)

const embeddingPreviewChars = 100

// FormatEmbedding renders a vector as "[v1, v2, ...]". This is the exact
// text offered for download.
func FormatEmbedding(values []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// EmbeddingPreview is the first 100 characters of the formatted embedding
// followed by an ellipsis.
func EmbeddingPreview(formatted string) string {
	r := []rune(formatted)
	if len(r) > embeddingPreviewChars {
		r = r[:embeddingPreviewChars]
	}
	return string(r) + "..."
}

// DisplayRole is the label a turn is rendered under.
func DisplayRole(role string) string {
	if role == "model" {
		return models.RoleAssistant
	}
	return role
}

// ChatTranscript renders history as "Role: text" blocks separated by a
// blank line.
func ChatTranscript(history []models.ChatTurn) string {
	var b strings.Builder
	for _, turn := range history {
		b.WriteString(capitalize(DisplayRole(turn.Role)))
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
