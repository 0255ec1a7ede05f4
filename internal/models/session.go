package models

import (
	"time"

	"github.com/google/uuid"
)

// ResultKind names a downloadable artifact kept on the session.
type ResultKind string

const (
	ResultChat      ResultKind = "chat"
	ResultCaption   ResultKind = "caption"
	ResultEmbedding ResultKind = "embedding"
	ResultAnswer    ResultKind = "answer"
)

// Valid reports whether k is one of the known result kinds.
func (k ResultKind) Valid() bool {
	switch k {
	case ResultChat, ResultCaption, ResultEmbedding, ResultAnswer:
		return true
	}
	return false
}

// FileName is the attachment name offered for the download.
func (k ResultKind) FileName() string {
	switch k {
	case ResultChat:
		return "gemini_chat_history.txt"
	case ResultCaption:
		return "image_caption.txt"
	case ResultEmbedding:
		return "text_embedding.txt"
	case ResultAnswer:
		return "gemini_answer.txt"
	}
	return "download.txt"
}

type Session struct {
	ID        uuid.UUID             `json:"id"`
	UserName  string                `json:"user_name"`
	History   []ChatTurn            `json:"history"`
	Results   map[ResultKind]string `json:"-"`
	CreatedAt time.Time             `json:"created_at"`
}

// Result returns the last rendered text for kind, or "" if none.
func (s *Session) Result(kind ResultKind) string {
	if s.Results == nil {
		return ""
	}
	return s.Results[kind]
}
