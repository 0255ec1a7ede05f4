package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gemini-playground/internal/middleware"
	"gemini-playground/internal/models"
	"gemini-playground/internal/services"
)

const (
	writeWait = 10 * time.Second

	// maxMessageSize caps a single client frame.
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header and those whose Origin
// host matches the request host. The session cookie authenticates the socket,
// so cross-site pages must not be able to open one.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

type chatService interface {
	StreamChat(ctx context.Context, id uuid.UUID, message string, onChunk func(string) error) (string, []models.ChatTurn, error)
}

// ChatStreamer relays chat replies to the browser fragment by fragment.
type ChatStreamer struct {
	playground chatService
}

func NewChatStreamer(playground chatService) *ChatStreamer {
	return &ChatStreamer{playground: playground}
}

func (s *ChatStreamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	log.Printf("WebSocket connected: session %s", sess.ID)

	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read failed: session %s: %v", sess.ID, err)
			}
			break
		}

		if err := s.stream(r.Context(), conn, sess.ID, req.Message); err != nil {
			log.Printf("WebSocket write failed: session %s: %v", sess.ID, err)
			break
		}
	}

	log.Printf("WebSocket disconnected: session %s", sess.ID)
}

// stream runs one chat exchange. The returned error is a socket failure;
// model failures are reported to the client as an "error" frame.
func (s *ChatStreamer) stream(ctx context.Context, conn *websocket.Conn, id uuid.UUID, message string) error {
	sent := 0
	reply, _, err := s.playground.StreamChat(ctx, id, message, func(chunk string) error {
		sent++
		return send(conn, models.WSMessage{
			Type:    "partial_content",
			Payload: models.PartialContent{Chunk: chunk, TotalChunksSent: sent},
		})
	})
	if err != nil {
		code := "AI_ERROR"
		var vErr *services.ValidationError
		if errors.As(err, &vErr) {
			code = "VALIDATION_ERROR"
		} else {
			log.Printf("Gemini stream failed: session %s: %v", id, err)
		}
		return send(conn, models.WSMessage{
			Type:    "error",
			Payload: models.ErrorEvent{ErrorCode: code, ErrorMessage: err.Error()},
		})
	}

	return send(conn, models.WSMessage{
		Type:    "completed",
		Payload: models.CompletedEvent{Reply: reply},
	})
}

func send(conn *websocket.Conn, msg models.WSMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
