package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"gemini-playground/internal/handlers"
	"gemini-playground/internal/middleware"
	"gemini-playground/internal/models"
	"gemini-playground/internal/websocket"
)

func New(
	sessions *middleware.Sessions,
	pageHandler *handlers.PageHandler,
	apiHandler *handlers.APIHandler,
	chatStreamer *websocket.ChatStreamer,
	apiLimiter *middleware.RateLimiter,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/static/*", handlers.Static())

	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)

		// ──── UI Shell ────
		r.Get("/", pageHandler.Index)
		r.Post("/name", pageHandler.SetName)
		r.Post("/session/end", pageHandler.EndSession(sessions))

		r.Route("/chat", func(r chi.Router) {
			r.Get("/", pageHandler.ChatPage)
			r.Post("/", pageHandler.ChatSend)
			r.Get("/download", pageHandler.Download(models.ResultChat))
		})

		r.Route("/caption", func(r chi.Router) {
			r.Get("/", pageHandler.CaptionPage)
			r.Post("/", pageHandler.CaptionGenerate)
			r.Get("/download", pageHandler.Download(models.ResultCaption))
		})

		r.Route("/embed", func(r chi.Router) {
			r.Get("/", pageHandler.EmbedPage)
			r.Post("/", pageHandler.EmbedGenerate)
			r.Get("/download", pageHandler.Download(models.ResultEmbedding))
		})

		r.Route("/ask", func(r chi.Router) {
			r.Get("/", pageHandler.AskPage)
			r.Post("/", pageHandler.AskGenerate)
			r.Get("/download", pageHandler.Download(models.ResultAnswer))
		})

		// ──── WebSocket ────
		r.Get("/ws/chat", chatStreamer.HandleWebSocket)
	})

	// ──── JSON API ────
	// Rate limiting runs before the session middleware so rejected requests
	// never create a session.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter.Middleware)
		r.Use(sessions.Middleware)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", apiHandler.GetSession)
			r.Put("/name", apiHandler.SetUserName)
			r.Delete("/", apiHandler.EndSession)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/history", apiHandler.ChatHistory)
			r.Post("/messages", apiHandler.SendMessage)
		})

		r.Post("/caption", apiHandler.Caption)
		r.Post("/embeddings", apiHandler.Embed)
		r.Post("/ask", apiHandler.Ask)
		r.Get("/downloads/{kind}", apiHandler.Download)
	})

	return r
}

// NewAPILimiter is the per-IP limiter applied to /api/v1.
func NewAPILimiter() *middleware.RateLimiter {
	return middleware.NewRateLimiter(60, time.Minute)
}
