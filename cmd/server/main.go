package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gemini-playground/internal/cache"
	"gemini-playground/internal/config"
	"gemini-playground/internal/database"
	"gemini-playground/internal/handlers"
	"gemini-playground/internal/middleware"
	"gemini-playground/internal/router"
	"gemini-playground/internal/services"
	"gemini-playground/internal/session"
	"gemini-playground/internal/telemetry"
	"gemini-playground/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Gemini AI Playground...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	closeLogs, err := telemetry.SetupLogging(cfg.LogDir)
	if err != nil {
		log.Fatalf("✗ Log setup failed: %v", err)
	}
	defer closeLogs()

	tracer, meter, shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.LogDir)
	if err != nil {
		log.Fatalf("✗ Telemetry setup failed: %v", err)
	}
	defer shutdownTelemetry()
	if cfg.LogDir != "" {
		log.Printf("✓ Logs, traces and metrics written to %s", cfg.LogDir)
	}

	// Redis keys are namespaced per process so nothing outlives a restart.
	instanceID := uuid.New()

	// ──── Step 2: Session Store & Response Cache ────
	var (
		store        session.Store
		cacheBackend cache.Backend
	)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClient.Close()

		store = session.NewRedisStore(redisClient, instanceID, cfg.SessionTTL)
		cacheBackend = cache.NewRedisBackend(redisClient, instanceID, cfg.CacheTTL)
		log.Printf("✓ Redis connected (instance %s)", instanceID)
	} else {
		memStore := session.NewMemoryStore(cfg.SessionTTL)
		defer memStore.Close()

		store = memStore
		cacheBackend = cache.NewMemoryBackend()
		log.Println("✓ In-memory session store and cache ready")
	}

	// ──── Step 3: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(
		cfg.GeminiAPIKey,
		cfg.GeminiChatModel,
		cfg.GeminiVisionModel,
		cfg.GeminiEmbeddingModel,
		cfg.GeminiConcurrentReqs,
	)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Printf("✓ Gemini client initialized (chat=%s vision=%s embedding=%s)",
		cfg.GeminiChatModel, cfg.GeminiVisionModel, cfg.GeminiEmbeddingModel)

	instrumented, err := services.NewInstrumentedModel(geminiService, tracer, meter)
	if err != nil {
		log.Fatalf("✗ Gemini instrumentation failed: %v", err)
	}
	model := services.NewCachedModel(instrumented, cache.New(cacheBackend))
	playground := services.NewPlayground(model, store)

	// ──── Step 4: Initialize Handlers ────
	sessions := middleware.NewSessions(store, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	pageHandler := handlers.NewPageHandler(playground, cfg.MaxUploadBytes)
	apiHandler := handlers.NewAPIHandler(playground, sessions, cfg.MaxUploadBytes)
	chatStreamer := websocket.NewChatStreamer(playground)

	apiLimiter := router.NewAPILimiter()
	defer apiLimiter.Stop()

	// ──── Step 5: Start HTTP Server ────
	r := router.New(sessions, pageHandler, apiHandler, chatStreamer, apiLimiter)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		close(idle)
	}()

	log.Printf("✓ Gemini AI Playground ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/ws/chat", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-idle
}
