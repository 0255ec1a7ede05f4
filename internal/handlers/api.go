package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gemini-playground/internal/middleware"
	"gemini-playground/internal/models"
	"gemini-playground/internal/services"
)

// APIHandler exposes the playground as JSON under /api/v1.
type APIHandler struct {
	playground     playground
	sessions       *middleware.Sessions
	maxUploadBytes int64
}

func NewAPIHandler(p playground, sessions *middleware.Sessions, maxUploadBytes int64) *APIHandler {
	return &APIHandler{playground: p, sessions: sessions, maxUploadBytes: maxUploadBytes}
}

func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.playground.Session(r.Context(), sessionID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *APIHandler) SetUserName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.playground.SetUserName(r.Context(), sessionID(r), req.Name); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, " + req.Name + "! Enjoy your Gemini AI experience."})
}

func (h *APIHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(w, r); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to end session", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended"})
}

func (h *APIHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := h.playground.Session(r.Context(), sessionID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": sess.History})
}

func (h *APIHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	reply, history, err := h.playground.SendChat(r.Context(), sessionID(r), req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply, History: history})
}

func (h *APIHandler) Caption(w http.ResponseWriter, r *http.Request) {
	image, err := readUpload(w, r, "image", h.maxUploadBytes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	caption, mimeType, err := h.playground.Caption(r.Context(), sessionID(r), image)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CaptionResponse{Caption: caption, MimeType: mimeType})
}

func (h *APIHandler) Embed(w http.ResponseWriter, r *http.Request) {
	var req models.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	values, formatted, err := h.playground.Embed(r.Context(), sessionID(r), req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.EmbedResponse{
		Embedding:  values,
		Dimensions: len(values),
		Preview:    services.EmbeddingPreview(formatted),
	})
}

func (h *APIHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	answer, err := h.playground.Ask(r.Context(), sessionID(r), req.Question)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AskResponse{Answer: answer})
}

func (h *APIHandler) Download(w http.ResponseWriter, r *http.Request) {
	kind := models.ResultKind(chi.URLParam(r, "kind"))

	text, err := h.playground.Download(r.Context(), sessionID(r), kind)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeAttachment(w, kind, text)
}
