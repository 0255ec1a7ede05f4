package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gemini-playground/internal/models"
	"gemini-playground/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

// handleServiceError maps playground errors to JSON responses. Anything
// untyped came from Gemini and is reported as AI_ERROR with its message.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr  *services.ValidationError
		nfErr *services.NotFoundError
		ufErr *services.UnsupportedFormatError
		mbErr *http.MaxBytesError
	)

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", vErr.Fields, r))
	case errors.As(err, &nfErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", nfErr.Message, r))
	case errors.As(err, &ufErr):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", ufErr.Message, r))
	case errors.As(err, &mbErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "Upload exceeds the size limit", r))
	default:
		log.Printf("Gemini request failed: %v", err)
		writeJSON(w, http.StatusBadGateway, errorResp("AI_ERROR", err.Error(), r))
	}
}

// userMessage turns err into the inline text shown on HTML views.
func userMessage(err error) (warning, failure string) {
	var (
		vErr  *services.ValidationError
		nfErr *services.NotFoundError
		ufErr *services.UnsupportedFormatError
		mbErr *http.MaxBytesError
	)

	switch {
	case errors.As(err, &vErr):
		for _, msg := range vErr.Fields {
			return msg, ""
		}
		return "Please check your input.", ""
	case errors.As(err, &nfErr):
		return nfErr.Message, ""
	case errors.As(err, &ufErr):
		return ufErr.Message, ""
	case errors.As(err, &mbErr):
		return "That image is too large.", ""
	default:
		log.Printf("Gemini request failed: %v", err)
		return "", err.Error()
	}
}
