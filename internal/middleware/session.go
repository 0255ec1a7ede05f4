package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gemini-playground/internal/models"
	"gemini-playground/internal/session"
)

type contextKey string

const SessionKey contextKey = "session"

const CookieName = "playground_session"

// Sessions binds each browser to a session through a signed cookie. The
// cookie holds an HS256 token whose "sid" claim is the session ID.
type Sessions struct {
	store  session.Store
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewSessions builds the session middleware. An empty secret is replaced by
// random bytes, so cookies stop validating after a restart.
func NewSessions(store session.Store, secret string, ttl time.Duration, secure bool) *Sessions {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("failed to generate session secret: %v", err))
		}
	}
	return &Sessions{store: store, secret: key, ttl: ttl, secure: secure}
}

// Sign creates the cookie token for a session ID.
func (s *Sessions) Sign(id uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sid": id.String(),
		"exp": time.Now().Add(s.ttl).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// parse returns the session ID carried by a cookie token.
func (s *Sessions) parse(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	sid, ok := claims["sid"].(string)
	if !ok {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}
	return uuid.Parse(sid)
}

// Middleware loads the caller's session, creating one on first contact, and
// attaches it to the request context.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.load(r)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			log.Printf("session lookup failed: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session store unavailable", r)
			return
		}

		if sess == nil {
			sess, err = s.store.Create(r.Context())
			if err != nil {
				log.Printf("session create failed: %v", err)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session store unavailable", r)
				return
			}
			if err := s.setCookie(w, sess.ID); err != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue session", r)
				return
			}
		}

		ctx := context.WithValue(r.Context(), SessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Sessions) load(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, session.ErrNotFound
	}

	id, err := s.parse(cookie.Value)
	if err != nil {
		return nil, session.ErrNotFound
	}

	return s.store.Get(r.Context(), id)
}

func (s *Sessions) setCookie(w http.ResponseWriter, id uuid.UUID) error {
	token, err := s.Sign(id)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// End discards the session and expires the cookie.
func (s *Sessions) End(w http.ResponseWriter, r *http.Request) error {
	if sess := GetSession(r.Context()); sess != nil {
		if err := s.store.Delete(r.Context(), sess.ID); err != nil {
			return err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetSession extracts the session from request context
func GetSession(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(SessionKey).(*models.Session)
	return sess
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}

// WithSession attaches sess to ctx, as Middleware does.
func WithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}
