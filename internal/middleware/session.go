// Package middleware содержит HTTP middleware для сервиса проверки кодов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const clientIDKey contextKey = "clientID"

const (
	sessionCookieName = "client_token"
	sessionCookieTTL  = 365 * 24 * time.Hour
)

// SessionMiddleware выдаёт анонимные клиентские сессии по подписанному cookie.
// В отличие от авторизации, запрос никогда не отклоняется: при отсутствии
// или повреждении cookie клиент просто получает новую сессию.
type SessionMiddleware struct {
	secretKey []byte
}

// NewSessionMiddleware создаёт новый экземпляр SessionMiddleware с указанным секретным ключом.
func NewSessionMiddleware(secret string) *SessionMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &SessionMiddleware{
		secretKey: key,
	}
}

// Middleware извлекает идентификатор клиента из cookie и добавляет его в
// контекст запроса. Если cookie нет или подпись не сходится, выдаёт новый
// идентификатор и устанавливает cookie в ответе.
func (m *SessionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := ""

		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			if id, ok := m.parseCookie(cookie.Value); ok {
				clientID = id
			}
		}

		if clientID == "" {
			clientID = uuid.NewString()
			m.SetSessionCookie(w, clientID)
		}

		ctx := context.WithValue(r.Context(), clientIDKey, clientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie устанавливает cookie сессии для указанного идентификатора клиента.
func (m *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, clientID string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    m.signClientID(clientID),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (m *SessionMiddleware) signClientID(clientID string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(clientID))
	signature := mac.Sum(nil)
	return clientID + "." + hex.EncodeToString(signature)
}

func (m *SessionMiddleware) parseCookie(cookieValue string) (string, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return "", false
	}

	clientID := parts[0]
	signature := parts[1]

	if clientID == "" {
		return "", false
	}

	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(clientID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	return clientID, true
}

// GetClientIDFromContext извлекает идентификатор клиента из контекста запроса.
func GetClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDKey).(string)
	return id, ok
}
