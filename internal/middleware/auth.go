// Package middleware содержит HTTP middleware локального агента.
package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
)

// AgentKeyHeader - заголовок с ключом доступа к агенту.
const AgentKeyHeader = "X-Agent-Key"

// AuthMiddleware пропускает только запросы с правильным ключом агента.
type AuthMiddleware struct {
	digest  []byte
	enabled bool
}

// NewAuthMiddleware создаёт проверку ключа. Пустой ключ отключает проверку.
func NewAuthMiddleware(key string) *AuthMiddleware {
	if key == "" {
		return &AuthMiddleware{}
	}
	return &AuthMiddleware{
		digest:  sign([]byte(key)),
		enabled: true,
	}
}

// Enabled сообщает, включена ли проверка ключа.
func (a *AuthMiddleware) Enabled() bool {
	return a.enabled
}

// Middleware сравнивает заголовок X-Agent-Key с ключом агента.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get(AgentKeyHeader)
		if provided == "" || !hmac.Equal(sign([]byte(provided)), a.digest) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sign приводит ключи к одной длине, чтобы сравнение не зависело от длины.
func sign(key []byte) []byte {
	mac := hmac.New(sha256.New, []byte("shipper-agent"))
	mac.Write(key)
	return mac.Sum(nil)
}
