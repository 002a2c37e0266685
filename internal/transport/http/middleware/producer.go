package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// ProducerKeyHeader carries the shared key of internal event producers.
const ProducerKeyHeader = "X-Producer-Key"

// RequireProducerKey admits requests whose X-Producer-Key matches the bcrypt
// hash. With no hash configured the producer endpoints are closed.
func RequireProducerKey(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "producer endpoints disabled")
				return
			}
			key := r.Header.Get(ProducerKeyHeader)
			if key == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid producer key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
