package middleware

import (
	"log/slog"
	"net/http"
)

// RequireRole admits requests whose actor holds one of roles. It runs behind
// Auth; a request without an actor is unauthorized.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				slog.WarnContext(r.Context(), "role denied",
					"user_id", actor.UserID, "role", actor.Role, "path", r.URL.Path)
				writeJSONError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
