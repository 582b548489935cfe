package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/umar/staychat/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// ProfileSink receives every verified identity so the participant profile
// cache stays current.
type ProfileSink interface {
	UpsertProfile(ctx context.Context, u models.User) error
}

func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// BearerToken extracts the token from an Authorization header, falling back
// to the token query parameter browsers use for WebSocket handshakes.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func JWTMiddleware(verifier Verifier, profiles ProfileSink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			user, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if profiles != nil {
				if err := profiles.UpsertProfile(r.Context(), user); err != nil {
					slog.Warn("failed to cache profile", "error", err, "user_id", user.ID)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
