package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
)

type contextKey string

const TokenContextKey contextKey = "token"

// APITokenAuth accepts a bearer token with the given scope.
func APITokenAuth(tokenRepo repository.APITokenRepository, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			tokenHash := repository.HashToken(tokenString)

			token, err := tokenRepo.FindByTokenHash(r.Context(), tokenHash)
			if err != nil || token.Scope != scope {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if token.ExpiresAt != nil && token.ExpiresAt.Before(time.Now()) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), TokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetToken(ctx context.Context) models.APIToken {
	token, _ := ctx.Value(TokenContextKey).(models.APIToken)
	return token
}
