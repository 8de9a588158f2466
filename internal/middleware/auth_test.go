package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trackzero/chorenet/internal/middleware"
	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"github.com/trackzero/chorenet/internal/testutil"
)

func TestAPITokenAuth(t *testing.T) {
	database := testutil.NewTestDatabase(t)
	tokenRepo := repository.NewAPITokenRepository(database)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	tokens := []models.APIToken{
		{Name: "valid", TokenHash: repository.HashToken("valid-token"), Scope: models.TokenScopeAPI},
		{Name: "calendar", TokenHash: repository.HashToken("ical-token"), Scope: models.TokenScopeICal},
		{Name: "expired", TokenHash: repository.HashToken("expired-token"), Scope: models.TokenScopeAPI, ExpiresAt: &expired},
	}
	for _, token := range tokens {
		if _, err := tokenRepo.Create(ctx, token); err != nil {
			t.Fatalf("creating token %s: %v", token.Name, err)
		}
	}

	var seen models.APIToken
	handler := middleware.APITokenAuth(tokenRepo, models.TokenScopeAPI)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetToken(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name          string
		authorization string
		status        int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scope", "Bearer ical-token", http.StatusUnauthorized},
		{"expired", "Bearer expired-token", http.StatusUnauthorized},
		{"valid", "Bearer valid-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
			if tt.authorization != "" {
				request.Header.Set("Authorization", tt.authorization)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			if recorder.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, recorder.Code)
			}
		})
	}

	if seen.Name != "valid" {
		t.Errorf("expected the valid token in the request context, got '%s'", seen.Name)
	}
}
