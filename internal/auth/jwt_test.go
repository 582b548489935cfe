package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umar/staychat/internal/database"
	"github.com/umar/staychat/internal/models"
)

var secret = []byte("test-secret")

func TestJWTVerifier_RoundTrip(t *testing.T) {
	user := models.User{ID: "u1", Name: "Ada", ProfilePhoto: "p.png", Role: models.RoleHost}
	token, err := GenerateToken(user, secret, time.Hour)
	require.NoError(t, err)

	got, err := NewJWTVerifier(string(secret)).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	valid := models.User{ID: "u1", Name: "Ada", Role: models.RoleTraveler}
	expired, err := GenerateToken(valid, secret, -time.Minute)
	require.NoError(t, err)
	wrongSecret, err := GenerateToken(valid, []byte("other"), time.Hour)
	require.NoError(t, err)
	badRole, err := GenerateToken(models.User{ID: "u1", Role: "admin"}, secret, time.Hour)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1", Role: models.RoleHost}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: wrongSecret},
		{name: "invalid role", token: badRole},
		{name: "unsigned", token: noneAlg},
	}

	v := NewJWTVerifier(string(secret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, models.ErrUnauthenticated)
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	profiles := database.NewMemory()
	user := models.User{ID: "u1", Name: "Ada", Role: models.RoleTraveler}
	token, err := GenerateToken(user, secret, time.Hour)
	require.NoError(t, err)

	handler := JWTMiddleware(NewJWTVerifier(string(secret)), profiles)(MeHandler())

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"u1"`)

		cached, err := profiles.GetProfiles(req.Context(), []string{"u1"})
		require.NoError(t, err)
		require.Len(t, cached, 1)
		assert.Equal(t, "Ada", cached[0].Name)
	})

	t.Run("query token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me?token="+token, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
