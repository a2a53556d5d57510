package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func signTestToken(t *testing.T, userID, role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	assert.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value("userID").(string)
		role, _ := r.Context().Value("role").(string)
		w.Write([]byte(userID + ":" + role))
	})

	t.Run("valid token populates identity", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/account", nil)
		r.Header.Set("Authorization", "Bearer "+signTestToken(t, "alice", "user"))
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice:user", w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/account", nil)
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/account", nil)
		r.Header.Set("Authorization", "token abc")
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another key", func(t *testing.T) {
		viper.Set("jwt.secret_key", "other-secret")
		forged := signTestToken(t, "alice", "admin")
		viper.Set("jwt.secret_key", "test-secret")

		r := httptest.NewRequest("GET", "/account", nil)
		r.Header.Set("Authorization", "Bearer "+forged)
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminOnly(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	protected := AuthMiddleware(AdminOnly(next))

	t.Run("admin role passes", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/admin/kyc/u1/approve", nil)
		r.Header.Set("Authorization", "Bearer "+signTestToken(t, "root", "admin"))
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("user role is rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/admin/kyc/u1/approve", nil)
		r.Header.Set("Authorization", "Bearer "+signTestToken(t, "alice", "user"))
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
