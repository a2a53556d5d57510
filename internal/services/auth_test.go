package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	service := NewAuthService(db, nil)

	t.Run("successful registration creates user and ledger account", func(t *testing.T) {
		req := RegisterRequest{
			Email:     "test@example.com",
			Password:  "password123",
			FirstName: "John",
			LastName:  "Doe",
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), req.Email, sqlmock.AnyArg(), req.FirstName, req.LastName).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.User.Email)
		assert.Equal(t, "user", response.User.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		req := RegisterRequest{
			Email:     "taken@example.com",
			Password:  "password123",
			FirstName: "John",
			LastName:  "Doe",
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{Email: "not-an-email", Password: "x"})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	service := NewAuthService(db, nil)

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, first_name, last_name, role, password FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role", "password"}).
				AddRow("u1", "test@example.com", "John", "Doe", "user", hashedPassword))

		req := LoginRequest{
			Email:    "test@example.com",
			Password: "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "user", response.User.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, first_name, last_name, role, password FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role", "password"}).
				AddRow("u1", "test@example.com", "John", "Doe", "user", hashedPassword))

		body, _ := json.Marshal(LoginRequest{Email: "test@example.com", Password: "wrongpass"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, first_name, last_name, role, password FROM users").
			WithArgs("nonexistent@example.com").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(LoginRequest{Email: "nonexistent@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_GetUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	t.Run("returns the authenticated profile", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, first_name, last_name, role FROM users").
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role"}).
				AddRow("u1", "test@example.com", "John", "Doe", "admin"))

		r := httptest.NewRequest("GET", "/auth/me", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", "u1"))
		w := httptest.NewRecorder()

		service.GetUser(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var user User
		json.Unmarshal(w.Body.Bytes(), &user)
		assert.Equal(t, "admin", user.Role)
	})

	t.Run("missing context user", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/auth/me", nil)
		w := httptest.NewRecorder()

		service.GetUser(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	token, err := generateJWT("u1", "admin")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}
