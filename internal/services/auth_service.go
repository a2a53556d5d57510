package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password  string `json:"password" validate:"required,min=6" example:"password123"`   // User password
	FirstName string `json:"firstName" validate:"required,min=2" example:"John"`         // User first name
	LastName  string `json:"lastName" validate:"required,min=2" example:"Doe"`           // User last name
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  User   `json:"user"`                                                    // User information
}

// User represents user information
// @Description User structure
type User struct {
	ID        string `json:"id"`                               // User ID
	Email     string `json:"email" example:"user@example.com"` // User email
	FirstName string `json:"firstName" example:"John"`         // User first name
	LastName  string `json:"lastName" example:"Doe"`           // User last name
	Role      string `json:"role" example:"user"`              // user or admin
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user with email, password, and name
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 409 {string} string "Email already exists"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	userID := uuid.New().String()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO users (id, email, password, first_name, last_name, role) VALUES ($1, $2, $3, $4, $5, 'user')",
		userID, strings.ToLower(req.Email), hashedPassword, req.FirstName, req.LastName)
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	// Every user starts with an empty ledger account.
	_, err = tx.Exec(`INSERT INTO accounts
		(id, user_id, balance, on_hold_balance, invested, unclaimed_profit, total_deposits,
		 agent_level, last_reward_date, kyc_verified, is_fee_exempt, is_frozen, is_banned, version, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, 0, 0, '', false, false, false, false, 1, NOW())`,
		uuid.New().String(), userID)
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %s, Email: %s", userID, req.Email)

	token, err := generateJWT(userID, "user")
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", userID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User:  User{ID: userID, Email: req.Email, FirstName: req.FirstName, LastName: req.LastName, Role: "user"},
	}

	log.Printf("[AUTH] Registration successful for user %s", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user User
	var hashedPassword string
	err := s.db.QueryRow("SELECT id, email, first_name, last_name, role, password FROM users WHERE email = $1",
		strings.ToLower(req.Email)).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Role, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(user.ID, user.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User:  user,
	}

	log.Printf("[AUTH] Login successful for user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetUser retrieves the authenticated user's profile
// @Summary Get user profile
// @Description Get authenticated user's profile information
// @Tags auth
// @Produce json
// @Success 200 {object} User "User profile"
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/me [get]
func (s *AuthService) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID")
	if userID == nil {
		log.Printf("[AUTH] Unauthorized profile request - no user ID in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user User
	err := s.db.QueryRow("SELECT id, email, first_name, last_name, role FROM users WHERE id = $1",
		userID).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("[AUTH] User not found for ID: %v", userID)
			http.Error(w, "User not found", http.StatusNotFound)
		} else {
			log.Printf("[AUTH] Failed to fetch user details for ID %v: %v", userID, err)
			http.Error(w, "Failed to fetch user details", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func generateJWT(userID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
