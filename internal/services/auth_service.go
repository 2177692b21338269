package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/trektally/backend/internal/models"
)

// AuthService handles registration, login and logout.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=80" example:"Asha Rawat"`
	Email    string `json:"email" validate:"required,email" example:"asha@example.com"`
	Phone    string `json:"phone" validate:"required" example:"+919812345678"`
	UPIID    string `json:"upiId" validate:"omitempty,max=80" example:"asha@upi"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"asha@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		slog.Error("password hashing failed", "error", err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	user := models.User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     strings.ToLower(req.Email),
		Phone:     req.Phone,
		UPIID:     req.UPIID,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(r.Context(),
		`INSERT INTO users (id, name, email, phone, upi_id, password, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Name, user.Email, user.Phone, user.UPIID, hashedPassword, user.CreatedAt)
	if err != nil {
		slog.Warn("user creation failed", "email", user.Email, "error", err)
		SendErrorResponse(w, "Email already exists", http.StatusConflict, nil)
		return
	}

	token, err := generateJWT(user.ID)
	if err != nil {
		slog.Error("jwt generation failed", "user_id", user.ID, "error", err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	slog.Info("user registered", "user_id", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// Login handles user authentication
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user models.User
	var hashedPassword string
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, name, email, phone, upi_id, password, created_at FROM users WHERE email = $1`,
		strings.ToLower(req.Email)).
		Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.UPIID, &hashedPassword, &user.CreatedAt)
	if err != nil {
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		slog.Warn("invalid password", "email", user.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(user.ID)
	if err != nil {
		slog.Error("jwt generation failed", "user_id", user.ID, "error", err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	slog.Info("login successful", "user_id", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
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
				slog.Warn("failed to blacklist token", "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetAccount retrieves the authenticated user's account
// @Summary Get account details
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/account [get]
func (s *AuthService) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, name, email, phone, upi_id, created_at FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.UPIID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		SendError(w, models.NewError(models.KindNotFound, "User not found"))
		return
	}
	if err != nil {
		SendError(w, models.WrapError(models.KindStore, "user lookup failed", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

func loadArgonParams() argonParams {
	viper.SetDefault("argon2.time", 3)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
	return argonParams{
		time:    uint32(viper.GetInt("argon2.time")),
		memory:  uint32(viper.GetInt("argon2.memory")),
		threads: uint8(viper.GetInt("argon2.threads")),
		keyLen:  uint32(viper.GetInt("argon2.key_length")),
		saltLen: viper.GetInt("argon2.salt_length"),
	}
}

func generateJWT(userID string) (string, error) {
	viper.SetDefault("jwt.expiry_hours", 72)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	p := loadArgonParams()

	salt := make([]byte, p.saltLen)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
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

	p := loadArgonParams()
	computedHash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
