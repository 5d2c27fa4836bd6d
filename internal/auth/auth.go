package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"imagine-chat/internal/config"
	"imagine-chat/internal/logger"
	"imagine-chat/internal/repository/db"
	"imagine-chat/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const ProfileContextKey contextKey = "profile_id"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRequest wraps input that failed validation
	ErrInvalidRequest = errors.New("invalid request")
)

// Claims carries the profile id in the subject
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Service signs profiles up, logs them in and guards protected routes
type Service struct {
	db         db.Database
	secret     []byte
	expiration time.Duration
	validator  *validation.AuthRequestValidator
	now        func() time.Time
	log        *logrus.Entry
}

// NewService creates a new auth Service
func NewService(database db.Database, cfg config.AuthConfig) *Service {
	expiration := cfg.TokenExpiration
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &Service{
		db:         database,
		secret:     cfg.JWTSecret,
		expiration: expiration,
		validator:  validation.NewAuthRequestValidator(),
		now:        time.Now,
		log:        logger.Component("auth"),
	}
}

// Register creates a profile and returns it with a signed token
func (s *Service) Register(ctx context.Context, email, displayName, password string) (*db.Profile, string, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if err := s.validator.ValidateRegisterRequest(email, displayName, password); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("error hashing password: %w", err)
	}

	profile, err := s.db.CreateProfile(ctx, email, displayName, string(hash))
	if err != nil {
		return nil, "", err
	}

	token, err := s.GenerateToken(profile)
	if err != nil {
		return nil, "", err
	}

	s.log.WithField("profile_id", profile.ID).Info("Profile registered")
	return profile, token, nil
}

// Login verifies the credentials and returns the profile with a signed token
func (s *Service) Login(ctx context.Context, email, password string) (*db.Profile, string, error) {
	email = normalizeEmail(email)
	if err := s.validator.ValidateLoginRequest(email, password); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	profile, err := s.db.GetProfileByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.log.Info("Login failed: profile not found")
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		s.log.WithField("profile_id", profile.ID).Info("Login failed: invalid password")
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.GenerateToken(profile)
	if err != nil {
		return nil, "", err
	}

	s.log.WithField("profile_id", profile.ID).Info("Profile logged in")
	return profile, token, nil
}

// GenerateToken signs a token whose subject is the profile id
func (s *Service) GenerateToken(profile *db.Profile) (string, error) {
	now := s.now()
	claims := Claims{
		Email: profile.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses an HS256 token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// Middleware rejects requests without a valid bearer token for an active
// profile and stores the profile id in the request context
func (s *Service) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			sendError(w, http.StatusUnauthorized, "Missing authorization header", nil)
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			sendError(w, http.StatusUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := s.ValidateToken(bearerToken[1])
		if err != nil {
			sendError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}

		// deleted profiles keep valid tokens until expiry
		if _, err := s.db.GetProfile(r.Context(), claims.Subject); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				sendError(w, http.StatusUnauthorized, "Profile not found", nil)
				return
			}
			s.log.WithError(err).Error("Error loading profile")
			sendError(w, http.StatusInternalServerError, "Error loading profile", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithProfileID(r.Context(), claims.Subject)))
	}
}

// WithProfileID returns a context carrying the authenticated profile id
func WithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, ProfileContextKey, profileID)
}

// ProfileID returns the authenticated profile id
func ProfileID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ProfileContextKey).(string)
	return id, ok && id != ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}
