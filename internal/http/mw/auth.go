// Package mw contains HTTP middleware for the scraper API.
package mw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
)

// TokenClaims is the JWT payload accepted by Auth.
type TokenClaims struct {
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// UserClaims identifies the caller of an authenticated request.
type UserClaims struct {
	UserID string // sub claim
	Name   string
	Scopes []string
}

// HasScope checks if the caller has a specific scope.
// Supports wildcard patterns with trailing asterisk (e.g., "scrape_*").
func (c *UserClaims) HasScope(pattern string) bool {
	if c == nil || len(c.Scopes) == 0 {
		return false
	}

	if strings.HasSuffix(pattern, "_*") {
		prefix := strings.TrimSuffix(pattern, "*")
		for _, s := range c.Scopes {
			if strings.HasPrefix(s, prefix) {
				return true
			}
		}
		return false
	}

	for _, s := range c.Scopes {
		if s == pattern || s == "*" {
			return true
		}
	}
	return false
}

// GetUserClaims retrieves user claims from context.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, ok := ctx.Value(UserClaimsKey).(*UserClaims)
	if !ok {
		return nil
	}
	return claims
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Secret is the HS256 signing key.
	Secret string

	// RequiredScope must be present on every token when set.
	RequiredScope string

	Logger *slog.Logger
}

// Auth returns middleware that requires a valid HS256 bearer token.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := []byte(cfg.Secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "expected bearer token")
				return
			}

			claims, err := ParseToken(token, key)
			if err != nil {
				logger.Debug("JWT validation failed", "error", err)
				if errors.Is(err, ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, "token expired")
					return
				}
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if cfg.RequiredScope != "" && !claims.HasScope(cfg.RequiredScope) {
				writeError(w, http.StatusForbidden, "missing scope "+cfg.RequiredScope)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseToken validates an HS256 token signed with key.
func ParseToken(tokenString string, key []byte) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tc, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if tc.Subject == "" {
		return nil, ErrMissingClaims
	}

	return &UserClaims{UserID: tc.Subject, Name: tc.Name, Scopes: tc.Scopes}, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"title":  http.StatusText(status),
		"detail": message,
	})
}

// Errors
var (
	ErrInvalidToken  = &AuthError{Message: "invalid token"}
	ErrTokenExpired  = &AuthError{Message: "token expired"}
	ErrMissingClaims = &AuthError{Message: "missing required claims"}
)

// AuthError represents an authentication error.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
