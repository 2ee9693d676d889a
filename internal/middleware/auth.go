// Package middleware provides authentication, logging, tracing, metrics and
// rate limiting middleware for the application.
package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"confessions/internal/config"
	"confessions/internal/identity"
	"confessions/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

var errMissingToken = errors.New("authorization header required")

// IssueToken signs an HS256 access token for u. Tokens are normally minted
// by the identity provider; this is used by tooling and tests.
func IssueToken(u identity.User, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"name": u.DisplayName,
		"role": u.Role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenString and returns the identity it carries.
func ParseToken(tokenString, secret string) (*identity.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	// subject claim per RFC 7519
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, errors.New("invalid token structure - missing subject")
	}

	u := &identity.User{ID: sub, Role: identity.RoleMember}
	if name, ok := claims["name"].(string); ok {
		u.DisplayName = name
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		u.Role = role
	}
	return u, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func secret() string {
	if cfg == nil {
		return ""
	}
	return cfg.JWTSecret
}

// attach stores u on Fiber locals and on the request context so the service
// layer's identity.Provider and the logger can see it.
func attach(c *fiber.Ctx, u *identity.User) {
	c.Locals("userID", u.ID)
	c.Locals("user", u)
	ctx := identity.WithUser(c.UserContext(), u)
	ctx = context.WithValue(ctx, UserIDKey, u.ID)
	c.SetUserContext(ctx)
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	tokenString, err := bearerToken(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(capitalize(err.Error())))
	}
	u, err := ParseToken(tokenString, secret())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(capitalize(err.Error())))
	}
	attach(c, u)
	return c.Next()
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through. A malformed or expired token is rejected.
func OptionalAuth(c *fiber.Ctx) error {
	tokenString, err := bearerToken(c)
	if errors.Is(err, errMissingToken) {
		return c.Next()
	}
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(capitalize(err.Error())))
	}
	u, err := ParseToken(tokenString, secret())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(capitalize(err.Error())))
	}
	attach(c, u)
	return c.Next()
}

// ModeratorRequired must run after AuthRequired.
func ModeratorRequired(c *fiber.Ctx) error {
	u, _ := c.Locals("user").(*identity.User)
	if u == nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError("Authentication required"))
	}
	if !u.IsModerator() {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewUnauthorizedError("Moderator access required"))
	}
	return c.Next()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
