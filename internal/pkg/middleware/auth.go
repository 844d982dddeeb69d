package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/internal/pkg/env"
	"github.com/ManuelReschke/CertFox/internal/pkg/usercontext"
)

// AdminClaims are the claims of an admin access token. The subject is the
// admin id.
type AdminClaims struct {
	OrganizationID string `json:"org"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// JWTSecret reads JWT_SECRET on every call so it can be rotated.
func JWTSecret() string {
	return strings.TrimSpace(env.GetEnv("JWT_SECRET", ""))
}

// ParseAdminToken validates an HS256 token against secret.
func ParseAdminToken(raw, secret string) (*AdminClaims, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET is not configured")
	}
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func bearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "AUTH",
		"message": msg,
	})
}

// RequireAdminAuth authenticates the bearer token and stores the admin
// context in Locals.
func RequireAdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return unauthorized(c, "missing bearer token")
		}
		claims, err := ParseAdminToken(raw, JWTSecret())
		if err != nil {
			log.Debugf("[Auth] Rejected token: %v", err)
			return unauthorized(c, "invalid or expired token")
		}
		usercontext.SetAdminContext(c, usercontext.AdminContext{
			AdminID:         claims.Subject,
			OrganizationID:  claims.OrganizationID,
			Email:           claims.Email,
			Role:            claims.Role,
			IsAuthenticated: true,
		})
		return c.Next()
	}
}

// RequireSuperAdmin allows only platform operators. It must run after
// RequireAdminAuth.
func RequireSuperAdmin(c *fiber.Ctx) error {
	if !usercontext.IsAuthenticated(c) {
		return unauthorized(c, "login required")
	}
	if !usercontext.HasRole(c, models.AdminRoleSuperAdmin) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "FORBIDDEN",
			"message": "superadmin role required",
		})
	}
	return c.Next()
}
