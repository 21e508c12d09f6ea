package middleware

import (
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/config"
	"github.com/gvargas9/smartterapist/internal/dto"
)

// JWTProtected validates bearer tokens issued by the identity service.
// This process only verifies; it never mints tokens. The query source
// exists for websocket handshakes, which cannot set headers.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:  jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		TokenLookup: "header:Authorization,query:token",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}

// TokenClaims returns the parsed claims the JWT middleware stored on
// the request, or nil when the request is unauthenticated.
func TokenClaims(c *fiber.Ctx) jwt.MapClaims {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

// UserID extracts the caller's user id from the token subject.
func UserID(c *fiber.Ctx) (uuid.UUID, bool) {
	claims := TokenClaims(c)
	if claims == nil {
		return uuid.Nil, false
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Email extracts the caller's email claim, empty when absent.
func Email(c *fiber.Ctx) string {
	claims := TokenClaims(c)
	if claims == nil {
		return ""
	}
	email, _ := claims["email"].(string)
	return email
}
