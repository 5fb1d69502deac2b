package middleware

import (
	"strings"

	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/service"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware guards routes that require a valid access token.
type AuthMiddleware struct {
	codec service.TokenCodec
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(codec service.TokenCodec) *AuthMiddleware {
	return &AuthMiddleware{codec: codec}
}

// Authenticate validates the Bearer access token and puts the authenticated
// user ID on the echo context under "userID".
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			return domainerrors.ErrUnauthenticated.WithDetails("Authorization header is missing")
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return domainerrors.ErrUnauthenticated.WithDetails("Authorization header must carry a Bearer token")
		}

		// A refresh token presented here fails the kind check.
		claims, err := m.codec.Verify(tokenString, service.AccessToken)
		if err != nil {
			return domainerrors.ErrUnauthenticated.WithDetails("Invalid or expired access token")
		}

		c.Set("userID", claims.UserID)

		return next(c)
	}
}
