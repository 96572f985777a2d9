package middleware

import (
	"strings"

	"gatekeeper/internal/delivery/api/cookie"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const bearerPrefix = "Bearer "

// AuthMiddleware is the access-guard for protected routes.
type AuthMiddleware struct {
	sessions usecase.SessionUsecase
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(sessions usecase.SessionUsecase) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Authenticate rejects the request unless it carries a valid access token for an active identity.
// The stripped identity is attached to the echo context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := m.sessions.Authenticate(c.Request().Context(), accessToken(c))
		if err != nil {
			return errors.WithStack(err)
		}

		deliverycontext.SetIdentity(c, identity)

		return next(c)
	}
}

// Optional attaches the identity when the access token is valid and lets the request through otherwise.
func (m *AuthMiddleware) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := accessToken(c)
		if token == "" {
			return next(c)
		}

		if identity, err := m.sessions.Authenticate(c.Request().Context(), token); err == nil {
			deliverycontext.SetIdentity(c, identity)
		}

		return next(c)
	}
}

// accessToken reads the access cookie, falling back to an Authorization: Bearer header.
func accessToken(c echo.Context) string {
	if token := cookie.Read(c, cookie.AccessTokenName); token != "" {
		return token
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}

	return ""
}
