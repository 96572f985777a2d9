package context

import (
	"gatekeeper/internal/domain/entity"

	"github.com/labstack/echo/v4"
)

// KeyIdentity is the echo.Context key for the authenticated identity.
const KeyIdentity ContextKey = "identity"

// SetIdentity attaches the authenticated identity to the request.
func SetIdentity(c echo.Context, identity *entity.PublicIdentity) {
	c.Set(string(KeyIdentity), identity)
}

// GetIdentity returns the identity attached by the access-guard, if any.
func GetIdentity(c echo.Context) (*entity.PublicIdentity, bool) {
	identity, ok := c.Get(string(KeyIdentity)).(*entity.PublicIdentity)
	if !ok || identity == nil {
		return nil, false
	}

	return identity, true
}
