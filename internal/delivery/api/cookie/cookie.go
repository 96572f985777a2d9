// Package cookie builds the session cookies carrying the access and refresh tokens.
package cookie

import (
	"net/http"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/constants"
	"gatekeeper/internal/domain/service"

	"github.com/labstack/echo/v4"
)

const (
	AccessTokenName  = constants.AccessTokenCookie
	RefreshTokenName = constants.RefreshTokenCookie
)

// Builder writes session cookies. Secure and SameSite follow the deployment environment.
type Builder struct {
	domain     string
	secure     bool
	sameSite   http.SameSite
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewBuilder derives cookie attributes from the configuration.
func NewBuilder(cfg *config.Config) *Builder {
	b := &Builder{
		sameSite:   http.SameSiteLaxMode,
		accessTTL:  cfg.Auth.AccessTokenTTL,
		refreshTTL: cfg.Auth.RefreshTokenTTL,
	}
	if cfg.Cookie != nil {
		b.domain = cfg.Cookie.Domain
	}
	if cfg.IsProduction() {
		b.secure = true
		b.sameSite = http.SameSiteStrictMode
	}

	return b
}

// SetSession emits both token cookies, each living as long as its token.
func (b *Builder) SetSession(c echo.Context, tokens *service.TokenPair) {
	c.SetCookie(b.build(AccessTokenName, tokens.AccessToken, b.accessTTL, tokens.AccessExpiresAt))
	c.SetCookie(b.build(RefreshTokenName, tokens.RefreshToken, b.refreshTTL, tokens.RefreshExpiresAt))
}

// Clear expires both token cookies on the client.
func (b *Builder) Clear(c echo.Context) {
	for _, name := range []string{AccessTokenName, RefreshTokenName} {
		ck := b.build(name, "", 0, time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

func (b *Builder) build(name, value string, ttl time.Duration, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   b.domain,
		MaxAge:   int(ttl / time.Second),
		Expires:  expires.UTC(),
		Secure:   b.secure,
		HttpOnly: true,
		SameSite: b.sameSite,
	}
}

// Read returns the named cookie's value, or "" when absent.
func Read(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}

	return ck.Value
}
