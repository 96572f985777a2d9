// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"gatekeeper/internal/delivery/api/cookie"
	"gatekeeper/internal/delivery/api/response"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// SessionHandler exposes the session lifecycle over HTTP. Tokens only travel in cookies.
type SessionHandler struct {
	uc      usecase.SessionUsecase
	cookies *cookie.Builder
	logger  *slog.Logger
}

// NewSessionHandler is the constructor for SessionHandler, injected by Fx.
func NewSessionHandler(uc usecase.SessionUsecase, cookies *cookie.Builder, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		uc:      uc,
		cookies: cookies,
		logger:  logger,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name,omitempty" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Identity         *entity.PublicIdentity `json:"identity"`
	AccessExpiresAt  time.Time              `json:"access_expires_at"`
	RefreshExpiresAt time.Time              `json:"refresh_expires_at"`
}

// Register handles POST /auth/register.
func (h *SessionHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	output, err := h.uc.Register(c.Request().Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return h.startSession(c, http.StatusCreated, output)
}

// Login handles POST /auth/login.
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	output, err := h.uc.Login(c.Request().Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return h.startSession(c, http.StatusOK, output)
}

// Refresh handles POST /auth/refresh using the refresh cookie.
func (h *SessionHandler) Refresh(c echo.Context) error {
	output, err := h.uc.Refresh(c.Request().Context(), usecase.RefreshInput{
		RefreshToken: cookie.Read(c, cookie.RefreshTokenName),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return h.startSession(c, http.StatusOK, output)
}

// Logout handles POST /auth/logout. Cookies are cleared whatever the store says.
func (h *SessionHandler) Logout(c echo.Context) error {
	input := usecase.LogoutInput{RefreshToken: cookie.Read(c, cookie.RefreshTokenName)}
	if identity, ok := deliverycontext.GetIdentity(c); ok {
		input.IdentityID = &identity.ID
	}

	if err := h.uc.Logout(c.Request().Context(), input); err != nil {
		deliverycontext.GetLoggerOrDefault(c.Request().Context(), h.logger).
			Warn("Logout reported an error", slog.Any("error", err))
	}

	h.cookies.Clear(c)

	return response.Success(c, http.StatusOK, map[string]string{"message": "Logged out"})
}

// GetCurrentIdentity handles GET /auth/me behind the access-guard.
func (h *SessionHandler) GetCurrentIdentity(c echo.Context) error {
	identity, ok := deliverycontext.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, domainerrors.ErrInvalidToken.ErrorCode(), domainerrors.ErrInvalidToken.Message())
	}

	profile, err := h.uc.GetProfile(c.Request().Context(), identity.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, profile)
}

func (h *SessionHandler) startSession(c echo.Context, status int, output *usecase.SessionOutput) error {
	h.cookies.SetSession(c, output.Tokens)

	return response.Success(c, status, sessionResponse{
		Identity:         output.Identity,
		AccessExpiresAt:  output.Tokens.AccessExpiresAt,
		RefreshExpiresAt: output.Tokens.RefreshExpiresAt,
	})
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return errors.Wrap(domainerrors.ErrValidationFailed.WithDetails("request body is not valid JSON"), "bind request")
	}

	return errors.WithStack(c.Validate(req))
}
