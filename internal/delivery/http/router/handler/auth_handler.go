// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// refreshCookiePath scopes the refresh cookie to the auth endpoints so the
// long-lived credential never rides along on other requests.
const refreshCookiePath = "/auth"

// AuthHandler holds dependencies for the credential endpoints.
type AuthHandler struct {
	uc     usecase.AuthUsecase
	cfg    *config.Config
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(uc usecase.AuthUsecase, cfg *config.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		uc:     uc,
		cfg:    cfg,
		logger: logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// authResponse is the body for register and login. The refresh token travels
// only in the HTTP-only cookie, never in the JSON body.
type authResponse struct {
	AccessToken string       `json:"access_token"`
	User        *entity.User `json:"user"`
}

// refreshResponse mirrors authResponse: the rotated refresh token stays in
// the cookie, the body carries the new access token and the account.
type refreshResponse struct {
	AccessToken string       `json:"access_token"`
	User        *entity.User `json:"user"`
}

// Register handles the account registration request.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid registration input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	out, err := h.uc.Register(c.Request().Context(), usecase.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	h.setRefreshCookie(c, out.RefreshToken)

	return response.Success(c, http.StatusCreated, authResponse{
		AccessToken: out.AccessToken,
		User:        out.User,
	}, "Account registered successfully")
}

// Login handles the login request.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid login input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	out, err := h.uc.Login(c.Request().Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	h.setRefreshCookie(c, out.RefreshToken)

	return response.Success(c, http.StatusOK, authResponse{
		AccessToken: out.AccessToken,
		User:        out.User,
	}, "Login successful")
}

// Refresh rotates the refresh token presented in the cookie. Every failure
// clears the cookie: the client holds nothing worth keeping at that point.
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(h.cfg.Cookie.Name)
	if err != nil || cookie.Value == "" {
		h.clearRefreshCookie(c)

		return errors.WithStack(domainerrors.ErrUnauthenticated.WithDetails("Refresh token cookie is missing"))
	}

	out, err := h.uc.Refresh(c.Request().Context(), cookie.Value)
	if err != nil {
		h.clearRefreshCookie(c)

		return errors.WithStack(err)
	}

	h.setRefreshCookie(c, out.RefreshToken)

	return response.Success(c, http.StatusOK, refreshResponse{
		AccessToken: out.AccessToken,
		User:        out.User,
	}, "Token refreshed successfully")
}

// Logout revokes the session behind the refresh cookie. It always answers
// 200: logging out with a missing or dead token is not a client mistake.
func (h *AuthHandler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(h.cfg.Cookie.Name); err == nil && cookie.Value != "" {
		if err := h.uc.Logout(c.Request().Context(), cookie.Value); err != nil {
			h.logger.Warn("Logout failed", slog.Any("error", err))
		}
	}

	h.clearRefreshCookie(c)

	return response.Success(c, http.StatusOK, nil, "Logout successful")
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    token,
		Path:     refreshCookiePath,
		Domain:   h.cfg.Cookie.Domain,
		MaxAge:   int(h.cfg.Auth.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   h.cfg.Cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
