package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/middleware"
)

// Handlers contains the HTTP handlers.
type Handlers struct {
	engine       *goRecover.Engine
	captcha      CaptchaVerifier
	logger       *slog.Logger
	secureCookie bool
}

type createRequest struct {
	Username          string `json:"username"`
	VerificationToken string `json:"verification_token"`
}

type updateRequest struct {
	Type *string `json:"type"`
	ID   string  `json:"id"`
}

type validateRequest struct {
	Code *string `json:"code"`
}

type validateResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type passwordResponse struct {
	LastChanged time.Time `json:"last_changed"`
	Expires     time.Time `json:"expires"`
}

// Health reports whether Redis is reachable.
func (h *Handlers) Health(c echo.Context) error {
	if err := h.engine.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// CreateReset starts or resumes a recovery. A username containing "@" is
// treated as an email address.
func (h *Handlers) CreateReset(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return badRequest(c, "username is required")
	}

	if h.captcha != nil {
		if req.VerificationToken == "" {
			return writeError(c, goRecover.ErrCaptchaRequired)
		}
		if err := h.captcha.Verify(c.Request().Context(), req.VerificationToken, c.RealIP()); err != nil {
			if errors.Is(err, goRecover.ErrCaptchaFailed) {
				h.logger.WarnContext(c.Request().Context(), "captcha rejected", "ip", c.RealIP())
				return writeError(c, goRecover.ErrCaptchaFailed)
			}
			h.logger.ErrorContext(c.Request().Context(), "captcha verification", "error", err)
			return writeError(c, goRecover.ErrUpstreamUnavailable)
		}
	}

	create := goRecover.CreateRecoveryRequest{Username: username}
	if strings.Contains(username, "@") {
		create = goRecover.CreateRecoveryRequest{Email: username}
	}

	rec, err := h.engine.CreateRecovery(c.Request().Context(), create)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ViewReset returns the public view of a recovery.
func (h *Handlers) ViewReset(c echo.Context) error {
	rec, err := h.engine.GetRecovery(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// UpdateReset switches the delivery channel and sends a new code.
func (h *Handlers) UpdateReset(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.Type == nil {
		return badRequest(c, "type is required")
	}

	recoveryType, err := goRecover.ParseRecoveryType(*req.Type)
	if err != nil || recoveryType == goRecover.RecoveryTypeNone {
		return writeError(c, goRecover.ErrMethodUnavailable)
	}

	rec, err := h.engine.SetRecoveryMethod(c.Request().Context(), c.Param("uid"), recoveryType, req.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ResendReset sends a new code on the current channel.
func (h *Handlers) ResendReset(c echo.Context) error {
	rec, err := h.engine.ResendRecovery(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ValidateReset checks a code and, on success, returns the reset token in
// the body and in an HTTP-only cookie.
func (h *Handlers) ValidateReset(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.Code == nil {
		return badRequest(c, "code is required")
	}

	result, err := h.engine.ValidateRecovery(c.Request().Context(), c.Param("uid"), *req.Code)
	if err != nil {
		return writeError(c, err)
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.ResetCookieName,
		Value:    result.Credential.AccessToken,
		Path:     "/",
		Expires:  result.Credential.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, validateResponse{
		AccessToken: result.Credential.AccessToken,
		ExpiresAt:   result.Credential.ExpiresAt,
	})
}

// ViewPassword returns the stored credential metadata of the reset user.
func (h *Handlers) ViewPassword(c echo.Context) error {
	user, ok := middleware.ResetUserFromContext(c.Request().Context())
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	meta, err := h.engine.PasswordMeta(c.Request().Context(), user)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, passwordResponse{LastChanged: meta.LastChanged, Expires: meta.ExpiresAt})
}

// UpdatePassword sets a new password for the reset user.
func (h *Handlers) UpdatePassword(c echo.Context) error {
	user, ok := middleware.ResetUserFromContext(c.Request().Context())
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	meta, err := h.engine.ChangePassword(c.Request().Context(), user, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, passwordResponse{LastChanged: meta.LastChanged, Expires: meta.ExpiresAt})
}

// AssessPassword checks a candidate without storing it.
func (h *Handlers) AssessPassword(c echo.Context) error {
	user, ok := middleware.ResetUserFromContext(c.Request().Context())
	if !ok {
		return c.NoContent(http.StatusUnauthorized)
	}
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	if err := h.engine.AssessPassword(c.Request().Context(), user, req.Password); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
