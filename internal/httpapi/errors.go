package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	goRecover "github.com/MrEthical07/goRecover"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Name       string   `json:"name"`
	Message    string   `json:"message"`
	Status     int      `json:"status"`
	Violations []string `json:"violations,omitempty"`
	Codes      []int    `json:"codes,omitempty"`
}

// statusFor maps engine errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, goRecover.ErrNotFound),
		errors.Is(err, goRecover.ErrAccountLocked):
		return http.StatusNotFound
	case errors.Is(err, goRecover.ErrInvalidInput),
		errors.Is(err, goRecover.ErrInvalidCode),
		errors.Is(err, goRecover.ErrMethodUnavailable),
		errors.Is(err, goRecover.ErrCaptchaRequired),
		errors.Is(err, goRecover.ErrCaptchaFailed):
		return http.StatusBadRequest
	case errors.Is(err, goRecover.ErrPolicyViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, goRecover.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, goRecover.ErrExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := statusFor(err)

	body := errorBody{
		Name:    http.StatusText(status),
		Message: err.Error(),
		Status:  status,
	}
	if status == http.StatusInternalServerError {
		body.Message = "the request could not be completed"
	}

	var policyErr *goRecover.PolicyError
	if errors.As(err, &policyErr) {
		for _, v := range policyErr.Violations {
			body.Violations = append(body.Violations, string(v))
		}
		body.Codes = policyErr.Codes()
	}

	return c.JSON(status, body)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorBody{
		Name:    http.StatusText(http.StatusBadRequest),
		Message: message,
		Status:  http.StatusBadRequest,
	})
}
