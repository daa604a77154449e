package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/memohai/telecloud/internal/telegram"
	"github.com/memohai/telecloud/internal/transfer"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *RequestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func statusFor(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, transfer.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, transfer.ErrPayloadTooLarge), errors.Is(err, transfer.ErrRemoteQuotaExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transfer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transfer.ErrDownloadFailed), errors.Is(err, transfer.ErrRemoteRejected):
		return http.StatusBadGateway
	case errors.Is(err, transfer.ErrRemoteTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, transfer.ErrEmptyPayload),
		errors.Is(err, transfer.ErrInvalidURL),
		errors.Is(err, telegram.ErrInvalidTarget):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error, status int) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			return msg
		}
	}
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	if errors.Is(err, transfer.ErrRemoteQuotaExceeded) {
		return err.Error() + "; resolve the file to get a stream url"
	}
	return err.Error()
}

// toHTTPError converts a service error for handlers that use echo's
// default error body.
func toHTTPError(err error) error {
	status := statusFor(err)
	return echo.NewHTTPError(status, errorMessage(err, status))
}

// failure writes the {success:false,error} body used by the transfer endpoints.
func failure(c echo.Context, err error) error {
	status := statusFor(err)
	return c.JSON(status, ErrorResponse{Success: false, Error: errorMessage(err, status)})
}
