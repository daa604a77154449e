package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/telecloud/internal/auth"
	"github.com/memohai/telecloud/internal/healthcheck"
)

type ChecksHandler struct {
	checker healthcheck.Checker
}

type ChecksResponse struct {
	Status string                    `json:"status"`
	Items  []healthcheck.CheckResult `json:"items"`
}

func NewChecksHandler(checker healthcheck.Checker) *ChecksHandler {
	return &ChecksHandler{checker: checker}
}

func (h *ChecksHandler) Register(e *echo.Echo) {
	e.GET("/owners/me/checks", h.List)
}

// List godoc
// @Summary Run storage channel checks for the caller
// @Tags owners
// @Success 200 {object} ChecksResponse
// @Router /owners/me/checks [get]
func (h *ChecksHandler) List(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	items := []healthcheck.CheckResult{}
	if h.checker != nil {
		items = h.checker.ListChecks(c.Request().Context(), ownerID)
	}
	return c.JSON(http.StatusOK, ChecksResponse{Status: healthcheck.Overall(items), Items: items})
}
