package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/memohai/telecloud/internal/metrics"
)

type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (h *MetricsHandler) Register(e *echo.Echo) {
	e.GET("/metrics", metrics.Handler())
}
