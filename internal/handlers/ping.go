package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingHandler struct {
	logger *slog.Logger
	db     Pinger
}

func NewPingHandler(log *slog.Logger, db Pinger) *PingHandler {
	return &PingHandler{logger: log.With(slog.String("handler", "ping")), db: db}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping godoc
// @Summary Liveness and database status
// @Tags system
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ping [get]
func (h *PingHandler) Ping(c echo.Context) error {
	if err := h.pingDB(c.Request().Context()); err != nil {
		h.logger.Warn("database ping failed", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	if err := h.pingDB(c.Request().Context()); err != nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func (h *PingHandler) pingDB(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.Ping(ctx)
}
