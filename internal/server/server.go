package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/telecloud/internal/auth"
	"github.com/memohai/telecloud/internal/config"
	"github.com/memohai/telecloud/internal/metrics"
)

// Handler mounts a group of routes.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo *echo.Echo
	addr string
}

var jwtExactSkipPaths = map[string]struct{}{
	"/ping":    {},
	"/health":  {},
	"/metrics": {},
}

func NewServer(log *slog.Logger, cfg config.Config, validator echo.Validator, handlers []Handler) *Server {
	addr := cfg.Server.Addr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	webhookPath := cfg.Telegram.WebhookPath
	if webhookPath == "" {
		webhookPath = config.DefaultWebhookPath
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			// query strings may carry a bearer token
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("path", c.Request().URL.Path),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(metrics.Middleware())
	e.Use(auth.JWTMiddleware(cfg.Auth.JWTSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path, webhookPath)
	}))
	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}
	return &Server{echo: e, addr: addr}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// shouldSkipJWT lets health probes, metrics scrapes and Telegram's webhook
// through; the webhook authenticates with its secret header instead.
func shouldSkipJWT(path, webhookPath string) bool {
	if _, ok := jwtExactSkipPaths[path]; ok {
		return true
	}
	webhookPath = "/" + strings.TrimLeft(webhookPath, "/")
	return path == webhookPath
}
