package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/memohai/telecloud/internal/config"
	"github.com/memohai/telecloud/internal/inbound"
	"github.com/memohai/telecloud/internal/media"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes    = 1 << 20
)

type UpdateProcessor interface {
	Process(ctx context.Context, update tgbotapi.Update) (inbound.Outcome, error)
}

// TelegramWebhookHandler receives Bot API updates. Telegram retries anything
// that is not 2xx, so every recognized outcome answers 200.
type TelegramWebhookHandler struct {
	logger    *slog.Logger
	processor UpdateProcessor
	path      string
	secret    string
}

type WebhookResponse struct {
	OK     bool   `json:"ok"`
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func NewTelegramWebhookHandler(log *slog.Logger, cfg config.Config, processor UpdateProcessor) *TelegramWebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	path := strings.TrimSpace(cfg.Telegram.WebhookPath)
	if path == "" {
		path = config.DefaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &TelegramWebhookHandler{
		logger:    log.With(slog.String("handler", "telegram_webhook")),
		processor: processor,
		path:      path,
		secret:    strings.TrimSpace(cfg.Telegram.WebhookSecret),
	}
}

// Register mounts the webhook only when a secret is configured. The route
// bypasses JWT auth, so the secret header is its only credential.
func (h *TelegramWebhookHandler) Register(e *echo.Echo) {
	if h.secret == "" {
		h.logger.Warn("telegram.webhook_secret is empty; webhook route disabled", slog.String("path", h.path))
		return
	}
	e.POST(h.path, h.Handle)
}

// Path is the route the handler is mounted on; it bypasses JWT auth.
func (h *TelegramWebhookHandler) Path() string {
	return h.path
}

// Handle godoc
// @Summary Telegram webhook
// @Description Registers files posted to a configured channel. Duplicates and unrelated updates are acknowledged.
// @Tags telegram
// @Param X-Telegram-Bot-Api-Secret-Token header string true "Webhook secret"
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} echo.HTTPError
// @Failure 401 {object} echo.HTTPError
// @Failure 500 {object} echo.HTTPError
// @Router /telegram/webhook [post]
func (h *TelegramWebhookHandler) Handle(c echo.Context) error {
	got := c.Request().Header.Get(secretTokenHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret token")
	}
	body, err := media.ReadAllWithLimit(c.Request().Body, maxUpdateBytes)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update body")
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update json")
	}
	out, err := h.processor.Process(c.Request().Context(), update)
	if err != nil {
		h.logger.Error("process update failed", slog.Int("update_id", update.UpdateID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process update")
	}
	return c.JSON(http.StatusOK, WebhookResponse{OK: true, State: string(out.State), Reason: out.Reason})
}
