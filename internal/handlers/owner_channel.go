package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/telecloud/internal/auth"
	"github.com/memohai/telecloud/internal/config"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/telegram"
)

type ChannelConfigStore interface {
	GetActive(ctx context.Context, ownerID string) (owners.ChannelConfig, error)
	Upsert(ctx context.Context, ownerID, botToken, channelRef string) (owners.ChannelConfig, error)
	Deactivate(ctx context.Context, ownerID string) error
}

// ChannelProbe is the Bot API surface used to verify and wire a channel.
type ChannelProbe interface {
	SendText(ctx context.Context, creds telegram.Credentials, text string) (int, error)
	SetWebhook(ctx context.Context, botToken, url, secret string) error
	WebhookInfo(ctx context.Context, botToken string) (telegram.WebhookStatus, error)
}

type OwnerChannelHandler struct {
	logger     *slog.Logger
	store      ChannelConfigStore
	probe      ChannelProbe
	webhookURL string
	secret     string
	timeout    time.Duration
}

type UpsertChannelRequest struct {
	BotToken   string `json:"botToken" validate:"required"`
	ChannelRef string `json:"channelRef" validate:"required"`
}

type SetupWebhookResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

func NewOwnerChannelHandler(log *slog.Logger, cfg config.Config, store ChannelConfigStore, probe ChannelProbe) *OwnerChannelHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OwnerChannelHandler{
		logger:     log.With(slog.String("handler", "owner_channel")),
		store:      store,
		probe:      probe,
		webhookURL: cfg.WebhookURL(),
		secret:     strings.TrimSpace(cfg.Telegram.WebhookSecret),
		timeout:    cfg.Storage.MetadataTimeoutDuration(),
	}
}

func (h *OwnerChannelHandler) Register(e *echo.Echo) {
	group := e.Group("/owners/me/channel")
	group.GET("", h.Get)
	group.PUT("", h.Put)
	group.DELETE("", h.Delete)
	group.POST("/webhook", h.SetupWebhook)
	group.GET("/webhook", h.GetWebhook)
}

// Get godoc
// @Summary Get the active channel configuration
// @Description The bot token is masked.
// @Tags owners
// @Success 200 {object} owners.ChannelConfig
// @Failure 412 {object} echo.HTTPError
// @Router /owners/me/channel [get]
func (h *OwnerChannelHandler) Get(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	cfg, err := h.store.GetActive(c.Request().Context(), ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// Put godoc
// @Summary Configure the storage channel
// @Description Sends a test message with the bot, then makes this the single active configuration.
// @Tags owners
// @Param payload body UpsertChannelRequest true "Bot token and channel"
// @Success 200 {object} owners.ChannelConfig
// @Failure 400 {object} echo.HTTPError
// @Failure 502 {object} echo.HTTPError
// @Failure 504 {object} echo.HTTPError
// @Router /owners/me/channel [put]
func (h *OwnerChannelHandler) Put(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	var req UpsertChannelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.BotToken = strings.TrimSpace(req.BotToken)
	req.ChannelRef = strings.TrimSpace(req.ChannelRef)
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := telegram.ValidateChannelRef(req.ChannelRef); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	creds := telegram.Credentials{BotToken: req.BotToken, ChannelRef: req.ChannelRef}
	text := fmt.Sprintf("✅ Storage channel connected at %s UTC", time.Now().UTC().Format("2006-01-02 15:04:05"))
	if _, err := h.probe.SendText(ctx, creds, text); err != nil {
		h.logger.Warn("channel test message failed", slog.String("owner_id", ownerID), slog.Any("error", err))
		return toHTTPError(err)
	}

	cfg, err := h.store.Upsert(c.Request().Context(), ownerID, req.BotToken, req.ChannelRef)
	if err != nil {
		return toHTTPError(err)
	}
	h.logger.Info("channel configured", slog.String("owner_id", ownerID), slog.String("channel", cfg.ChannelRef))
	return c.JSON(http.StatusOK, cfg)
}

// Delete godoc
// @Summary Deactivate the storage channel
// @Tags owners
// @Success 204 "No Content"
// @Failure 412 {object} echo.HTTPError
// @Router /owners/me/channel [delete]
func (h *OwnerChannelHandler) Delete(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.store.Deactivate(c.Request().Context(), ownerID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetupWebhook godoc
// @Summary Register the Telegram webhook for the owner's bot
// @Tags owners
// @Success 200 {object} SetupWebhookResponse
// @Failure 409 {object} echo.HTTPError
// @Failure 412 {object} echo.HTTPError
// @Failure 502 {object} echo.HTTPError
// @Router /owners/me/channel/webhook [post]
func (h *OwnerChannelHandler) SetupWebhook(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	if h.webhookURL == "" {
		return echo.NewHTTPError(http.StatusConflict, "server.public_url is not configured")
	}
	cfg, err := h.store.GetActive(c.Request().Context(), ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	if err := h.probe.SetWebhook(ctx, cfg.BotToken, h.webhookURL, h.secret); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, SetupWebhookResponse{OK: true, URL: h.webhookURL})
}

// GetWebhook godoc
// @Summary Show the bot's webhook registration
// @Tags owners
// @Success 200 {object} telegram.WebhookStatus
// @Failure 412 {object} echo.HTTPError
// @Failure 502 {object} echo.HTTPError
// @Router /owners/me/channel/webhook [get]
func (h *OwnerChannelHandler) GetWebhook(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	cfg, err := h.store.GetActive(c.Request().Context(), ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()
	info, err := h.probe.WebhookInfo(ctx, cfg.BotToken)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, info)
}
