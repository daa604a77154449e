package channelchecker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/telecloud/internal/healthcheck"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/telegram"
)

const (
	checkTypeChannelConfig  = "channel.config"
	checkTypeChannelWebhook = "channel.webhook"
)

// ConfigSource reads the owner's active channel configuration.
type ConfigSource interface {
	GetActive(ctx context.Context, ownerID string) (owners.ChannelConfig, error)
}

// WebhookInspector reads the bot's webhook registration.
type WebhookInspector interface {
	WebhookInfo(ctx context.Context, botToken string) (telegram.WebhookStatus, error)
}

// Checker evaluates the storage channel configuration and its webhook.
type Checker struct {
	logger     *slog.Logger
	configs    ConfigSource
	inspector  WebhookInspector
	webhookURL string
	timeout    time.Duration
}

// NewChecker creates a channel health checker. webhookURL is the address
// the bot should be delivering to; empty skips the comparison.
func NewChecker(log *slog.Logger, configs ConfigSource, inspector WebhookInspector, webhookURL string, timeout time.Duration) *Checker {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		logger:     log.With(slog.String("checker", "healthcheck_channel")),
		configs:    configs,
		inspector:  inspector,
		webhookURL: strings.TrimSpace(webhookURL),
		timeout:    timeout,
	}
}

// ListChecks reports the config check and, when a config exists, the webhook check.
func (c *Checker) ListChecks(ctx context.Context, ownerID string) []healthcheck.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || c.configs == nil {
		return []healthcheck.CheckResult{}
	}

	cfg, err := c.configs.GetActive(ctx, ownerID)
	if errors.Is(err, owners.ErrNotConfigured) {
		return []healthcheck.CheckResult{{
			ID:      checkTypeChannelConfig,
			Type:    checkTypeChannelConfig,
			Status:  healthcheck.StatusError,
			Summary: "No storage channel is configured.",
		}}
	}
	if err != nil {
		c.logger.Warn("load channel config failed", slog.String("owner_id", ownerID), slog.Any("error", err))
		return []healthcheck.CheckResult{{
			ID:      checkTypeChannelConfig,
			Type:    checkTypeChannelConfig,
			Status:  healthcheck.StatusUnknown,
			Summary: "Channel configuration could not be loaded.",
		}}
	}

	checks := []healthcheck.CheckResult{{
		ID:      checkTypeChannelConfig,
		Type:    checkTypeChannelConfig,
		Status:  healthcheck.StatusOK,
		Summary: fmt.Sprintf("Storing files in %s.", cfg.ChannelRef),
		Metadata: map[string]any{
			"channel_ref": cfg.ChannelRef,
			"bot_token":   owners.MaskToken(cfg.BotToken),
		},
	}}
	if c.inspector != nil {
		checks = append(checks, c.checkWebhook(ctx, cfg))
	}
	return checks
}

func (c *Checker) checkWebhook(ctx context.Context, cfg owners.ChannelConfig) healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:   checkTypeChannelWebhook,
		Type: checkTypeChannelWebhook,
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	info, err := c.inspector.WebhookInfo(ctx, cfg.BotToken)
	if err != nil {
		item.Status = healthcheck.StatusError
		item.Summary = "Telegram did not return the webhook status."
		item.Detail = err.Error()
		return item
	}

	item.Metadata = map[string]any{
		"url":                  info.URL,
		"pending_update_count": info.PendingUpdateCount,
	}
	if info.LastErrorAt != nil {
		item.Metadata["last_error_at"] = info.LastErrorAt.Format(time.RFC3339)
	}
	switch {
	case info.URL == "":
		item.Status = healthcheck.StatusWarn
		item.Summary = "Webhook is not registered; files posted to the channel are not indexed."
	case c.webhookURL != "" && info.URL != c.webhookURL:
		item.Status = healthcheck.StatusWarn
		item.Summary = "Webhook points to another address."
		item.Detail = "expected " + c.webhookURL
	case strings.TrimSpace(info.LastErrorMessage) != "":
		item.Status = healthcheck.StatusWarn
		item.Summary = "Telegram reported a recent delivery error."
		item.Detail = strings.TrimSpace(info.LastErrorMessage)
	default:
		item.Status = healthcheck.StatusOK
		item.Summary = "Webhook is registered."
	}
	return item
}
