package channelchecker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/memohai/telecloud/internal/healthcheck"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/telegram"
)

type fakeConfigs struct {
	cfg owners.ChannelConfig
	err error
}

func (f fakeConfigs) GetActive(context.Context, string) (owners.ChannelConfig, error) {
	return f.cfg, f.err
}

type fakeInspector struct {
	info telegram.WebhookStatus
	err  error
}

func (f fakeInspector) WebhookInfo(context.Context, string) (telegram.WebhookStatus, error) {
	return f.info, f.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const hookURL = "https://cloud.example.com/telegram/webhook"

var activeConfig = owners.ChannelConfig{OwnerID: "owner-1", BotToken: "123456:ABCDEFGHIJKL", ChannelRef: "@store", Active: true}

func TestCheckerNotConfigured(t *testing.T) {
	t.Parallel()

	checker := NewChecker(newTestLogger(), fakeConfigs{err: owners.ErrNotConfigured}, fakeInspector{}, hookURL, time.Second)
	items := checker.ListChecks(context.Background(), "owner-1")
	if len(items) != 1 {
		t.Fatalf("expected 1 check, got %d", len(items))
	}
	if items[0].ID != "channel.config" || items[0].Status != healthcheck.StatusError {
		t.Fatalf("unexpected check: %+v", items[0])
	}
}

func TestCheckerWebhookStates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		info   telegram.WebhookStatus
		err    error
		status string
	}{
		{name: "registered", info: telegram.WebhookStatus{URL: hookURL}, status: healthcheck.StatusOK},
		{name: "missing", info: telegram.WebhookStatus{}, status: healthcheck.StatusWarn},
		{name: "elsewhere", info: telegram.WebhookStatus{URL: "https://old.example.com/hook"}, status: healthcheck.StatusWarn},
		{name: "delivery error", info: telegram.WebhookStatus{URL: hookURL, LastErrorMessage: "Connection refused"}, status: healthcheck.StatusWarn},
		{name: "telegram down", err: errors.New("telegram: request rejected"), status: healthcheck.StatusError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			checker := NewChecker(newTestLogger(), fakeConfigs{cfg: activeConfig}, fakeInspector{info: tc.info, err: tc.err}, hookURL, time.Second)
			items := checker.ListChecks(context.Background(), "owner-1")
			if len(items) != 2 {
				t.Fatalf("expected 2 checks, got %d", len(items))
			}
			if items[0].Status != healthcheck.StatusOK {
				t.Fatalf("config check should pass: %+v", items[0])
			}
			if items[0].Metadata["bot_token"] == activeConfig.BotToken {
				t.Fatalf("bot token leaked into metadata")
			}
			if items[1].ID != "channel.webhook" || items[1].Status != tc.status {
				t.Fatalf("webhook check = %+v, want status %s", items[1], tc.status)
			}
		})
	}
}

func TestCheckerEmptyOwner(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), fakeConfigs{cfg: activeConfig}, nil, "", 0).ListChecks(context.Background(), " ")
	if len(items) != 0 {
		t.Fatalf("expected no checks, got %d", len(items))
	}
}
