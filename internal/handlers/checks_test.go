package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/telecloud/internal/healthcheck"
)

type staticChecker []healthcheck.CheckResult

func (s staticChecker) ListChecks(context.Context, string) []healthcheck.CheckResult { return s }

func TestChecks(t *testing.T) {
	e := newTestEcho(NewChecksHandler(healthcheck.Multi{
		staticChecker{{ID: "channel.config", Status: healthcheck.StatusOK}},
		staticChecker{{ID: "channel.webhook", Status: healthcheck.StatusWarn}},
	}))
	rec := do(t, e, http.MethodGet, "/owners/me/checks", "", "", "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ChecksResponse](t, rec)
	assert.Equal(t, healthcheck.StatusWarn, resp.Status)
	assert.Len(t, resp.Items, 2)
}
