// Package healthcheck runs per-owner checks against the storage channel and
// the webhook registration.
package healthcheck

import "context"

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
	// StatusUnknown indicates check result is not yet known.
	StatusUnknown = "unknown"
)

// CheckResult is one check item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one or more checks for an owner.
type Checker interface {
	ListChecks(ctx context.Context, ownerID string) []CheckResult
}

// Multi runs checkers in order and concatenates their results.
type Multi []Checker

func (m Multi) ListChecks(ctx context.Context, ownerID string) []CheckResult {
	result := []CheckResult{}
	for _, checker := range m {
		if checker == nil {
			continue
		}
		result = append(result, checker.ListChecks(ctx, ownerID)...)
	}
	return result
}

var severity = map[string]int{
	StatusOK:      0,
	StatusUnknown: 1,
	StatusWarn:    2,
	StatusError:   3,
}

// Overall returns the worst status among items, or unknown for none.
func Overall(items []CheckResult) string {
	if len(items) == 0 {
		return StatusUnknown
	}
	worst := StatusOK
	for _, item := range items {
		if severity[item.Status] > severity[worst] {
			worst = item.Status
		}
	}
	return worst
}
