package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	// ErrRemoteQuotaExceeded indicates Telegram refused the object as too large.
	// For getFile this is the signal to fall back to a direct stream URL.
	ErrRemoteQuotaExceeded = errors.New("telegram: file is too big")
	// ErrRemoteRejected indicates any other non-ok Telegram response or transport failure.
	ErrRemoteRejected = errors.New("telegram: request rejected")
	// ErrRemoteTimeout indicates the call exceeded its deadline and was abandoned.
	ErrRemoteTimeout = errors.New("telegram: request timed out")
	// ErrInvalidTarget indicates a channel reference that is neither a chat id nor @username.
	ErrInvalidTarget = errors.New("telegram target must be @username or chat_id")
)

// classifyError maps a failed Bot API call onto the remote error vocabulary.
// status is the HTTP status observed for the call, 0 when none arrived.
func classifyError(ctx context.Context, op string, status int, err error) error {
	if err == nil {
		return nil
	}
	err = redactURLError(err)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrRemoteTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%s: %w", op, context.Canceled)
	case status == http.StatusRequestEntityTooLarge || isTooBig(err):
		return fmt.Errorf("%s: %w: %w", op, ErrRemoteQuotaExceeded, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrRemoteRejected, err)
	}
}

func isTooBig(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		if apiErr.Code == http.StatusRequestEntityTooLarge {
			return true
		}
		return containsTooBig(apiErr.Message)
	}
	return containsTooBig(err.Error())
}

func containsTooBig(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "file is too big") || strings.Contains(msg, "request entity too large")
}

// redactURLError drops the request URL from transport errors because file
// URLs carry the bot token.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return err
}

// asAPIError unwraps a Bot API error; the library returns it both by value and by pointer.
func asAPIError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}
