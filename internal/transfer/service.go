// Package transfer moves file bytes between clients and Telegram: the upload
// pipeline, URL imports and download resolution.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/memohai/telecloud/internal/config"
	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/media"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/telegram"
)

var (
	ErrNotConfigured       = owners.ErrNotConfigured
	ErrNotFound            = files.ErrNotFound
	ErrPayloadTooLarge     = media.ErrPayloadTooLarge
	ErrRemoteQuotaExceeded = telegram.ErrRemoteQuotaExceeded
	ErrRemoteRejected      = telegram.ErrRemoteRejected
	ErrRemoteTimeout       = telegram.ErrRemoteTimeout

	ErrDownloadFailed = errors.New("download from telegram failed")
	ErrEmptyPayload   = errors.New("file data is empty")
	ErrInvalidURL     = errors.New("url must be an absolute http or https url")
)

// PayloadTooLargeError carries the ceiling a payload violated.
type PayloadTooLargeError = media.PayloadTooLargeError

// smallPayloadBytes is the cutoff under which uploads use the metadata timeout.
const smallPayloadBytes = 1 << 20

// ConfigSource yields the active channel config for an owner.
type ConfigSource interface {
	GetActive(ctx context.Context, ownerID string) (owners.ChannelConfig, error)
}

// RecordStore is the part of the file registry the pipelines use.
type RecordStore interface {
	Insert(ctx context.Context, rec files.Record) (files.Record, error)
	FindByOwnerAndRemoteID(ctx context.Context, ownerID, remoteObjectID string) (files.Record, error)
	Get(ctx context.Context, ownerID, id string) (files.Record, error)
}

// RemoteClient is the Telegram surface the pipelines use.
type RemoteClient interface {
	SendObject(ctx context.Context, creds telegram.Credentials, payload telegram.Payload, class media.Class, caption string) (telegram.SentObject, error)
	ResolveObjectLocation(ctx context.Context, botToken, remoteObjectID string) (telegram.Location, error)
	BuildStreamURL(botToken, pathOrID string) string
	Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// Settings are the storage limits and timeouts applied by both pipelines.
type Settings struct {
	Policy          media.Policy
	ProxyThreshold  int64
	MetadataTimeout time.Duration
	TransferTimeout time.Duration
	ImportMaxBytes  int64
}

// SettingsFromConfig converts the [storage] section.
func SettingsFromConfig(cfg config.StorageConfig) Settings {
	return Settings{
		Policy: media.Policy{
			GeneralCeilingBytes: cfg.GeneralCeilingBytes,
			ImageCeilingBytes:   cfg.ImageCeilingBytes,
		},
		ProxyThreshold:  cfg.ProxyThresholdBytes,
		MetadataTimeout: cfg.MetadataTimeoutDuration(),
		TransferTimeout: cfg.TransferTimeoutDuration(),
		ImportMaxBytes:  cfg.ImportMaxBytes,
	}
}

func (s Settings) uploadTimeout(size int64) time.Duration {
	if size <= smallPayloadBytes {
		return s.MetadataTimeout
	}
	return s.TransferTimeout
}

func credentials(cfg owners.ChannelConfig) telegram.Credentials {
	return telegram.Credentials{BotToken: cfg.BotToken, ChannelRef: cfg.ChannelRef}
}
