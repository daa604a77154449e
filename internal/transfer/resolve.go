package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/media"
	"github.com/memohai/telecloud/internal/metrics"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/telegram"
)

// Mode is how resolved bytes reach the client.
type Mode string

const (
	ModeProxy    Mode = "proxy"
	ModeRedirect Mode = "redirect"
)

// Resolution is the outcome of a download request. Exactly one of URL and
// Bytes is set.
type Resolution struct {
	Mode   Mode
	URL    string
	Bytes  []byte
	Size   int64
	Record files.Record
}

// ResolveService turns a registered file into bytes or a direct URL.
type ResolveService struct {
	logger   *slog.Logger
	configs  ConfigSource
	registry RecordStore
	remote   RemoteClient
	settings Settings
}

// NewResolveService creates a ResolveService.
func NewResolveService(log *slog.Logger, configs ConfigSource, registry RecordStore, remote RemoteClient, settings Settings) *ResolveService {
	if log == nil {
		log = slog.Default()
	}
	return &ResolveService{
		logger:   log.With(slog.String("service", "resolve")),
		configs:  configs,
		registry: registry,
		remote:   remote,
		settings: settings,
	}
}

// Resolve looks up a record by registry id.
func (s *ResolveService) Resolve(ctx context.Context, ownerID, fileID string) (Resolution, error) {
	rec, err := s.registry.Get(ctx, strings.TrimSpace(ownerID), strings.TrimSpace(fileID))
	if err != nil {
		return Resolution{}, notFound(err)
	}
	return s.resolve(ctx, rec)
}

// ResolveRemote looks up a record by its Telegram file id.
func (s *ResolveService) ResolveRemote(ctx context.Context, ownerID, remoteObjectID string) (Resolution, error) {
	rec, err := s.registry.FindByOwnerAndRemoteID(ctx, strings.TrimSpace(ownerID), strings.TrimSpace(remoteObjectID))
	if err != nil {
		return Resolution{}, notFound(err)
	}
	return s.resolve(ctx, rec)
}

func notFound(err error) error {
	if errors.Is(err, files.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *ResolveService) resolve(ctx context.Context, rec files.Record) (Resolution, error) {
	if rec.DeletedAt != nil {
		return Resolution{}, ErrNotFound
	}
	cfg, err := s.configs.GetActive(ctx, rec.OwnerID)
	if err != nil {
		return Resolution{}, err
	}

	metaCtx, cancel := context.WithTimeout(ctx, s.settings.MetadataTimeout)
	loc, err := s.remote.ResolveObjectLocation(metaCtx, cfg.BotToken, rec.RemoteObjectID)
	cancel()
	if err != nil {
		if errors.Is(err, telegram.ErrRemoteQuotaExceeded) {
			// getFile refuses large objects; the raw id is the best-effort stream path.
			metrics.ObserveResolve("stream_fallback")
			return s.redirect(rec, s.remote.BuildStreamURL(cfg.BotToken, rec.RemoteObjectID), rec.ByteSize), nil
		}
		metrics.ObserveResolve("error")
		return Resolution{}, err
	}

	size := loc.ReportedSize
	if size <= 0 {
		size = rec.ByteSize
	}
	if size > s.settings.ProxyThreshold {
		metrics.ObserveResolve(string(ModeRedirect))
		return s.redirect(rec, loc.DirectURL, size), nil
	}

	data, err := s.fetch(ctx, cfg, loc)
	if errors.Is(err, media.ErrReadLimitExceeded) {
		metrics.ObserveResolve(string(ModeRedirect))
		return s.redirect(rec, loc.DirectURL, size), nil
	}
	if err != nil {
		metrics.ObserveResolve("error")
		return Resolution{}, err
	}
	metrics.ObserveResolve(string(ModeProxy))
	return Resolution{
		Mode:   ModeProxy,
		Bytes:  data,
		Size:   int64(len(data)),
		Record: rec,
	}, nil
}

func (s *ResolveService) redirect(rec files.Record, url string, size int64) Resolution {
	return Resolution{Mode: ModeRedirect, URL: url, Size: size, Record: rec}
}

func (s *ResolveService) fetch(ctx context.Context, cfg owners.ChannelConfig, loc telegram.Location) ([]byte, error) {
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.TransferTimeout)
	defer cancel()

	data, err := s.remote.Fetch(fetchCtx, loc.DirectURL, s.settings.ProxyThreshold)
	metrics.ObserveDownload(start)
	switch {
	case err == nil && len(data) == 0:
		return nil, fmt.Errorf("%w: empty body", ErrDownloadFailed)
	case err == nil:
		return data, nil
	case errors.Is(err, media.ErrReadLimitExceeded), errors.Is(err, context.Canceled):
		return nil, err
	default:
		s.logger.Warn("fetch from telegram failed",
			slog.String("owner_id", cfg.OwnerID), slog.String("file_path", loc.FilePath), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
}
