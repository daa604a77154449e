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
	"github.com/memohai/telecloud/internal/telegram"
)

// UploadInput is a caller-provided payload.
type UploadInput struct {
	OwnerID      string
	DisplayName  string
	DeclaredSize int64
	DeclaredMime string
	Bytes        []byte
	Source       files.Source
}

// UploadService sends payloads to the owner's channel and registers them.
type UploadService struct {
	logger   *slog.Logger
	configs  ConfigSource
	registry RecordStore
	remote   RemoteClient
	settings Settings
	now      func() time.Time
}

// NewUploadService creates an UploadService.
func NewUploadService(log *slog.Logger, configs ConfigSource, registry RecordStore, remote RemoteClient, settings Settings) *UploadService {
	if log == nil {
		log = slog.Default()
	}
	return &UploadService{
		logger:   log.With(slog.String("service", "upload")),
		configs:  configs,
		registry: registry,
		remote:   remote,
		settings: settings,
		now:      time.Now,
	}
}

// Upload validates, sends and registers one payload. Limit violations are
// reported before any network call. When the registry write fails for a
// reason other than a duplicate, the object is already stored remotely, so
// the returned record carries the remote ids and an empty ID.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (files.Record, error) {
	ownerID := strings.TrimSpace(in.OwnerID)
	if ownerID == "" {
		return files.Record{}, fmt.Errorf("owner id is required")
	}
	if len(in.Bytes) == 0 {
		return files.Record{}, ErrEmptyPayload
	}
	cfg, err := s.configs.GetActive(ctx, ownerID)
	if err != nil {
		return files.Record{}, err
	}

	class := media.ClassifyUpload(in.DeclaredMime, in.DisplayName)
	size := int64(len(in.Bytes))
	if in.DeclaredSize > size {
		size = in.DeclaredSize
	}
	if err := s.settings.Policy.Check(class, size); err != nil {
		metrics.ObserveUpload(class.String(), metrics.ResultRejected, 0)
		return files.Record{}, err
	}

	mime := media.ResolveMime(in.DeclaredMime, in.Bytes)
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = fmt.Sprintf("upload_%d.%s", s.now().Unix(), media.InferExtension(class, mime))
	}
	source := in.Source
	if source == "" {
		source = files.SourceUpload
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.settings.uploadTimeout(size))
	defer cancel()
	sent, err := s.remote.SendObject(sendCtx, credentials(cfg),
		telegram.Payload{Name: name, Mime: mime, Bytes: in.Bytes},
		class, Caption(name, size, s.now()))
	if err != nil {
		metrics.ObserveUpload(class.String(), metrics.ResultFailed, 0)
		s.logger.Warn("upload to telegram failed",
			slog.String("owner_id", ownerID), slog.String("class", class.String()),
			slog.Int64("size", size), slog.Any("error", err))
		return files.Record{}, err
	}
	metrics.ObserveUpload(sent.Class.String(), metrics.ResultOK, size)

	rec := files.Record{
		OwnerID:         ownerID,
		DisplayName:     name,
		ByteSize:        size,
		MediaClass:      sent.Class,
		MimeType:        mime,
		RemoteObjectID:  sent.RemoteObjectID,
		RemoteMessageID: int64(sent.RemoteMessageID),
		ChannelRef:      cfg.ChannelRef,
		Source:          source,
	}
	return s.register(ctx, rec), nil
}

func (s *UploadService) register(ctx context.Context, rec files.Record) files.Record {
	stored, err := s.registry.Insert(ctx, rec)
	if err == nil {
		return stored
	}
	if errors.Is(err, files.ErrDuplicateKey) {
		existing, findErr := s.registry.FindByOwnerAndRemoteID(ctx, rec.OwnerID, rec.RemoteObjectID)
		if findErr == nil {
			return existing
		}
		err = findErr
	}
	s.logger.Error("register uploaded file failed",
		slog.String("owner_id", rec.OwnerID),
		slog.String("remote_object_id", rec.RemoteObjectID),
		slog.Any("error", err))
	rec.ID = ""
	rec.CreatedAt = s.now().UTC()
	return rec
}

// Caption is the message text stored next to an uploaded object.
func Caption(name string, size int64, at time.Time) string {
	return fmt.Sprintf("📎 %s\n💾 Size: %s\n⏰ Uploaded: %s", name, media.HumanSize(size), at.UTC().Format("2006-01-02 15:04:05 UTC"))
}
