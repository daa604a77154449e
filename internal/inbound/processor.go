// Package inbound turns Telegram webhook updates into file records.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/media"
	"github.com/memohai/telecloud/internal/metrics"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/telegram"
)

// State is where an update ended up.
type State string

const (
	StatePersisted State = "persisted"
	StateIgnored   State = "ignored"
)

// Reasons attached to ignored updates.
const (
	ReasonNoMessage    = "no_message"
	ReasonNoFile       = "no_file"
	ReasonUnconfigured = "unconfigured_channel"
	ReasonDuplicate    = "duplicate"
)

// Outcome reports what happened to one update. Both states are success for
// the webhook; only a returned error is a failure.
type Outcome struct {
	State  State        `json:"state"`
	Reason string       `json:"reason,omitempty"`
	Record files.Record `json:"-"`
}

// OwnerLookup maps a source chat to its owner.
type OwnerLookup interface {
	FindActiveByChannel(ctx context.Context, refs ...string) (owners.ChannelConfig, error)
}

// RecordStore is the part of the registry the processor writes to.
type RecordStore interface {
	Insert(ctx context.Context, rec files.Record) (files.Record, error)
	FindByOwnerAndRemoteID(ctx context.Context, ownerID, remoteObjectID string) (files.Record, error)
}

// Processor handles updates delivered at least once and in any order.
// Idempotence comes from the registry key on (owner, remote object).
type Processor struct {
	logger   *slog.Logger
	owners   OwnerLookup
	registry RecordStore
}

// NewProcessor creates a Processor.
func NewProcessor(log *slog.Logger, lookup OwnerLookup, registry RecordStore) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		logger:   log.With(slog.String("component", "inbound")),
		owners:   lookup,
		registry: registry,
	}
}

// Process records the file carried by update, if any.
func (p *Processor) Process(ctx context.Context, update tgbotapi.Update) (Outcome, error) {
	out, err := p.process(ctx, update)
	if err != nil {
		metrics.ObserveWebhook("failed", "")
		return out, err
	}
	metrics.ObserveWebhook(string(out.State), out.Reason)
	return out, nil
}

func (p *Processor) process(ctx context.Context, update tgbotapi.Update) (Outcome, error) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return ignored(ReasonNoMessage), nil
	}
	ref, ok := telegram.ExtractFile(msg)
	if !ok {
		return ignored(ReasonNoFile), nil
	}

	cfg, err := p.owners.FindActiveByChannel(ctx, chatRefs(msg.Chat)...)
	if errors.Is(err, owners.ErrNotConfigured) {
		p.logger.Debug("update from unconfigured chat", slog.Int64("update_id", int64(update.UpdateID)))
		return ignored(ReasonUnconfigured), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup owner: %w", err)
	}

	if _, err := p.registry.FindByOwnerAndRemoteID(ctx, cfg.OwnerID, ref.FileID); err == nil {
		return ignored(ReasonDuplicate), nil
	} else if !errors.Is(err, files.ErrNotFound) {
		return Outcome{}, fmt.Errorf("dedup lookup: %w", err)
	}

	rec, err := p.registry.Insert(ctx, files.Record{
		OwnerID:         cfg.OwnerID,
		DisplayName:     DisplayName(ref),
		ByteSize:        ref.FileSize,
		MediaClass:      ref.Class,
		MimeType:        ref.MimeType,
		RemoteObjectID:  ref.FileID,
		RemoteMessageID: int64(msg.MessageID),
		ChannelRef:      cfg.ChannelRef,
		Source:          files.SourceWebhook,
	})
	if errors.Is(err, files.ErrDuplicateKey) {
		// A concurrent delivery or upload won the insert.
		return ignored(ReasonDuplicate), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("insert record: %w", err)
	}
	p.logger.Info("registered inbound file",
		slog.String("owner_id", rec.OwnerID),
		slog.String("class", rec.MediaClass.String()),
		slog.Int64("size", rec.ByteSize))
	return Outcome{State: StatePersisted, Record: rec}, nil
}

func ignored(reason string) Outcome {
	return Outcome{State: StateIgnored, Reason: reason}
}

func chatRefs(chat *tgbotapi.Chat) []string {
	if chat == nil {
		return nil
	}
	refs := []string{strconv.FormatInt(chat.ID, 10)}
	if name := strings.TrimSpace(chat.UserName); name != "" {
		refs = append(refs, "@"+strings.TrimPrefix(name, "@"))
	}
	return refs
}

// DisplayName returns the reported file name or synthesizes
// "{kind}_{file_id}.{ext}", where photos use the kind "photo".
func DisplayName(ref telegram.FileRef) string {
	if name := strings.TrimSpace(ref.FileName); name != "" {
		return name
	}
	kind := ref.Class.String()
	if ref.Class == media.ClassImage {
		kind = "photo"
	}
	return fmt.Sprintf("%s_%s.%s", kind, ref.FileID, media.InferExtension(ref.Class, ref.MimeType))
}
