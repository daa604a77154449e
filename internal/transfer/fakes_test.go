package transfer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/media"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/telegram"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() Settings {
	return Settings{
		Policy:          media.Policy{GeneralCeilingBytes: 1000, ImageCeilingBytes: 100},
		ProxyThreshold:  500,
		MetadataTimeout: time.Second,
		TransferTimeout: 5 * time.Second,
		ImportMaxBytes:  1000,
	}
}

type fakeConfigs map[string]owners.ChannelConfig

func (f fakeConfigs) GetActive(_ context.Context, ownerID string) (owners.ChannelConfig, error) {
	cfg, ok := f[ownerID]
	if !ok {
		return owners.ChannelConfig{}, owners.ErrNotConfigured
	}
	return cfg, nil
}

func configuredOwner() fakeConfigs {
	return fakeConfigs{"owner-1": {ID: "cfg", OwnerID: "owner-1", BotToken: "TOKEN", ChannelRef: "@store", Active: true}}
}

type fakeRegistry struct {
	mu        sync.Mutex
	records   map[string]files.Record
	insertErr error
	inserts   int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: map[string]files.Record{}}
}

func (f *fakeRegistry) Insert(_ context.Context, rec files.Record) (files.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return files.Record{}, f.insertErr
	}
	for _, existing := range f.records {
		if existing.OwnerID == rec.OwnerID && existing.RemoteObjectID == rec.RemoteObjectID {
			return files.Record{}, files.ErrDuplicateKey
		}
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeRegistry) FindByOwnerAndRemoteID(_ context.Context, ownerID, remoteObjectID string) (files.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.OwnerID == ownerID && rec.RemoteObjectID == remoteObjectID {
			return rec, nil
		}
	}
	return files.Record{}, files.ErrNotFound
}

func (f *fakeRegistry) Get(_ context.Context, ownerID, id string) (files.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.OwnerID != ownerID {
		return files.Record{}, files.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRegistry) put(rec files.Record) files.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	f.records[rec.ID] = rec
	return rec
}

type sendCall struct {
	creds    telegram.Credentials
	payload  telegram.Payload
	class    media.Class
	caption  string
	deadline time.Duration
}

type fakeRemote struct {
	mu       sync.Mutex
	sends    []sendCall
	fetches  []string
	sendFn   func(class media.Class) (telegram.SentObject, error)
	locateFn func(remoteObjectID string) (telegram.Location, error)
	fetchFn  func(url string, maxBytes int64) ([]byte, error)
}

func (f *fakeRemote) SendObject(ctx context.Context, creds telegram.Credentials, payload telegram.Payload, class media.Class, caption string) (telegram.SentObject, error) {
	call := sendCall{creds: creds, payload: payload, class: class, caption: caption}
	if deadline, ok := ctx.Deadline(); ok {
		call.deadline = time.Until(deadline)
	}
	f.mu.Lock()
	f.sends = append(f.sends, call)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(class)
	}
	return telegram.SentObject{RemoteObjectID: "REMOTE-1", RemoteMessageID: 10, ReportedSize: int64(len(payload.Bytes)), Class: class}, nil
}

func (f *fakeRemote) ResolveObjectLocation(_ context.Context, botToken, remoteObjectID string) (telegram.Location, error) {
	if f.locateFn != nil {
		return f.locateFn(remoteObjectID)
	}
	return telegram.Location{
		DirectURL:    telegram.BuildStreamURL("", botToken, "documents/"+remoteObjectID),
		FilePath:     "documents/" + remoteObjectID,
		ReportedSize: 10,
	}, nil
}

func (f *fakeRemote) BuildStreamURL(botToken, pathOrID string) string {
	return telegram.BuildStreamURL("", botToken, pathOrID)
}

func (f *fakeRemote) Fetch(_ context.Context, url string, maxBytes int64) ([]byte, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, url)
	f.mu.Unlock()
	if f.fetchFn != nil {
		return f.fetchFn(url, maxBytes)
	}
	return []byte("0123456789"), nil
}

func (f *fakeRemote) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}
