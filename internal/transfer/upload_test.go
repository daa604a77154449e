package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/media"
	"github.com/memohai/telecloud/internal/telegram"
)

func newUploadService(configs fakeConfigs, reg *fakeRegistry, remote *fakeRemote) *UploadService {
	svc := NewUploadService(discardLogger(), configs, reg, remote, testSettings())
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestUploadDocument(t *testing.T) {
	t.Parallel()
	reg, remote := newFakeRegistry(), &fakeRemote{}
	svc := newUploadService(configuredOwner(), reg, remote)

	rec, err := svc.Upload(context.Background(), UploadInput{
		OwnerID:      "owner-1",
		DisplayName:  "report.pdf",
		DeclaredSize: 5,
		DeclaredMime: "application/pdf",
		Bytes:        []byte("%PDF-"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "REMOTE-1", rec.RemoteObjectID)
	assert.Equal(t, int64(10), rec.RemoteMessageID)
	assert.Equal(t, media.ClassDocument, rec.MediaClass)
	assert.Equal(t, files.SourceUpload, rec.Source)
	assert.Equal(t, "@store", rec.ChannelRef)

	require.Len(t, remote.sends, 1)
	call := remote.sends[0]
	assert.Equal(t, telegram.Credentials{BotToken: "TOKEN", ChannelRef: "@store"}, call.creds)
	assert.Contains(t, call.caption, "report.pdf")
	assert.Contains(t, call.caption, "2026-05-01 12:00:00 UTC")
}

func TestUploadNotConfigured(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{}
	svc := newUploadService(fakeConfigs{}, newFakeRegistry(), remote)

	_, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: "a.txt", Bytes: []byte("x")})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	assert.Zero(t, remote.sendCount())
}

func TestUploadSizePolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		file     string
		mime     string
		declared int64
		actual   int
		wantErr  bool
		ceiling  int64
	}{
		{name: "image at ceiling", file: "a.png", mime: "image/png", actual: 100},
		{name: "image over ceiling", file: "a.png", mime: "image/png", actual: 101, wantErr: true, ceiling: 100},
		{name: "image by extension over ceiling", file: "a.jpg", actual: 150, wantErr: true, ceiling: 100},
		{name: "document under general ceiling", file: "a.bin", actual: 900},
		{name: "declared size wins", file: "a.bin", declared: 1001, actual: 10, wantErr: true, ceiling: 1000},
		{name: "actual size wins", file: "a.bin", declared: 1, actual: 1001, wantErr: true, ceiling: 1000},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			remote := &fakeRemote{}
			svc := newUploadService(configuredOwner(), newFakeRegistry(), remote)
			_, err := svc.Upload(context.Background(), UploadInput{
				OwnerID:      "owner-1",
				DisplayName:  tc.file,
				DeclaredMime: tc.mime,
				DeclaredSize: tc.declared,
				Bytes:        bytes.Repeat([]byte{1}, tc.actual),
			})
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			var tooLarge *PayloadTooLargeError
			require.ErrorAs(t, err, &tooLarge)
			assert.ErrorIs(t, err, ErrPayloadTooLarge)
			assert.Equal(t, tc.ceiling, tooLarge.Ceiling)
			assert.Zero(t, remote.sendCount(), "no network call on policy violation")
		})
	}
}

func TestUploadClassDispatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		file string
		mime string
		want media.Class
	}{
		{file: "clip.mkv", want: media.ClassVideo},
		{file: "song", mime: "audio/mpeg", want: media.ClassAudio},
		{file: "pic.webp", want: media.ClassImage},
		{file: "notes.txt", mime: "text/plain", want: media.ClassDocument},
	}
	for _, tc := range cases {
		remote := &fakeRemote{}
		svc := newUploadService(configuredOwner(), newFakeRegistry(), remote)
		_, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: tc.file, DeclaredMime: tc.mime, Bytes: []byte("abc")})
		require.NoError(t, err)
		require.Len(t, remote.sends, 1)
		if remote.sends[0].class != tc.want {
			t.Fatalf("%s: sent as %s, want %s", tc.file, remote.sends[0].class, tc.want)
		}
	}
}

func TestUploadTimeoutSelection(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.Policy.GeneralCeilingBytes = 4 << 20

	remote := &fakeRemote{}
	svc := NewUploadService(discardLogger(), configuredOwner(), newFakeRegistry(), remote, settings)

	_, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: "small.bin", Bytes: make([]byte, 1<<20)})
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: "big.bin", Bytes: make([]byte, (1<<20)+1)})
	require.NoError(t, err)

	require.Len(t, remote.sends, 2)
	assert.LessOrEqual(t, remote.sends[0].deadline, settings.MetadataTimeout)
	assert.Greater(t, remote.sends[1].deadline, settings.MetadataTimeout)
	assert.LessOrEqual(t, remote.sends[1].deadline, settings.TransferTimeout)
}

func TestUploadRemoteErrorsPassThrough(t *testing.T) {
	t.Parallel()

	for _, remoteErr := range []error{ErrRemoteQuotaExceeded, ErrRemoteRejected, ErrRemoteTimeout} {
		reg := newFakeRegistry()
		remote := &fakeRemote{sendFn: func(media.Class) (telegram.SentObject, error) {
			return telegram.SentObject{}, fmt.Errorf("sendDocument: %w", remoteErr)
		}}
		svc := newUploadService(configuredOwner(), reg, remote)
		_, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: "a.bin", Bytes: []byte("x")})
		if !errors.Is(err, remoteErr) {
			t.Fatalf("expected %v, got %v", remoteErr, err)
		}
		assert.Zero(t, reg.inserts)
	}
}

func TestUploadDuplicateReturnsExisting(t *testing.T) {
	t.Parallel()
	reg := newFakeRegistry()
	existing := reg.put(files.Record{OwnerID: "owner-1", RemoteObjectID: "REMOTE-1", DisplayName: "from-webhook", Source: files.SourceWebhook})
	svc := newUploadService(configuredOwner(), reg, &fakeRemote{})

	rec, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: "a.bin", Bytes: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, rec.ID)
	assert.Equal(t, "from-webhook", rec.DisplayName)
}

func TestUploadRegistryFailureStillSucceeds(t *testing.T) {
	t.Parallel()
	reg := newFakeRegistry()
	reg.insertErr = errors.New("connection reset")
	svc := newUploadService(configuredOwner(), reg, &fakeRemote{})

	rec, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: "a.bin", Bytes: []byte("x")})
	require.NoError(t, err)
	assert.Empty(t, rec.ID)
	assert.Equal(t, "REMOTE-1", rec.RemoteObjectID)
}

func TestUploadRejectsEmptyPayload(t *testing.T) {
	t.Parallel()
	svc := newUploadService(configuredOwner(), newFakeRegistry(), &fakeRemote{})
	_, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DisplayName: "a.bin"})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestUploadSynthesizesName(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{}
	svc := newUploadService(configuredOwner(), newFakeRegistry(), remote)
	rec, err := svc.Upload(context.Background(), UploadInput{OwnerID: "owner-1", DeclaredMime: "image/png", Bytes: []byte{1}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.DisplayName, "upload_"), rec.DisplayName)
	assert.True(t, strings.HasSuffix(rec.DisplayName, ".png"), rec.DisplayName)
}

func TestCaption(t *testing.T) {
	t.Parallel()
	got := Caption("a.pdf", 3*1024*1024, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	want := "📎 a.pdf\n💾 Size: 3.00 MB\n⏰ Uploaded: 2026-01-02 03:04:05 UTC"
	if got != want {
		t.Fatalf("Caption() = %q, want %q", got, want)
	}
}
