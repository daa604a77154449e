package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/telecloud/internal/config"
	"github.com/memohai/telecloud/internal/telegram"
)

// botAPI is an in-memory Bot API: sendDocument stores the uploaded bytes,
// getFile reports them and the file endpoint serves them back.
type botAPI struct {
	token string

	mu       sync.Mutex
	objects  map[string][]byte
	requests int
	fetches  int
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests++
	b.mu.Unlock()

	switch {
	case r.URL.Path == "/bot"+b.token+"/sendDocument":
		b.sendDocument(w, r)
	case r.URL.Path == "/bot"+b.token+"/getFile":
		b.getFile(w, r)
	case strings.HasPrefix(r.URL.Path, "/file/bot"+b.token+"/documents/"):
		b.download(w, r)
	default:
		botError(w, http.StatusNotFound, "Not Found")
	}
}

func (b *botAPI) sendDocument(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		botError(w, http.StatusBadRequest, "Bad Request: expected multipart")
		return
	}
	var data []byte
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			botError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
			return
		}
		if part.FormName() == "document" {
			if data, err = io.ReadAll(part); err != nil {
				botError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
				return
			}
		}
	}
	if len(data) == 0 {
		botError(w, http.StatusBadRequest, "Bad Request: file must be non-empty")
		return
	}

	b.mu.Lock()
	id := fmt.Sprintf("DOC%d", len(b.objects)+1)
	b.objects[id] = data
	messageID := len(b.objects)
	b.mu.Unlock()

	botResult(w, fmt.Sprintf(`{"message_id":%d,"date":1,"chat":{"id":-100,"type":"channel"},"document":{"file_id":%q,"file_unique_id":"u%s","file_size":%d}}`,
		messageID, id, id, len(data)))
}

func (b *botAPI) getFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		botError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
		return
	}
	id := r.FormValue("file_id")
	b.mu.Lock()
	data, ok := b.objects[id]
	b.mu.Unlock()
	if !ok {
		botError(w, http.StatusBadRequest, "Bad Request: invalid file_id")
		return
	}
	botResult(w, fmt.Sprintf(`{"file_id":%q,"file_unique_id":"u%s","file_size":%d,"file_path":"documents/%s"}`, id, id, len(data), id))
}

func (b *botAPI) download(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.fetches++
	data, ok := b.objects[path.Base(r.URL.Path)]
	b.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (b *botAPI) counts() (requests, fetches int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests, b.fetches
}

func botResult(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
}

func botError(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":%q}`, status, description)
}

type roundTrip struct {
	api     *botAPI
	srv     *httptest.Server
	uploads *UploadService
	resolve *ResolveService
}

// newRoundTrip wires both pipelines to a real telegram.Client with the
// default storage settings.
func newRoundTrip(t *testing.T) *roundTrip {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	api := &botAPI{token: "TOKEN", objects: map[string][]byte{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := telegram.NewClient(discardLogger(), telegram.Options{
		APIEndpoint:  srv.URL + "/bot%s/%s",
		FileEndpoint: srv.URL + "/file/bot%s/%s",
		HTTPClient:   srv.Client(),
	})
	settings := SettingsFromConfig(cfg.Storage)
	reg := newFakeRegistry()
	return &roundTrip{
		api:     api,
		srv:     srv,
		uploads: NewUploadService(discardLogger(), configuredOwner(), reg, client, settings),
		resolve: NewResolveService(discardLogger(), configuredOwner(), reg, client, settings),
	}
}

func TestUploadThenResolveProxiesIdenticalBytes(t *testing.T) {
	t.Parallel()
	rt := newRoundTrip(t)
	payload := bytes.Repeat([]byte{0x00, 0xff, '%', 'P', 'D', 'F', '\n', 0x7f}, 4096)

	rec, err := rt.uploads.Upload(context.Background(), UploadInput{
		OwnerID:      "owner-1",
		DisplayName:  "report.pdf",
		DeclaredSize: int64(len(payload)),
		DeclaredMime: "application/pdf",
		Bytes:        payload,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "DOC1", rec.RemoteObjectID)

	res, err := rt.resolve.Resolve(context.Background(), "owner-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeProxy, res.Mode)
	assert.Empty(t, res.URL)
	if !bytes.Equal(payload, res.Bytes) {
		t.Fatalf("proxied bytes differ from upload: got %d bytes, want %d", len(res.Bytes), len(payload))
	}
	_, fetches := rt.api.counts()
	assert.Equal(t, 1, fetches)

	byRemote, err := rt.resolve.ResolveRemote(context.Background(), "owner-1", rec.RemoteObjectID)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, byRemote.Bytes))

	_, err = rt.resolve.Resolve(context.Background(), "owner-2", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadLargeDocumentThenResolveRedirects(t *testing.T) {
	t.Parallel()
	rt := newRoundTrip(t)
	payload := make([]byte, 30*1024*1024)

	rec, err := rt.uploads.Upload(context.Background(), UploadInput{
		OwnerID:      "owner-1",
		DisplayName:  "backup.zip",
		DeclaredSize: int64(len(payload)),
		DeclaredMime: "application/zip",
		Bytes:        payload,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), rec.ByteSize)

	res, err := rt.resolve.Resolve(context.Background(), "owner-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeRedirect, res.Mode)
	assert.Equal(t, rt.srv.URL+"/file/botTOKEN/documents/"+rec.RemoteObjectID, res.URL)
	assert.Nil(t, res.Bytes)
	_, fetches := rt.api.counts()
	assert.Zero(t, fetches)
}

func TestUploadOversizedImageNeverReachesTelegram(t *testing.T) {
	t.Parallel()
	rt := newRoundTrip(t)

	_, err := rt.uploads.Upload(context.Background(), UploadInput{
		OwnerID:      "owner-1",
		DisplayName:  "holiday.jpg",
		DeclaredMime: "image/jpeg",
		Bytes:        make([]byte, 15*1024*1024),
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	requests, _ := rt.api.counts()
	assert.Zero(t, requests)
}
