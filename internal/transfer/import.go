package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/media"
)

// ImportInput names a public URL to copy into the owner's channel.
type ImportInput struct {
	OwnerID  string
	URL      string
	FileName string
}

// Importer downloads a remote URL and hands it to the upload pipeline.
type Importer struct {
	logger     *slog.Logger
	uploads    *UploadService
	httpClient *http.Client
	maxBytes   int64
	settings   Settings
	checkAddr  func(netip.Addr) error
}

// NewImporter creates an Importer. A nil client selects NewImportHTTPClient,
// which refuses to dial non-public addresses. Literal IP hosts are checked
// before any request regardless of the client.
func NewImporter(log *slog.Logger, uploads *UploadService, httpClient *http.Client, settings Settings) *Importer {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = NewImportHTTPClient()
	}
	maxBytes := settings.ImportMaxBytes
	if maxBytes <= 0 {
		maxBytes = settings.Policy.GeneralCeilingBytes
	}
	return &Importer{
		logger:     log.With(slog.String("service", "import")),
		uploads:    uploads,
		httpClient: httpClient,
		maxBytes:   maxBytes,
		settings:   settings,
		checkAddr:  checkPublicAddr,
	}
}

// Import checks the advertised size with HEAD, downloads with a bounded read
// and uploads the result with Source=import.
func (i *Importer) Import(ctx context.Context, in ImportInput) (files.Record, error) {
	target, err := parseImportURL(in.URL)
	if err != nil {
		return files.Record{}, err
	}
	if err := checkLiteralHost(target, i.checkAddr); err != nil {
		return files.Record{}, err
	}
	name := strings.TrimSpace(in.FileName)
	if name == "" {
		name = fileNameFromURL(target)
	}
	if _, err := i.uploads.configs.GetActive(ctx, in.OwnerID); err != nil {
		return files.Record{}, err
	}

	data, mime, err := i.download(ctx, target, name)
	if err != nil {
		return files.Record{}, err
	}
	i.logger.Info("imported url",
		slog.String("owner_id", in.OwnerID), slog.String("host", target.Host), slog.Int("bytes", len(data)))

	return i.uploads.Upload(ctx, UploadInput{
		OwnerID:      in.OwnerID,
		DisplayName:  name,
		DeclaredSize: int64(len(data)),
		DeclaredMime: mime,
		Bytes:        data,
		Source:       files.SourceImport,
	})
}

func (i *Importer) download(ctx context.Context, target *url.URL, name string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.settings.TransferTimeout)
	defer cancel()

	if size, ok := i.head(ctx, target.String()); ok && size > i.maxBytes {
		return nil, "", &PayloadTooLargeError{Class: media.ClassifyUpload("", name), Size: size, Ceiling: i.maxBytes}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build import request: %w", err)
	}
	resp, err := i.httpClient.Do(req)
	if errors.Is(err, ErrInvalidURL) {
		return nil, "", ErrInvalidURL
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: source responded %s", ErrDownloadFailed, resp.Status)
	}
	data, err := media.ReadAllWithLimit(resp.Body, i.maxBytes)
	if errors.Is(err, media.ErrReadLimitExceeded) {
		return nil, "", &PayloadTooLargeError{Class: media.ClassifyUpload("", name), Ceiling: i.maxBytes}
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// head returns the advertised Content-Length. Servers that refuse HEAD are
// left to the bounded GET.
func (i *Importer) head(ctx context.Context, target string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, false
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.ContentLength < 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

func parseImportURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}
	return u, nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// checkPublicAddr rejects addresses that reach the host or its private network.
func checkPublicAddr(ip netip.Addr) error {
	ip = ip.Unmap()
	if !ip.IsValid() ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		sharedAddressSpace.Contains(ip) {
		return fmt.Errorf("%w: %s is not a public address", ErrInvalidURL, ip)
	}
	return nil
}

func checkLiteralHost(u *url.URL, check func(netip.Addr) error) error {
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return ErrInvalidURL
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if err := check(ip); err != nil {
		return ErrInvalidURL
	}
	return nil
}

// NewImportHTTPClient returns a client for fetching user-supplied URLs. Every
// dial is checked after DNS resolution, proxies from the environment are
// ignored and redirects are re-validated.
func NewImportHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl(checkPublicAddr),
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Transport:     transport,
		CheckRedirect: checkImportRedirect(checkPublicAddr),
	}
}

func dialControl(check func(netip.Addr) error) func(network, address string, _ syscall.RawConn) error {
	return func(network, address string, _ syscall.RawConn) error {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidURL, err)
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidURL, err)
		}
		return check(ip)
	}
}

const maxImportRedirects = 10

func checkImportRedirect(check func(netip.Addr) error) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxImportRedirects {
			return fmt.Errorf("%w: stopped after %d redirects", ErrDownloadFailed, maxImportRedirects)
		}
		target, err := parseImportURL(req.URL.String())
		if err != nil {
			return err
		}
		return checkLiteralHost(target, check)
	}
}

func fileNameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "download"
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return base
}
