package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/telecloud/internal/auth"
	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/media"
	"github.com/memohai/telecloud/internal/transfer"
)

// defaultJSONUploadCeiling bounds decoded JSON uploads when no maximum is set.
const defaultJSONUploadCeiling = 64 << 20

type Uploader interface {
	Upload(ctx context.Context, in transfer.UploadInput) (files.Record, error)
}

type URLImporter interface {
	Import(ctx context.Context, in transfer.ImportInput) (files.Record, error)
}

type Resolver interface {
	Resolve(ctx context.Context, ownerID, fileID string) (transfer.Resolution, error)
	ResolveRemote(ctx context.Context, ownerID, remoteObjectID string) (transfer.Resolution, error)
}

// Catalog is the owner-facing side of the file registry.
type Catalog interface {
	ListByOwner(ctx context.Context, ownerID string, opts files.ListOptions) ([]files.Record, error)
	ListTrashed(ctx context.Context, ownerID string, opts files.ListOptions) ([]files.Record, error)
	Trash(ctx context.Context, ownerID, id string) error
	Restore(ctx context.Context, ownerID, id string) error
	Purge(ctx context.Context, ownerID, id string) error
	Stats(ctx context.Context, ownerID string) ([]files.ClassStats, error)
}

type FilesHandler struct {
	logger   *slog.Logger
	uploads  Uploader
	resolver Resolver
	importer URLImporter
	catalog  Catalog
	// maxUpload bounds how much of a request body is buffered.
	maxUpload int64
}

type UploadRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
	FileData string `json:"fileData"`
}

type UploadResponse struct {
	Success   bool         `json:"success"`
	FileID    string       `json:"fileId"`
	MessageID int64        `json:"messageId"`
	FileName  string       `json:"fileName"`
	FileSize  int64        `json:"fileSize"`
	FileType  media.Class  `json:"fileType"`
	Record    files.Record `json:"record"`
}

type ResolveRequest struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

type ResolveResponse struct {
	Success     bool   `json:"success"`
	Mode        string `json:"mode"`
	IsStreamURL bool   `json:"isStreamUrl,omitempty"`
	StreamURL   string `json:"streamUrl,omitempty"`
	FileData    string `json:"fileData,omitempty"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
}

type ImportRequest struct {
	URL      string `json:"url" validate:"required,url"`
	FileName string `json:"filename"`
}

type ListResponse struct {
	Items  []files.Record `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type StatsResponse struct {
	Classes    []files.ClassStats `json:"classes"`
	TotalCount int64              `json:"totalCount"`
	TotalBytes int64              `json:"totalBytes"`
}

func NewFilesHandler(log *slog.Logger, uploads Uploader, resolver Resolver, importer URLImporter, catalog Catalog, maxUpload int64) *FilesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FilesHandler{
		logger:    log.With(slog.String("handler", "files")),
		uploads:   uploads,
		resolver:  resolver,
		importer:  importer,
		catalog:   catalog,
		maxUpload: maxUpload,
	}
}

func (h *FilesHandler) Register(e *echo.Echo) {
	group := e.Group("/files")
	group.POST("/upload", h.Upload)
	group.POST("/resolve", h.Resolve)
	group.POST("/import", h.Import)
	group.GET("", h.List)
	group.GET("/trash", h.ListTrash)
	group.GET("/stats", h.Stats)
	group.GET("/:id/content", h.Content)
	group.DELETE("/:id", h.Delete)
	group.POST("/:id/restore", h.Restore)
	group.DELETE("/:id/purge", h.Purge)
}

// Upload godoc
// @Summary Upload a file to the owner's channel
// @Description Accepts multipart form data (file, fileType) or JSON with base64 fileData.
// @Tags files
// @Accept multipart/form-data
// @Accept json
// @Param payload body UploadRequest false "JSON upload"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 412 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 504 {object} ErrorResponse
// @Router /files/upload [post]
func (h *FilesHandler) Upload(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	var in transfer.UploadInput
	if isMultipart(c.Request()) {
		in, err = h.readMultipart(c)
	} else {
		in, err = h.readJSONUpload(c)
	}
	if err != nil {
		return failure(c, err)
	}
	in.OwnerID = ownerID
	in.Source = files.SourceUpload

	rec, err := h.uploads.Upload(c.Request().Context(), in)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, UploadResponse{
		Success:   true,
		FileID:    rec.RemoteObjectID,
		MessageID: rec.RemoteMessageID,
		FileName:  rec.DisplayName,
		FileSize:  rec.ByteSize,
		FileType:  rec.MediaClass,
		Record:    rec,
	})
}

func (h *FilesHandler) readMultipart(c echo.Context) (transfer.UploadInput, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return transfer.UploadInput{}, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	declaredMime := strings.TrimSpace(c.FormValue("fileType"))
	if declaredMime == "" {
		declaredMime = header.Header.Get(echo.HeaderContentType)
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		class := media.ClassifyUpload(declaredMime, header.Filename)
		return transfer.UploadInput{}, &transfer.PayloadTooLargeError{Class: class, Size: header.Size, Ceiling: h.maxUpload}
	}
	src, err := header.Open()
	if err != nil {
		return transfer.UploadInput{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	data, err := h.readLimited(src, declaredMime, header.Filename)
	if err != nil {
		return transfer.UploadInput{}, err
	}
	return transfer.UploadInput{
		DisplayName:  header.Filename,
		DeclaredSize: header.Size,
		DeclaredMime: declaredMime,
		Bytes:        data,
	}, nil
}

func (h *FilesHandler) readJSONUpload(c echo.Context) (transfer.UploadInput, error) {
	ceiling := h.maxUpload
	if ceiling <= 0 {
		ceiling = defaultJSONUploadCeiling
	}
	// base64 inflates by 4/3; leave room for the other fields.
	limit := (ceiling+2)/3*4 + 64*1024
	body, err := media.ReadAllWithLimit(c.Request().Body, limit)
	if errors.Is(err, media.ErrReadLimitExceeded) {
		return transfer.UploadInput{}, &transfer.PayloadTooLargeError{Class: media.ClassDocument, Ceiling: ceiling}
	}
	if err != nil {
		return transfer.UploadInput{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return transfer.UploadInput{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.FileData) == "" {
		return transfer.UploadInput{}, echo.NewHTTPError(http.StatusBadRequest, "fileData is required")
	}
	data, err := base64.StdEncoding.DecodeString(stripDataURL(req.FileData))
	if err != nil {
		return transfer.UploadInput{}, echo.NewHTTPError(http.StatusBadRequest, "invalid file data format")
	}
	return transfer.UploadInput{
		DisplayName:  req.FileName,
		DeclaredSize: req.FileSize,
		DeclaredMime: req.FileType,
		Bytes:        data,
	}, nil
}

func (h *FilesHandler) readLimited(src io.Reader, declaredMime, name string) ([]byte, error) {
	if h.maxUpload <= 0 {
		return io.ReadAll(src)
	}
	data, err := media.ReadAllWithLimit(src, h.maxUpload)
	if errors.Is(err, media.ErrReadLimitExceeded) {
		class := media.ClassifyUpload(declaredMime, name)
		return nil, &transfer.PayloadTooLargeError{Class: class, Ceiling: h.maxUpload}
	}
	return data, err
}

// Resolve godoc
// @Summary Resolve a stored file for download
// @Description Small files are proxied as base64; large files return a direct stream URL.
// @Tags files
// @Param payload body ResolveRequest true "Remote file id"
// @Success 200 {object} ResolveResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 412 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 504 {object} ErrorResponse
// @Router /files/resolve [post]
func (h *FilesHandler) Resolve(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, echo.NewHTTPError(http.StatusBadRequest, err.Error()))
	}
	req.FileID = strings.TrimSpace(req.FileID)
	if req.FileID == "" {
		return failure(c, echo.NewHTTPError(http.StatusBadRequest, "fileId is required"))
	}
	res, err := h.resolver.ResolveRemote(c.Request().Context(), ownerID, req.FileID)
	if err != nil {
		return failure(c, err)
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = res.Record.DisplayName
	}
	resp := ResolveResponse{
		Success:  true,
		Mode:     string(res.Mode),
		FileName: name,
		FileSize: res.Size,
	}
	if res.Mode == transfer.ModeRedirect {
		resp.IsStreamURL = true
		resp.StreamURL = res.URL
	} else {
		resp.FileData = base64.StdEncoding.EncodeToString(res.Bytes)
	}
	return c.JSON(http.StatusOK, resp)
}

// Content godoc
// @Summary Download file content
// @Description Writes the bytes for small files, honoring Range, and redirects to the stream URL otherwise.
// @Tags files
// @Param id path string true "File record ID"
// @Param Range header string false "Byte range"
// @Success 200 {file} binary
// @Success 206 {file} binary
// @Success 307 "redirect to stream url"
// @Failure 404 {object} echo.HTTPError
// @Failure 412 {object} echo.HTTPError
// @Failure 502 {object} echo.HTTPError
// @Router /files/{id}/content [get]
func (h *FilesHandler) Content(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	res, err := h.resolver.Resolve(c.Request().Context(), ownerID, c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	if res.Mode == transfer.ModeRedirect {
		return c.Redirect(http.StatusTemporaryRedirect, res.URL)
	}
	contentType := res.Record.MimeType
	if contentType == "" {
		contentType = media.DefaultMime(res.Record.MediaClass)
	}
	if res.Record.DisplayName != "" {
		c.Response().Header().Set(echo.HeaderContentDisposition,
			mime.FormatMediaType("attachment", map[string]string{"filename": res.Record.DisplayName}))
	}
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	http.ServeContent(c.Response(), c.Request(), res.Record.DisplayName, res.Record.CreatedAt, bytes.NewReader(res.Bytes))
	return nil
}

// Import godoc
// @Summary Import a file from a URL
// @Description Downloads the URL and stores it through the upload pipeline.
// @Tags files
// @Param payload body ImportRequest true "Source URL"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 412 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /files/import [post]
func (h *FilesHandler) Import(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, echo.NewHTTPError(http.StatusBadRequest, err.Error()))
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, err)
	}
	rec, err := h.importer.Import(c.Request().Context(), transfer.ImportInput{
		OwnerID:  ownerID,
		URL:      req.URL,
		FileName: req.FileName,
	})
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, UploadResponse{
		Success:   true,
		FileID:    rec.RemoteObjectID,
		MessageID: rec.RemoteMessageID,
		FileName:  rec.DisplayName,
		FileSize:  rec.ByteSize,
		FileType:  rec.MediaClass,
		Record:    rec,
	})
}

// List godoc
// @Summary List files
// @Tags files
// @Param limit query int false "Page size (default 50, max 500)"
// @Param offset query int false "Offset"
// @Success 200 {object} ListResponse
// @Router /files [get]
func (h *FilesHandler) List(c echo.Context) error {
	return h.list(c, h.catalog.ListByOwner)
}

// ListTrash godoc
// @Summary List trashed files
// @Tags files
// @Param limit query int false "Page size (default 50, max 500)"
// @Param offset query int false "Offset"
// @Success 200 {object} ListResponse
// @Router /files/trash [get]
func (h *FilesHandler) ListTrash(c echo.Context) error {
	return h.list(c, h.catalog.ListTrashed)
}

func (h *FilesHandler) list(c echo.Context, fetch func(context.Context, string, files.ListOptions) ([]files.Record, error)) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	opts, err := parseListOptions(c)
	if err != nil {
		return err
	}
	items, err := fetch(c.Request().Context(), ownerID, opts)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []files.Record{}
	}
	limit, offset := opts.Page()
	return c.JSON(http.StatusOK, ListResponse{Items: items, Limit: limit, Offset: offset})
}

// Delete godoc
// @Summary Move a file to trash
// @Tags files
// @Param id path string true "File record ID"
// @Success 204 "No Content"
// @Failure 404 {object} echo.HTTPError
// @Router /files/{id} [delete]
func (h *FilesHandler) Delete(c echo.Context) error {
	return h.mutate(c, h.catalog.Trash)
}

// Restore godoc
// @Summary Restore a trashed file
// @Tags files
// @Param id path string true "File record ID"
// @Success 204 "No Content"
// @Failure 404 {object} echo.HTTPError
// @Router /files/{id}/restore [post]
func (h *FilesHandler) Restore(c echo.Context) error {
	return h.mutate(c, h.catalog.Restore)
}

// Purge godoc
// @Summary Permanently remove a file record
// @Description The message stays in the Telegram channel.
// @Tags files
// @Param id path string true "File record ID"
// @Success 204 "No Content"
// @Failure 404 {object} echo.HTTPError
// @Router /files/{id}/purge [delete]
func (h *FilesHandler) Purge(c echo.Context) error {
	return h.mutate(c, h.catalog.Purge)
}

func (h *FilesHandler) mutate(c echo.Context, op func(context.Context, string, string) error) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	if err := op(c.Request().Context(), ownerID, id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats godoc
// @Summary Storage usage per media class
// @Tags files
// @Success 200 {object} StatsResponse
// @Router /files/stats [get]
func (h *FilesHandler) Stats(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	stats, err := h.catalog.Stats(c.Request().Context(), ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	resp := StatsResponse{Classes: stats}
	if resp.Classes == nil {
		resp.Classes = []files.ClassStats{}
	}
	for _, s := range stats {
		resp.TotalCount += s.Count
		resp.TotalBytes += s.Bytes
	}
	return c.JSON(http.StatusOK, resp)
}

func parseListOptions(c echo.Context) (files.ListOptions, error) {
	var opts files.ListOptions
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return opts, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		opts.Limit = v
	}
	if raw := strings.TrimSpace(c.QueryParam("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return opts, echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		opts.Offset = v
	}
	return opts, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))
	return err == nil && mediaType == echo.MIMEMultipartForm
}

// stripDataURL accepts both raw base64 and "data:<mime>;base64,<data>".
func stripDataURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ","); idx >= 0 {
			return raw[idx+1:]
		}
	}
	return raw
}
