// Package files persists the record of every object stored in Telegram.
package files

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/memohai/telecloud/internal/db"
	"github.com/memohai/telecloud/internal/media"
)

var (
	ErrNotFound     = errors.New("file record not found")
	ErrDuplicateKey = errors.New("file record already exists for owner and remote object")
)

// Source records how a file entered the registry.
type Source string

const (
	SourceUpload  Source = "upload"
	SourceWebhook Source = "webhook"
	SourceImport  Source = "import"
)

// Record is a registered file.
type Record struct {
	ID              string      `json:"id"`
	OwnerID         string      `json:"ownerId"`
	DisplayName     string      `json:"fileName"`
	ByteSize        int64       `json:"fileSize"`
	MediaClass      media.Class `json:"fileType"`
	MimeType        string      `json:"mimeType"`
	RemoteObjectID  string      `json:"telegramFileId"`
	RemoteMessageID int64       `json:"telegramMessageId"`
	ChannelRef      string      `json:"channelRef"`
	Source          Source      `json:"source"`
	CreatedAt       time.Time   `json:"createdAt"`
	DeletedAt       *time.Time  `json:"deletedAt,omitempty"`
}

// ListOptions pages a listing. Zero values select the first 50 rows.
type ListOptions struct {
	Limit  int
	Offset int
}

// ClassStats aggregates live records per media class.
type ClassStats struct {
	MediaClass media.Class `json:"fileType"`
	Count      int64       `json:"count"`
	Bytes      int64       `json:"bytes"`
}

// Registry reads and writes telegram_files rows.
type Registry struct {
	db  db.DBTX
	now func() time.Time
}

// NewRegistry creates a Registry backed by conn.
func NewRegistry(conn db.DBTX) *Registry {
	return &Registry{db: conn, now: time.Now}
}

const recordColumns = `id::text, owner_id, display_name, byte_size, media_class, mime_type,
	remote_object_id, remote_message_id, channel_ref, source, created_at, deleted_at`

// Insert assigns an id and creation time to rec and stores it. A second
// record for the same owner and remote object fails with ErrDuplicateKey.
func (r *Registry) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.OwnerID = strings.TrimSpace(rec.OwnerID)
	rec.RemoteObjectID = strings.TrimSpace(rec.RemoteObjectID)
	if rec.OwnerID == "" || rec.RemoteObjectID == "" {
		return Record{}, fmt.Errorf("owner id and remote object id are required")
	}
	if rec.ByteSize < 0 {
		return Record{}, fmt.Errorf("byte size must not be negative")
	}
	if !rec.MediaClass.Valid() {
		rec.MediaClass = media.ClassUnknown
	}
	if rec.Source == "" {
		rec.Source = SourceUpload
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = r.now().UTC()
	rec.DeletedAt = nil

	_, err := r.db.Exec(ctx, `INSERT INTO telegram_files (id, owner_id, display_name, byte_size, media_class, mime_type,
		remote_object_id, remote_message_id, channel_ref, source, created_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL)`,
		rec.ID, rec.OwnerID, rec.DisplayName, rec.ByteSize, string(rec.MediaClass), rec.MimeType,
		rec.RemoteObjectID, rec.RemoteMessageID, rec.ChannelRef, string(rec.Source), rec.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Record{}, ErrDuplicateKey
		}
		return Record{}, fmt.Errorf("insert file record: %w", err)
	}
	return rec, nil
}

// FindByOwnerAndRemoteID returns the record for a remote object, including
// trashed ones, so duplicate detection sees every stored row.
func (r *Registry) FindByOwnerAndRemoteID(ctx context.Context, ownerID, remoteObjectID string) (Record, error) {
	row := r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM telegram_files
		WHERE owner_id = $1 AND remote_object_id = $2`, ownerID, remoteObjectID)
	return scanOne(row)
}

// Get returns a live or trashed record owned by ownerID.
func (r *Registry) Get(ctx context.Context, ownerID, id string) (Record, error) {
	if !validID(id) {
		return Record{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM telegram_files
		WHERE owner_id = $1 AND id = $2`, ownerID, id)
	return scanOne(row)
}

// ListByOwner returns live records newest first.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]Record, error) {
	limit, offset := opts.Page()
	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+` FROM telegram_files
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return scanAll(rows)
}

// ListTrashed returns soft-deleted records, most recently trashed first.
func (r *Registry) ListTrashed(ctx context.Context, ownerID string, opts ListOptions) ([]Record, error) {
	limit, offset := opts.Page()
	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+` FROM telegram_files
		WHERE owner_id = $1 AND deleted_at IS NOT NULL
		ORDER BY deleted_at DESC, id DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trashed files: %w", err)
	}
	return scanAll(rows)
}

// Trash soft-deletes a live record.
func (r *Registry) Trash(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	return r.execOne(ctx, "trash file", `UPDATE telegram_files SET deleted_at = $3
		WHERE owner_id = $1 AND id = $2 AND deleted_at IS NULL`, ownerID, id, r.now().UTC())
}

// Restore moves a trashed record back to the live set.
func (r *Registry) Restore(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	return r.execOne(ctx, "restore file", `UPDATE telegram_files SET deleted_at = NULL
		WHERE owner_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, ownerID, id)
}

// Purge removes a trashed record permanently. The Telegram message is left
// in the channel.
func (r *Registry) Purge(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	return r.execOne(ctx, "purge file", `DELETE FROM telegram_files
		WHERE owner_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, ownerID, id)
}

// Stats counts live records and bytes per media class.
func (r *Registry) Stats(ctx context.Context, ownerID string) ([]ClassStats, error) {
	rows, err := r.db.Query(ctx, `SELECT media_class, COUNT(*), COALESCE(SUM(byte_size), 0)
		FROM telegram_files
		WHERE owner_id = $1 AND deleted_at IS NULL
		GROUP BY media_class
		ORDER BY media_class`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("file stats: %w", err)
	}
	defer rows.Close()
	var out []ClassStats
	for rows.Next() {
		var (
			class string
			item  ClassStats
		)
		if err := rows.Scan(&class, &item.Count, &item.Bytes); err != nil {
			return nil, fmt.Errorf("scan file stats: %w", err)
		}
		item.MediaClass = media.ParseClass(class)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *Registry) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Page returns the effective limit and offset: limit defaults to 50 and is
// capped at 500.
func (o ListOptions) Page() (int, int) {
	limit, offset := o.Limit, o.Offset
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanOne(row pgx.Row) (Record, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get file record: %w", err)
	}
	return rec, nil
}

func scanAll(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		class  string
		source string
	)
	if err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.DisplayName, &rec.ByteSize, &class, &rec.MimeType,
		&rec.RemoteObjectID, &rec.RemoteMessageID, &rec.ChannelRef, &source, &rec.CreatedAt, &rec.DeletedAt,
	); err != nil {
		return Record{}, err
	}
	rec.MediaClass = media.ParseClass(class)
	rec.Source = Source(source)
	return rec, nil
}
