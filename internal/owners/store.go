// Package owners stores the bot credential and channel each owner uses as
// their blob store.
package owners

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/memohai/telecloud/internal/db"
)

var ErrNotConfigured = errors.New("telegram channel is not configured")

// ChannelConfig binds an owner to a bot token and storage channel.
type ChannelConfig struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	BotToken   string    `json:"-"`
	ChannelRef string    `json:"channelRef"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MarshalJSON adds a masked form of the bot token.
func (c ChannelConfig) MarshalJSON() ([]byte, error) {
	type plain ChannelConfig
	return json.Marshal(struct {
		plain
		BotToken string `json:"botToken"`
	}{plain: plain(c), BotToken: MaskToken(c.BotToken)})
}

// MaskToken keeps the bot id prefix and the last four characters.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	tail := ""
	if len(token) > 8 {
		tail = token[len(token)-4:]
	}
	head := ""
	if idx := strings.Index(token, ":"); idx > 0 {
		head = token[:idx+1]
	}
	return head + "****" + tail
}

// Store reads and writes owner_channel_configs rows.
type Store struct {
	db  db.TxDB
	now func() time.Time
}

// NewStore creates a Store backed by conn.
func NewStore(conn db.TxDB) *Store {
	return &Store{db: conn, now: time.Now}
}

const configColumns = `id::text, owner_id, bot_token, channel_ref, active, created_at, updated_at`

// GetActive returns the owner's active config or ErrNotConfigured.
func (s *Store) GetActive(ctx context.Context, ownerID string) (ChannelConfig, error) {
	row := s.db.QueryRow(ctx, `SELECT `+configColumns+` FROM owner_channel_configs
		WHERE owner_id = $1 AND active`, strings.TrimSpace(ownerID))
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChannelConfig{}, ErrNotConfigured
	}
	if err != nil {
		return ChannelConfig{}, fmt.Errorf("get channel config: %w", err)
	}
	return cfg, nil
}

// FindActiveByChannel returns the oldest active config whose channel matches
// any of refs. Channels may be stored as a numeric id or @username.
func (s *Store) FindActiveByChannel(ctx context.Context, refs ...string) (ChannelConfig, error) {
	cleaned := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			cleaned = append(cleaned, ref)
		}
	}
	if len(cleaned) == 0 {
		return ChannelConfig{}, ErrNotConfigured
	}
	row := s.db.QueryRow(ctx, `SELECT `+configColumns+` FROM owner_channel_configs
		WHERE active AND channel_ref = ANY($1)
		ORDER BY created_at ASC
		LIMIT 1`, cleaned)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChannelConfig{}, ErrNotConfigured
	}
	if err != nil {
		return ChannelConfig{}, fmt.Errorf("find channel config: %w", err)
	}
	return cfg, nil
}

// Upsert makes a new config the owner's single active one.
func (s *Store) Upsert(ctx context.Context, ownerID, botToken, channelRef string) (ChannelConfig, error) {
	ownerID = strings.TrimSpace(ownerID)
	botToken = strings.TrimSpace(botToken)
	channelRef = strings.TrimSpace(channelRef)
	if ownerID == "" || botToken == "" || channelRef == "" {
		return ChannelConfig{}, fmt.Errorf("owner id, bot token and channel are required")
	}
	now := s.now().UTC()
	cfg := ChannelConfig{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		BotToken:   botToken,
		ChannelRef: channelRef,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return ChannelConfig{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `UPDATE owner_channel_configs SET active = FALSE, updated_at = $2
		WHERE owner_id = $1 AND active`, ownerID, now); err != nil {
		return ChannelConfig{}, fmt.Errorf("deactivate channel config: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO owner_channel_configs
		(id, owner_id, bot_token, channel_ref, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $5)`,
		cfg.ID, cfg.OwnerID, cfg.BotToken, cfg.ChannelRef, now); err != nil {
		return ChannelConfig{}, fmt.Errorf("insert channel config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ChannelConfig{}, fmt.Errorf("commit: %w", err)
	}
	return cfg, nil
}

// Deactivate clears the owner's active config.
func (s *Store) Deactivate(ctx context.Context, ownerID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE owner_channel_configs SET active = FALSE, updated_at = $2
		WHERE owner_id = $1 AND active`, strings.TrimSpace(ownerID), s.now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate channel config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotConfigured
	}
	return nil
}

func scanConfig(row pgx.Row) (ChannelConfig, error) {
	var cfg ChannelConfig
	err := row.Scan(&cfg.ID, &cfg.OwnerID, &cfg.BotToken, &cfg.ChannelRef, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	return cfg, err
}
