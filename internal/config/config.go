package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "telecloud"
	DefaultPGSSLMode        = "disable"
	DefaultTelegramAPI      = "https://api.telegram.org/bot%s/%s"
	DefaultTelegramFile     = "https://api.telegram.org/file/bot%s/%s"
	DefaultWebhookPath      = "/telegram/webhook"
	DefaultMetadataTimeout  = "10s"
	DefaultTransferTimeout  = "2m"
	DefaultGeneralCeiling   = 50 * 1024 * 1024
	DefaultImageCeiling     = 10 * 1024 * 1024
	DefaultProxyThreshold   = 20 * 1024 * 1024
	DefaultImportMaxBytes   = 50 * 1024 * 1024
	fallbackMetadataTimeout = 10 * time.Second
	fallbackTransferTimeout = 2 * time.Minute
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Telegram TelegramConfig `toml:"telegram"`
	Storage  StorageConfig  `toml:"storage"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicURL is the externally reachable base URL used when registering
	// the Telegram webhook.
	PublicURL string `toml:"public_url"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN returns a libpq-style connection URL for pgx.
func (c PostgresConfig) DSN() string {
	return c.url("postgres")
}

// MigrateURL returns the connection URL for the golang-migrate pgx/v5 driver.
func (c PostgresConfig) MigrateURL() string {
	return c.url("pgx5")
}

func (c PostgresConfig) url(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type TelegramConfig struct {
	// APIEndpoint and FileEndpoint are printf templates taking (token, method|path).
	APIEndpoint   string `toml:"api_endpoint"`
	FileEndpoint  string `toml:"file_endpoint"`
	WebhookSecret string `toml:"webhook_secret"`
	WebhookPath   string `toml:"webhook_path"`
}

// WebhookURL joins the public base URL and the webhook path.
func (c Config) WebhookURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")
	if base == "" {
		return ""
	}
	path := c.Telegram.WebhookPath
	if path == "" {
		path = DefaultWebhookPath
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

type StorageConfig struct {
	GeneralCeilingBytes int64  `toml:"general_ceiling_bytes"`
	ImageCeilingBytes   int64  `toml:"image_ceiling_bytes"`
	ProxyThresholdBytes int64  `toml:"proxy_threshold_bytes"`
	MetadataTimeout     string `toml:"metadata_timeout"`
	TransferTimeout     string `toml:"transfer_timeout"`
	ImportMaxBytes      int64  `toml:"import_max_bytes"`
}

// MetadataTimeoutDuration bounds getFile, sendMessage and small uploads.
func (c StorageConfig) MetadataTimeoutDuration() time.Duration {
	return parseDuration(c.MetadataTimeout, fallbackMetadataTimeout)
}

// TransferTimeoutDuration bounds bulk byte transfer in either direction.
func (c StorageConfig) TransferTimeoutDuration() time.Duration {
	return parseDuration(c.TransferTimeout, fallbackTransferTimeout)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidateServe checks the settings the HTTP server refuses to start without.
// A public URL means Telegram can reach the webhook, so it must be signed.
func (c Config) ValidateServe() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if strings.TrimSpace(c.Server.PublicURL) != "" && strings.TrimSpace(c.Telegram.WebhookSecret) == "" {
		return fmt.Errorf("telegram.webhook_secret is required when server.public_url is set")
	}
	return nil
}

// Validate rejects limit combinations the transfer pipelines cannot honor.
func (c StorageConfig) Validate() error {
	if c.GeneralCeilingBytes <= 0 || c.ImageCeilingBytes <= 0 || c.ProxyThresholdBytes <= 0 {
		return fmt.Errorf("storage ceilings must be positive")
	}
	if c.ImageCeilingBytes >= c.GeneralCeilingBytes {
		return fmt.Errorf("image_ceiling_bytes (%d) must be smaller than general_ceiling_bytes (%d)", c.ImageCeilingBytes, c.GeneralCeilingBytes)
	}
	if _, err := time.ParseDuration(strings.TrimSpace(c.MetadataTimeout)); c.MetadataTimeout != "" && err != nil {
		return fmt.Errorf("invalid metadata_timeout: %w", err)
	}
	if _, err := time.ParseDuration(strings.TrimSpace(c.TransferTimeout)); c.TransferTimeout != "" && err != nil {
		return fmt.Errorf("invalid transfer_timeout: %w", err)
	}
	return nil
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Telegram: TelegramConfig{
			APIEndpoint:  DefaultTelegramAPI,
			FileEndpoint: DefaultTelegramFile,
			WebhookPath:  DefaultWebhookPath,
		},
		Storage: StorageConfig{
			GeneralCeilingBytes: DefaultGeneralCeiling,
			ImageCeilingBytes:   DefaultImageCeiling,
			ProxyThresholdBytes: DefaultProxyThreshold,
			MetadataTimeout:     DefaultMetadataTimeout,
			TransferTimeout:     DefaultTransferTimeout,
			ImportMaxBytes:      DefaultImportMaxBytes,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
