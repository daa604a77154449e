package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/telecloud/internal/config"
	"github.com/memohai/telecloud/internal/db"
	"github.com/memohai/telecloud/internal/files"
	"github.com/memohai/telecloud/internal/handlers"
	"github.com/memohai/telecloud/internal/healthcheck"
	channelchecker "github.com/memohai/telecloud/internal/healthcheck/checkers/channel"
	"github.com/memohai/telecloud/internal/inbound"
	"github.com/memohai/telecloud/internal/logger"
	"github.com/memohai/telecloud/internal/owners"
	"github.com/memohai/telecloud/internal/server"
	"github.com/memohai/telecloud/internal/telegram"
	"github.com/memohai/telecloud/internal/transfer"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and Telegram webhook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateOnStart {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.Migrate(logger.L, cfg.Postgres); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		runServe()
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before starting")
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideFileRegistry,
			provideOwnerStore,
			provideTelegramClient,
			provideTransferSettings,
			provideUploadService,
			provideResolveService,
			provideImporter,
			provideInboundProcessor,
			provideChecker,
			handlers.NewRequestValidator,
			provideServerHandler(providePingHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(provideFilesHandler),
			provideServerHandler(provideOwnerChannelHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(handlers.NewChecksHandler),
			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideFileRegistry(conn *pgxpool.Pool) *files.Registry { return files.NewRegistry(conn) }

func provideOwnerStore(conn *pgxpool.Pool) *owners.Store { return owners.NewStore(conn) }

func provideTelegramClient(log *slog.Logger, cfg config.Config) *telegram.Client {
	return telegram.NewClient(log, telegram.Options{
		APIEndpoint:  cfg.Telegram.APIEndpoint,
		FileEndpoint: cfg.Telegram.FileEndpoint,
	})
}

func provideTransferSettings(cfg config.Config) transfer.Settings {
	return transfer.SettingsFromConfig(cfg.Storage)
}

func provideUploadService(log *slog.Logger, store *owners.Store, registry *files.Registry, client *telegram.Client, settings transfer.Settings) *transfer.UploadService {
	return transfer.NewUploadService(log, store, registry, client, settings)
}

func provideResolveService(log *slog.Logger, store *owners.Store, registry *files.Registry, client *telegram.Client, settings transfer.Settings) *transfer.ResolveService {
	return transfer.NewResolveService(log, store, registry, client, settings)
}

func provideImporter(log *slog.Logger, uploads *transfer.UploadService, settings transfer.Settings) *transfer.Importer {
	return transfer.NewImporter(log, uploads, transfer.NewImportHTTPClient(), settings)
}

func provideInboundProcessor(log *slog.Logger, store *owners.Store, registry *files.Registry) *inbound.Processor {
	return inbound.NewProcessor(log, store, registry)
}

func provideChecker(log *slog.Logger, cfg config.Config, store *owners.Store, client *telegram.Client) healthcheck.Checker {
	return healthcheck.Multi{
		channelchecker.NewChecker(log, store, client, cfg.WebhookURL(), cfg.Storage.MetadataTimeoutDuration()),
	}
}

func providePingHandler(log *slog.Logger, conn *pgxpool.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log, conn)
}

func provideFilesHandler(log *slog.Logger, cfg config.Config, uploads *transfer.UploadService, resolver *transfer.ResolveService, importer *transfer.Importer, registry *files.Registry) *handlers.FilesHandler {
	return handlers.NewFilesHandler(log, uploads, resolver, importer, registry, cfg.Storage.GeneralCeilingBytes)
}

func provideOwnerChannelHandler(log *slog.Logger, cfg config.Config, store *owners.Store, client *telegram.Client) *handlers.OwnerChannelHandler {
	return handlers.NewOwnerChannelHandler(log, cfg, store, client)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, processor *inbound.Processor) *handlers.TelegramWebhookHandler {
	return handlers.NewTelegramWebhookHandler(log, cfg, processor)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	Validator      *handlers.RequestValidator
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config, params.Validator, params.ServerHandlers)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting telecloud",
				slog.String("version", version),
				slog.String("addr", cfg.Server.Addr),
				slog.String("webhook_url", cfg.WebhookURL()))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
