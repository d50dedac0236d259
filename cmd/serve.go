package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"github.com/pingwatch/pingwatch/internal/api"
	"github.com/pingwatch/pingwatch/internal/blob"
	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/queue"
	"github.com/pingwatch/pingwatch/internal/store/pg"
	"github.com/pingwatch/pingwatch/internal/telegram"
	"github.com/pingwatch/pingwatch/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Ping Watch control-plane API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.PostgresDSN == "" {
		return fmt.Errorf("PINGWATCH_POSTGRES_DSN environment variable is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	stores := pg.NewStores(db)
	blobGW := blob.New(cfg.Blob)
	q := queue.New(db, cfg.Queue.Name)

	var bot *telego.Bot
	if cfg.Telegram.BotToken != "" {
		bot, err = telego.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
	}
	linker := telegram.New(cfg.Telegram, bot, stores.TelegramLinks, stores.Devices)

	tracer, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	srv := api.New(cfg, db, stores, blobGW, q, linker, tracer)

	if err := srv.CheckSchema(ctx); err != nil {
		return err
	}

	slog.Info("pingwatch serve starting", "http_addr", cfg.HTTPAddr)
	return srv.Start(ctx)
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
