package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"github.com/pingwatch/pingwatch/internal/blob"
	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/inference"
	"github.com/pingwatch/pingwatch/internal/notify"
	"github.com/pingwatch/pingwatch/internal/queue"
	"github.com/pingwatch/pingwatch/internal/store/pg"
	"github.com/pingwatch/pingwatch/internal/tracing"
	"github.com/pingwatch/pingwatch/internal/worker"
)

func workCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run the Ping Watch clip-processing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork()
		},
	}
}

func runWork() error {
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

	q := queue.New(db, cfg.Queue.Name)
	blobGW := blob.New(cfg.Blob)
	router := inference.New(cfg.Inference)

	var bot *telego.Bot
	if cfg.Telegram.BotToken != "" {
		bot, err = telego.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
	}
	resolver := &notify.HTTPChatResolver{BaseURL: cfg.Worker.APIBaseURL, Client: &http.Client{Timeout: cfg.Notification.Timeout}}
	notifier := notify.New(cfg.Notification, cfg.Telegram, bot, resolver)

	tracer, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	proc := worker.New(cfg.Worker, cfg.Inference.NumFrames, q, blobGW, router, notifier, tracer)

	slog.Info("pingwatch work starting", "poll_interval", cfg.Worker.PollInterval, "test_mode", cfg.Worker.TestMode)
	return proc.Run(ctx)
}
