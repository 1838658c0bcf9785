package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sashabaranov/go-openai"

	"github.com/leadvoice/leadvoice/pkg/config"
	"github.com/leadvoice/leadvoice/pkg/engine/openaiengine"
	"github.com/leadvoice/leadvoice/pkg/gateway/server"
	"github.com/leadvoice/leadvoice/pkg/notify"
	"github.com/leadvoice/leadvoice/pkg/queue"
	"github.com/leadvoice/leadvoice/pkg/search"
	"github.com/leadvoice/leadvoice/pkg/session"
	"github.com/leadvoice/leadvoice/pkg/store"
	"github.com/leadvoice/leadvoice/pkg/tools"
	"github.com/leadvoice/leadvoice/pkg/turn"
	"github.com/leadvoice/leadvoice/pkg/voice/stt"
	"github.com/leadvoice/leadvoice/pkg/voice/tts"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	openaiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		openaiCfg.BaseURL = cfg.OpenAIBaseURL
	}
	client := openai.NewClientWithConfig(openaiCfg)

	embedder := search.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
	searcher := search.NewService(embedder, db, cfg.SearchLimit, logger)
	if err := searcher.EnsureProductEmbeddings(ctx); err != nil {
		// The catalog stays searchable for already-embedded rows.
		logger.Warn("product embedding backfill failed", "error", err)
	}

	sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})

	deliveries := queue.New(db, sender, cfg.SalesTeamInbox, logger)
	if err := deliveries.Start(ctx); err != nil {
		return fmt.Errorf("start delivery queue: %w", err)
	}
	defer deliveries.Stop()

	registry := tools.DefaultRegistry(searcher, deliveries)
	var engineOpts []openaiengine.Option
	if cfg.GuardModel != "" {
		engineOpts = append(engineOpts, openaiengine.WithGuard(openaiengine.NewDomainGuard(client, cfg.GuardModel)))
	}
	eng := openaiengine.New(client, cfg.ChatModel, registry, logger, engineOpts...)
	transcriber := stt.NewOpenAITranscriber(client, cfg.STTModel, 0)
	synthesizer := tts.NewOpenAISynthesizer(client, cfg.TTSModel)
	adapter := turn.NewAdapter(eng, transcriber, synthesizer, logger)

	sessions := session.NewRegistry()
	srv := server.New(cfg, logger, sessions, adapter, deliveries, db)

	listenErr := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
			return
		}
		listenErr <- nil
	}()
	logger.Info("listening", "addr", cfg.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErr:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	// Cancel live connections first so in-flight turns stop before the
	// listener closes, then wait for their teardown.
	sessions.CancelAll()
	sessions.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return <-listenErr
}
