package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hikaru/kioku/internal/config"
	"github.com/hikaru/kioku/internal/janitor"
	"github.com/hikaru/kioku/internal/logger"
	"github.com/hikaru/kioku/internal/server"
	"github.com/hikaru/kioku/internal/tracing"
	"github.com/hikaru/kioku/pkg/chat"
	"github.com/hikaru/kioku/pkg/memory"
	"github.com/hikaru/kioku/pkg/oracle"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Kioku server",
	Long: `Run the Kioku HTTP server: chat with memory-aware replies, memory
browsing and search, and a websocket event stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return err
	}
	defer log.Close()
	zl := log.Zerolog()

	if err := tracing.InitOpenTelemetry("kioku"); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := memory.OpenDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	memoryStore, err := memory.NewSQLiteStore(db, zl)
	if err != nil {
		return err
	}

	llm, err := oracle.NewProvider(oracle.Config{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		return err
	}

	engine, err := memory.NewEngine(memory.EngineConfig{
		Store:              memoryStore,
		Oracle:             llm,
		Logger:             zl,
		DuplicateThreshold: cfg.Memory.DuplicateThreshold,
		CoreContextLimit:   cfg.Memory.CoreContextLimit,
		SearchLimit:        cfg.Memory.SearchLimit,
	})
	if err != nil {
		return err
	}

	chatStore, err := chat.NewStore(db, zl)
	if err != nil {
		return err
	}

	chatService, err := chat.NewService(llm, engine, chatStore, zl)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		AuthToken:   cfg.Server.AuthToken,
		Engine:      engine,
		ChatService: chatService,
		ChatStore:   chatStore,
		Logger:      zl,
	})
	if err != nil {
		return err
	}

	jan, err := janitor.New(db, janitor.Config{
		CheckpointSchedule: cfg.Maintenance.CheckpointSchedule,
		VacuumSchedule:     cfg.Maintenance.VacuumSchedule,
	}, zl)
	if err != nil {
		return err
	}
	jan.Start()
	defer jan.Stop()

	watcher, err := config.NewWatcher(loader, zl, func(updated *config.Config) {
		log.SetLevel(updated.Logging.Level)
	})
	if err != nil {
		zl.Warn().Err(err).Msg("Config watcher unavailable; changes need a restart")
	} else {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
		zl.Warn().Err(err).Msg("Tracing shutdown failed")
	}

	return nil
}
