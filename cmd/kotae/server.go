package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/completion"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServerCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cfg, cfgPath, cfg.Debug || debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging (retrieval, watcher events, etc.)")
	return cmd
}

func runServer(cfg *config.Config, cfgPath string, debug bool) error {
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", cfgPath),
		zap.Bool("debug", debug),
		zap.String("vector_type", cfg.Vector.Type),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	var watchSvc server.WatchService
	if len(cfg.Watch.Directories) > 0 {
		w := watcher.New(cfg.Watch, components.Indexer, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
		go func() {
			n := w.SyncExistingFiles(ctx)
			logger.Info("watch directories synced", zap.Int("ingested", n))
		}()
		watchSvc = w
	}

	srv := server.NewServer(
		components.Chat,
		components.Indexer,
		components.Engine,
		components.Storage,
		cfg,
		logger,
		watchSvc,
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.Index
	Engine      *search.Engine
	Indexer     *indexer.Indexer
	Chat        *chat.Service
}

// Close releases storage, embedder and vector index resources.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	index, err := vector.NewIndex(ctx, cfg.Vector, cfg.Storage.VectorPath, cfg.Embedding.Dimensions, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.VectorIndex = index
	logger.Info("vector index initialized", zap.String("type", index.Type()))

	completer, err := completion.New(cfg.Completion, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize completer: %w", err)
	}

	c.Engine = search.NewEngine(embedder, index, &cfg.Retrieval, search.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(store, embedder, index, &cfg.Ingest, extract.NewExtractor(), indexer.WithLogger(logger))
	c.Chat = chat.NewService(c.Engine, completer, &cfg.Chat,
		chat.WithLogger(logger),
		chat.WithContextSize(cfg.Retrieval.ContextSize))
	return c, nil
}
