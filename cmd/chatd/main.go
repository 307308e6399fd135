// chatd serves the retrieval-augmented chat API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dzinemon/rag-app/chunkstore"
	"github.com/dzinemon/rag-app/config"
	"github.com/dzinemon/rag-app/embedding"
	"github.com/dzinemon/rag-app/generate"
	"github.com/dzinemon/rag-app/llm"
	"github.com/dzinemon/rag-app/memory"
	"github.com/dzinemon/rag-app/orchestrator"
	"github.com/dzinemon/rag-app/retrieval"
	"github.com/dzinemon/rag-app/router"
	"github.com/dzinemon/rag-app/server"
	"github.com/dzinemon/rag-app/vectordb"
)

func main() {
	var configPath string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "chatd",
		Short: "Retrieval-augmented chat server",
		Long: `chatd answers questions over a knowledge base of ingested documents.
It routes company questions to a static profile and everything else
through vector retrieval, with conversation memory per client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, debug)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	logger, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	embedder, err := embedding.NewOpenAIProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}

	index, err := vectordb.NewMilvusProvider(ctx, cfg.VectorDB, logger)
	if err != nil {
		return fmt.Errorf("connect vector index: %w", err)
	}
	defer index.Close()

	chunks, err := chunkstore.NewPostgresStore(ctx, cfg.ChunkStore.DSN)
	if err != nil {
		return fmt.Errorf("connect chunk store: %w", err)
	}
	defer chunks.Close()

	model := llm.NewOpenAIProvider(cfg.LLM, logger)
	retriever := retrieval.NewClient(cfg.Retrieval, embedder, index, chunks, logger)

	rag, err := generate.NewRAG(retriever, model, cfg.Retrieval.ContextTokenBudget, cfg.Chat.MaxTurns, logger)
	if err != nil {
		return fmt.Errorf("init rag generator: %w", err)
	}
	company := generate.NewCompanyInfo(cfg.Company, cfg.Chat.MaxTurns, model, logger)

	registry := memory.NewRegistry(cfg.Chat.MaxConversations, logger)
	orch := orchestrator.New(registry, router.New(cfg.Company.Name), company, rag, cfg.Chat.MaxMessageLength, logger)

	srv := server.New(cfg.Server.Listen, orch, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		return srv.Shutdown()
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
