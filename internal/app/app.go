package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PascheK/PascheK-ChatBox/internal/config"
	db "github.com/PascheK/PascheK-ChatBox/internal/core/database"
	"github.com/PascheK/PascheK-ChatBox/internal/core/extract"
	"github.com/PascheK/PascheK-ChatBox/internal/core/llm"
	"github.com/PascheK/PascheK-ChatBox/internal/core/objectstore"
	"github.com/PascheK/PascheK-ChatBox/internal/core/rag"
	"github.com/PascheK/PascheK-ChatBox/internal/services"
)

// App owns every long-lived component and wires them together at startup.
type App struct {
	DBClient *db.DatabaseClient
	Objects  *objectstore.S3Client
	Embedder *llm.GeminiEmbedder
	LLM      *llm.GeminiLLM
	Pipeline *rag.Pipeline
	Searcher *rag.KnowledgeSearcher
	Chats    *services.ChatService
	Server   *Server

	logger *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bootCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(bootCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("database initialized and ready")

	objClient, err := objectstore.NewS3Client(bootCtx, cfg, logger)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("object store: %w", err)
	}
	logger.Info("object store initialized and ready", "bucket", cfg.BucketName)

	embedder, err := llm.NewGeminiEmbedder(bootCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(bootCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		_ = embedder.Close()
		_ = dbClient.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	pipeline := rag.NewPipeline(dbClient, objClient, embedder, extract.New(), rag.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Bucket:       cfg.BucketName,
	}, logger)

	searcher := rag.NewKnowledgeSearcher(dbClient, objClient, embedder, cfg.BucketName, logger)
	chats := services.NewChatService(dbClient)

	// Reclaim blobs whose delete failed in a previous run.
	if err := pipeline.SweepStaleBlobs(bootCtx); err != nil {
		logger.Warn("stale blob sweep failed", "error", err)
	}

	app := &App{
		DBClient: dbClient,
		Objects:  objClient,
		Embedder: embedder,
		LLM:      llmProvider,
		Pipeline: pipeline,
		Searcher: searcher,
		Chats:    chats,
		logger:   logger,
	}
	app.Server = NewServer(cfg, app, logger)
	return app, nil
}

func (a *App) Close() {
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
