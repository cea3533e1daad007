package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/config"
	"github.com/markdave123-py/docrag/internal/core"
	db "github.com/markdave123-py/docrag/internal/core/database"
	ingest "github.com/markdave123-py/docrag/internal/core/ingestion_engine"
	"github.com/markdave123-py/docrag/internal/core/llm"
	objectclient "github.com/markdave123-py/docrag/internal/core/object-client"
	"github.com/markdave123-py/docrag/internal/core/retrieval"
	"github.com/markdave123-py/docrag/internal/core/vectorstore"
	"github.com/markdave123-py/docrag/internal/metrics"
	"github.com/markdave123-py/docrag/internal/services"
)

// App owns the process-wide singletons. Every component is built once here
// and shared by all requests.
type App struct {
	DB          *sql.DB
	DBClient    core.DbClient
	VectorStore core.VectorStore
	RawStore    core.ObjectClient
	Users       *services.UserService
	Documents   *services.DocumentService
	Server      *Server

	closers []io.Closer
	logger  *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	pool, err := db.Open(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DB = pool
	a.DBClient = db.NewDatabaseClient(pool)
	logger.Info("database initialized and ready")

	if a.VectorStore, err = newVectorStore(cfg, pool, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.VectorStore)
	logger.Info("vector store initialized", zap.String("backend", cfg.VectorStore))

	if a.RawStore, err = newRawStore(appCtx, cfg, logger); err != nil {
		return nil, err
	}
	logger.Info("raw store initialized", zap.String("backend", cfg.RawStore))

	embedder, err := llm.NewEmbeddingProvider(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	if c, isCloser := embedder.(io.Closer); isCloser {
		a.closers = append(a.closers, c)
	}

	generator, err := llm.NewLLMProvider(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the generative client: %w", err)
	}
	if generator == nil {
		logger.Warn("no generation credential configured; answers use the extractive fallback")
	} else if c, isCloser := generator.(io.Closer); isCloser {
		a.closers = append(a.closers, c)
	}

	m := metrics.New()

	ingCfg := ingest.DefaultIngestConfig()
	ingCfg.EmbedBatchSize = cfg.IngestEmbedBatch
	ingCfg.Workers = cfg.IngestWorkers
	ingestor := ingest.NewDocumentIngestor(ingest.NewFileLoader(logger), embedder, a.VectorStore, a.RawStore, ingCfg, m, logger)

	rag := retrieval.NewService(
		retrieval.NewRetriever(embedder, a.VectorStore, logger),
		retrieval.NewSynthesizer(generator, m, logger),
		m, logger,
	)

	tokens := services.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.JWTExpireMins)*time.Minute)
	a.Users = services.NewUserService(a.DBClient, tokens, logger)
	a.Documents = services.NewDocumentService(a.DBClient, ingestor, rag, a.VectorStore, a.RawStore, logger)

	router := NewRouter(RouterDeps{
		Users:          a.Users,
		Documents:      a.Documents,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	a.Server = NewServer(":"+cfg.Port, router, logger)

	ok = true
	return a, nil
}

func newVectorStore(cfg *config.Config, pool *sql.DB, logger *zap.Logger) (core.VectorStore, error) {
	switch cfg.VectorStore {
	case config.VectorStorePgvector:
		return vectorstore.NewPgVectorStore(pool, logger), nil
	default:
		store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Dir:      cfg.VectorStorePath(),
			Compress: cfg.VectorCompress,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func newRawStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.ObjectClient, error) {
	switch cfg.RawStore {
	case config.RawStoreS3:
		s3, err := objectclient.NewS3Client(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		local, err := objectclient.NewLocalStore(cfg.DocumentStorePath)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
}

// Close flushes the vector store and releases every client. The database
// pool goes last.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("closing component", zap.Error(err))
		}
	}
	if a.DBClient != nil {
		if err := a.DBClient.Close(); err != nil {
			a.logger.Warn("closing database", zap.Error(err))
		}
	} else if a.DB != nil {
		_ = a.DB.Close()
	}
}
