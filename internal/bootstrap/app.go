package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pdfrag/internal/ai"
	"pdfrag/internal/app"
	"pdfrag/internal/cache"
	"pdfrag/internal/config"
	"pdfrag/internal/pkg/logger"
	"pdfrag/internal/pkg/pdfextract"
	postgresClient "pdfrag/internal/platform/postgres"
	rabbitmqClient "pdfrag/internal/platform/rabbitmq"
	redisClient "pdfrag/internal/platform/redis"
	"pdfrag/internal/repository"
	"pdfrag/internal/storage"
	"pdfrag/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Documents    *app.DocumentService
	Search       *app.SearchService
	Ingest       *app.IngestService
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

// New connects every dependency, migrates the schema and builds the services.
// The ingest worker is created but not started.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With("app", cfg.App.Name, "env", cfg.App.Env)

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}

	a.DB, err = postgresClient.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := postgresClient.Migrate(ctx, a.DB, cfg.Embedding.Dimensions); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.RetryQueue)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	files, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	embedder := ai.NewOpenAICompatibleClient(ai.EmbeddingConfig{
		BaseURL:       cfg.Embedding.BaseURL,
		APIKey:        cfg.Embedding.APIKey,
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		MaxInputBytes: cfg.Embedding.MaxInputBytes,
		Timeout:       cfg.EmbeddingTimeout(),
	}, log)
	if cfg.Embedding.APIKey == "" {
		log.Warn("embedding api key is empty; embedding requests will likely be rejected")
	}

	docRepo := repository.NewDocumentRepository(a.DB)
	pageRepo := repository.NewPageRepository(a.DB)
	lease := cache.NewDocumentLease(a.Redis, cfg.LeaseTTL())
	stats := cache.NewStatsCache(a.Redis, cfg.StatsCacheTTL())
	publisher := rabbitmqClient.NewJobPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.RetryQueue, cfg.RetryBackoff())

	a.Documents = app.NewDocumentService(docRepo, pageRepo, files, publisher, stats, log, cfg.Storage.MaxUploadBytes)
	a.Search = app.NewSearchService(pageRepo, embedder, docRepo, stats, log, app.SearchOptions{
		DefaultLimit:     cfg.Search.DefaultLimit,
		DefaultThreshold: cfg.Search.DefaultThreshold,
		QueryTimeout:     cfg.QueryTimeout(),
	})
	a.Ingest = app.NewIngestService(docRepo, pageRepo, pdfextract.New(), embedder, lease, files, stats, log, app.IngestOptions{
		EmbedConcurrency: cfg.Ingest.EmbedConcurrency,
	})
	a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.Ingest, publisher, worker.IngestWorkerConfig{
		QueueName:   cfg.RabbitMQ.IngestQueue,
		RetryQueue:  cfg.RabbitMQ.RetryQueue,
		Prefetch:    cfg.RabbitMQ.Prefetch,
		MaxAttempts: cfg.Ingest.MaxAttempts,
		JobTimeout:  cfg.IngestTimeout(),
		LeaseWait:   cfg.LeaseTTL(),
	}, log)

	return a, nil
}

// HealthChecks returns one probe per backing service.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": redisClient.Ping(a.Redis),
		"rabbitmq": func(context.Context) error {
			if a.MQConn == nil || a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
