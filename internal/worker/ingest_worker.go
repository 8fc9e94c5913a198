package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"pdfrag/internal/app"
	"pdfrag/internal/model"
	"pdfrag/internal/platform/rabbitmq"
)

type IngestRunner interface {
	Run(ctx context.Context, documentID uint) (*app.IngestResult, error)
	Fail(ctx context.Context, documentID uint, attempts int, cause error) error
}

type RetryPublisher interface {
	PublishRetry(ctx context.Context, job model.IngestJob) error
	PublishDelayed(ctx context.Context, job model.IngestJob, delay time.Duration) error
}

type IngestWorkerConfig struct {
	QueueName   string
	RetryQueue  string
	Prefetch    int
	MaxAttempts int
	JobTimeout  time.Duration
	// LeaseWait is how long a job that finds its document leased waits
	// before it runs again. It should be at least the lease TTL.
	LeaseWait   time.Duration
}

// IngestWorker consumes ingest jobs. Every delivery is acked once its outcome
// is settled: done, skipped, parked in the retry queue or given up on. A job
// whose document is leased by another run is parked without using an attempt.
type IngestWorker struct {
	conn    *amqp.Connection
	runner  IngestRunner
	retries RetryPublisher
	cfg     IngestWorkerConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, runner IngestRunner, retries RetryPublisher, cfg IngestWorkerConfig, logger *slog.Logger) *IngestWorker {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.LeaseWait <= 0 {
		cfg.LeaseWait = cfg.JobTimeout
	}
	return &IngestWorker{
		conn:    conn,
		runner:  runner,
		retries: retries,
		cfg:     cfg,
		logger:  logger.With("component", "ingest_worker"),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareTopology(ch, w.cfg.QueueName, w.cfg.RetryQueue); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.cfg.QueueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.cfg.Prefetch; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			w.consume(workerCtx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	w.logger.Info("ingest worker started", "queue", w.cfg.QueueName, "consumers", w.cfg.Prefetch)
	return nil
}

func (w *IngestWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			job, err := decodeJob(d.Body)
			if err != nil {
				w.logger.Error("decode ingest job failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}

			if err := w.handle(ctx, job); err != nil {
				w.logger.Error("ingest job not settled, requeueing", "document_id", job.DocumentID, "error", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle runs one attempt and settles its outcome. An error means the
// outcome could not be recorded and the delivery should be redelivered.
func (w *IngestWorker) handle(ctx context.Context, job model.IngestJob) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	log := w.logger.With("document_id", job.DocumentID, "attempt", job.Attempt)

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	res, err := w.runner.Run(runCtx, job.DocumentID)
	cancel()

	if err == nil {
		log.Info("ingest job done", "status", res.Status, "total_pages", res.TotalPages)
		return nil
	}
	if errors.Is(err, app.ErrIngestInProgress) {
		// The holder may have died mid-run; its lease expires within LeaseWait.
		if pubErr := w.retries.PublishDelayed(ctx, job, w.cfg.LeaseWait); pubErr != nil {
			return fmt.Errorf("defer leased job failed: %w", pubErr)
		}
		log.Warn("document lease held, job deferred", "delay", w.cfg.LeaseWait)
		return nil
	}
	if !app.IsRetryable(err) {
		log.Warn("ingest job skipped", "error", err)
		return nil
	}

	if job.Attempt >= w.cfg.MaxAttempts {
		if failErr := w.runner.Fail(context.WithoutCancel(ctx), job.DocumentID, job.Attempt, err); failErr != nil {
			return fmt.Errorf("record terminal failure failed: %w", failErr)
		}
		log.Error("ingest job exhausted retries", "error", err)
		return nil
	}

	next := model.IngestJob{
		DocumentID: job.DocumentID,
		Attempt:    job.Attempt + 1,
		LastError:  err.Error(),
	}
	if pubErr := w.retries.PublishRetry(ctx, next); pubErr != nil {
		return fmt.Errorf("schedule retry failed: %w", pubErr)
	}
	log.Warn("ingest job failed, retry scheduled", "error", err)
	return nil
}

func decodeJob(body []byte) (model.IngestJob, error) {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("unmarshal ingest job failed: %w", err)
	}
	if job.DocumentID == 0 {
		return job, errors.New("ingest job has no document id")
	}
	return job, nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
