package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"pdfrag/internal/model"
	"pdfrag/internal/pkg/keywords"
	"pdfrag/internal/pkg/segmenter"
)

const statusWriteTimeout = 5 * time.Second

type IngestService struct {
	docs        DocumentStore
	pages       PageStore
	extractor   Extractor
	embedder    Embedder
	lease       Lease
	files       FileStore
	stats       StatsCache
	logger      *slog.Logger
	concurrency int
}

type IngestOptions struct {
	// EmbedConcurrency bounds how many pages are embedded at once.
	EmbedConcurrency int
}

// IngestResult summarises one finished run.
type IngestResult struct {
	DocumentID    uint                 `json:"document_id"`
	Status        model.DocumentStatus `json:"status"`
	TotalPages    int                  `json:"total_pages"`
	FailedPages   int                  `json:"failed_pages"`
	Duration      time.Duration        `json:"duration"`
	ProcessingErr *string              `json:"processing_error,omitempty"`
}

func NewIngestService(
	docs DocumentStore,
	pages PageStore,
	extractor Extractor,
	embedder Embedder,
	lease Lease,
	files FileStore,
	stats StatsCache,
	logger *slog.Logger,
	opts IngestOptions,
) *IngestService {
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}
	return &IngestService{
		docs:        docs,
		pages:       pages,
		extractor:   extractor,
		embedder:    embedder,
		lease:       lease,
		files:       files,
		stats:       stats,
		logger:      logger,
		concurrency: opts.EmbedConcurrency,
	}
}

// Run ingests one document: extract, segment, store every page and embed it.
// Per-page embedding failures only degrade the final status; any other error
// (and a panic) marks the document failed and is returned. A document that is
// missing or already being ingested is left untouched.
func (s *IngestService) Run(ctx context.Context, documentID uint) (result *IngestResult, err error) {
	log := s.logger.With("document_id", documentID)

	release, ok, err := s.lease.Acquire(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("acquire document lease failed: %w", err)
	}
	if !ok {
		return nil, ErrIngestInProgress
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			log.Warn("release document lease failed", "error", relErr)
		}
	}()

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("ingest panicked: %v", r)
		}
		if err != nil {
			log.Error("document ingestion failed", "error", err)
			s.markFailed(ctx, documentID, err.Error())
		}
	}()

	return s.process(ctx, doc, log)
}

func (s *IngestService) process(ctx context.Context, doc *model.Document, log *slog.Logger) (*IngestResult, error) {
	started := time.Now()

	if !s.files.Exists(doc.FilePath) {
		return nil, fmt.Errorf("%w: %s", ErrFileMissing, doc.FilePath)
	}

	text, err := s.extractor.ExtractFile(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	chunks := segmenter.Segment(text)
	log.Info("document segmented", "text_length", len(text), "chunks", len(chunks))

	failed, err := s.storePages(ctx, doc.ID, chunks, log)
	if err != nil {
		return nil, err
	}

	status, msg := ClassifyStatus(len(chunks), failed)
	if err := s.docs.FinishIngest(ctx, doc.ID, status, len(chunks), msg); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, log)

	result := &IngestResult{
		DocumentID:    doc.ID,
		Status:        status,
		TotalPages:    len(chunks),
		FailedPages:   failed,
		Duration:      time.Since(started),
		ProcessingErr: msg,
	}
	log.Info("document ingestion finished",
		"status", status,
		"total_pages", result.TotalPages,
		"failed_pages", failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// storePages upserts every chunk as a page and embeds it. It returns how many
// pages could not be embedded. Store errors, panics and cancellation abort
// the run.
func (s *IngestService) storePages(ctx context.Context, documentID uint, chunks []string, log *slog.Logger) (int, error) {
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, content := range chunks {
		content := content
		pageNumber := i + 1
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("page %d panicked: %v", pageNumber, r)
				}
			}()

			page := &model.DocumentPage{
				DocumentID:     documentID,
				PageNumber:     pageNumber,
				Content:        content,
				ContentPreview: preview(content),
				WordCount:      len(strings.Fields(content)),
				Keywords:       keywords.Extract(content),
			}
			if err := s.pages.UpsertPage(gctx, page); err != nil {
				return fmt.Errorf("store page %d: %w", pageNumber, err)
			}

			emb, err := s.embedder.Embed(gctx, content)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed.Add(1)
				log.Warn("page embedding failed", "page_number", pageNumber, "error", err)
				return nil
			}

			if err := s.pages.SetEmbedding(gctx, page.ID, emb.Vector, time.Now()); err != nil {
				return fmt.Errorf("store embedding for page %d: %w", pageNumber, err)
			}
			log.Debug("page embedded", "page_number", pageNumber, "dimensions", emb.Dims)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(failed.Load()), nil
}

// Fail is the terminal handler once the scheduler has given up on a document.
func (s *IngestService) Fail(ctx context.Context, documentID uint, attempts int, cause error) error {
	msg := fmt.Sprintf("processing failed after %d attempts: %v", attempts, cause)
	if err := s.docs.MarkFailed(ctx, documentID, msg); err != nil {
		return err
	}
	s.invalidateStats(ctx, s.logger.With("document_id", documentID))
	return nil
}

// markFailed records a fatal run error. It uses a context detached from the
// run so a cancelled or timed out run still leaves a failed document behind.
func (s *IngestService) markFailed(ctx context.Context, documentID uint, message string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	log := s.logger.With("document_id", documentID)
	if err := s.docs.MarkFailed(writeCtx, documentID, message); err != nil {
		log.Error("mark document failed failed", "error", err)
		return
	}
	s.invalidateStats(writeCtx, log)
}

func (s *IngestService) invalidateStats(ctx context.Context, log *slog.Logger) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Invalidate(ctx); err != nil {
		log.Warn("invalidate stats cache failed", "error", err)
	}
}

// IsRetryable reports whether a failed run is worth scheduling again. A
// missing file stays missing, and the other two outcomes never touched the
// document.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrIngestInProgress) &&
		!errors.Is(err, ErrDocumentNotFound) &&
		!errors.Is(err, ErrFileMissing)
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= model.PreviewChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:model.PreviewChars])
}
