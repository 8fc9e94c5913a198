package app

import (
	"context"
	"errors"
	"io"
	"time"

	"pdfrag/internal/ai"
	"pdfrag/internal/model"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrPageNotFound     = errors.New("page not found")
	ErrFileMissing      = errors.New("document file is missing")
	ErrExtraction       = errors.New("pdf text extraction failed")
	ErrIngestInProgress = errors.New("document ingestion already in progress")
	ErrQueryEmbedding   = errors.New("query embedding failed")
	ErrEnqueue          = errors.New("ingest job enqueue failed")
)

type Embedder interface {
	Embed(ctx context.Context, text string) (*ai.Embedding, error)
}

type Extractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
}

// DocumentStore persists documents. Get returns nil, nil for a missing row.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id uint) (*model.Document, error)
	List(ctx context.Context, page, perPage int) ([]model.DocumentSummary, int64, error)
	MarkProcessing(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, message string) error
	FinishIngest(ctx context.Context, id uint, status model.DocumentStatus, totalPages int, processingError *string) error
	Delete(ctx context.Context, id uint) error
	Stats(ctx context.Context) (*model.KnowledgeStats, error)
}

// PageStore persists pages. UpsertPage is the only way page content changes
// and always clears the stored embedding.
type PageStore interface {
	UpsertPage(ctx context.Context, page *model.DocumentPage) error
	SetEmbedding(ctx context.Context, pageID uint, vec []float32, generatedAt time.Time) error
	ListByDocument(ctx context.Context, documentID uint) ([]model.DocumentPage, error)
	GetPage(ctx context.Context, documentID uint, pageNumber int) (*model.DocumentPage, error)
}

type VectorStore interface {
	SearchByVector(ctx context.Context, vec []float32, threshold float64, limit int) ([]model.PageHit, error)
	SearchByText(ctx context.Context, query string, limit int) ([]model.PageHit, error)
}

// Lease is a per-document single-flight lock. ok is false when another
// holder owns the lease.
type Lease interface {
	Acquire(ctx context.Context, documentID uint) (release func(context.Context) error, ok bool, err error)
}

type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type FileStore interface {
	Save(ctx context.Context, r io.Reader, ext string) (string, int64, error)
	Exists(path string) bool
	Remove(path string) error
}

type StatsCache interface {
	Get(ctx context.Context) (*model.KnowledgeStats, bool, error)
	Set(ctx context.Context, stats *model.KnowledgeStats) error
	Invalidate(ctx context.Context) error
}
