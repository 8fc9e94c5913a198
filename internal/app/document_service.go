package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"pdfrag/internal/model"
	"pdfrag/internal/pkg/pdfextract"
)

const (
	defaultPerPage = 10
	maxPerPage     = 50
	maxTitleChars  = 255
	pdfHeaderBytes = 5
)

type DocumentService struct {
	docs      DocumentStore
	pages     PageStore
	files     FileStore
	publisher JobPublisher
	stats     StatsCache
	logger    *slog.Logger
	maxUpload int64
}

type UploadInput struct {
	Filename string
	Title    string
	MimeType string
	Size     int64
	Content  io.Reader
}

type DocumentList struct {
	Documents []model.DocumentSummary `json:"documents"`
	Total     int64                   `json:"total"`
	Page      int                     `json:"page"`
	PerPage   int                     `json:"per_page"`
	LastPage  int                     `json:"last_page"`
}

type DocumentDetail struct {
	Document           *model.Document      `json:"document"`
	Pages              []model.DocumentPage `json:"pages"`
	ProcessingProgress float64              `json:"processing_progress"`
}

func NewDocumentService(
	docs DocumentStore,
	pages PageStore,
	files FileStore,
	publisher JobPublisher,
	stats StatsCache,
	logger *slog.Logger,
	maxUpload int64,
) *DocumentService {
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &DocumentService{
		docs:      docs,
		pages:     pages,
		files:     files,
		publisher: publisher,
		stats:     stats,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Upload validates and stores a PDF, creates its document in processing state
// and schedules the first ingestion attempt.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	filename := filepath.Base(strings.TrimSpace(input.Filename))
	ext := strings.ToLower(filepath.Ext(filename))
	if filename == "." || filename == "" || ext != ".pdf" {
		return nil, fmt.Errorf("%w: file must be a pdf", ErrInvalidInput)
	}
	if input.Size <= 0 || input.Size > s.maxUpload {
		return nil, fmt.Errorf("%w: file size must be between 1 and %d bytes", ErrInvalidInput, s.maxUpload)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if len([]rune(title)) > maxTitleChars {
		return nil, fmt.Errorf("%w: title must not exceed %d characters", ErrInvalidInput, maxTitleChars)
	}

	head := make([]byte, pdfHeaderBytes)
	n, err := io.ReadFull(input.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if !pdfextract.IsPDF(head[:n]) {
		return nil, fmt.Errorf("%w: file is not a valid pdf", ErrInvalidInput)
	}

	path, size, err := s.files.Save(ctx, io.MultiReader(bytes.NewReader(head[:n]), input.Content), ext)
	if err != nil {
		return nil, err
	}

	mimeType := input.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	doc := &model.Document{
		Title:            title,
		OriginalFilename: filename,
		FilePath:         path,
		MimeType:         mimeType,
		FileSize:         size,
		Status:           model.StatusProcessing,
		Metadata: map[string]interface{}{
			"uploaded_at":   time.Now().UTC().Format(time.RFC3339),
			"original_size": input.Size,
			"extension":     strings.TrimPrefix(ext, "."),
		},
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if rmErr := s.files.Remove(path); rmErr != nil {
			s.logger.Warn("remove orphaned upload failed", "path", path, "error", rmErr)
		}
		return nil, err
	}
	s.invalidateStats(ctx)

	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("document uploaded", "document_id", doc.ID, "file_size", size)
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, page, perPage int) (*DocumentList, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	docs, total, err := s.docs.List(ctx, page, perPage)
	if err != nil {
		return nil, err
	}
	lastPage := int(math.Ceil(float64(total) / float64(perPage)))
	if lastPage < 1 {
		lastPage = 1
	}
	return &DocumentList{
		Documents: docs,
		Total:     total,
		Page:      page,
		PerPage:   perPage,
		LastPage:  lastPage,
	}, nil
}

func (s *DocumentService) Get(ctx context.Context, id uint) (*DocumentDetail, error) {
	doc, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	pages, err := s.pages.ListByDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	var embedded int64
	for i := range pages {
		if pages[i].HasEmbedding {
			embedded++
		}
	}
	return &DocumentDetail{
		Document:           doc,
		Pages:              pages,
		ProcessingProgress: progress(embedded, int64(len(pages))),
	}, nil
}

func (s *DocumentService) Page(ctx context.Context, id uint, pageNumber int) (*model.DocumentPage, error) {
	if pageNumber < 1 {
		return nil, fmt.Errorf("%w: page number must be positive", ErrInvalidInput)
	}
	if _, err := s.mustGet(ctx, id); err != nil {
		return nil, err
	}
	page, err := s.pages.GetPage(ctx, id, pageNumber)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, ErrPageNotFound
	}
	return page, nil
}

// Delete removes the document, its pages and its file. A file that cannot be
// removed is logged and left behind.
func (s *DocumentService) Delete(ctx context.Context, id uint) error {
	doc, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.files.Remove(doc.FilePath); err != nil {
		s.logger.Warn("remove document file failed", "document_id", id, "error", err)
	}
	s.invalidateStats(ctx)
	s.logger.Info("document deleted", "document_id", id)
	return nil
}

// Reprocess schedules a new ingestion run. Pages are upserted by number, so
// running it repeatedly converges on the same page set.
func (s *DocumentService) Reprocess(ctx context.Context, id uint) (*model.Document, error) {
	doc, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.files.Exists(doc.FilePath) {
		return nil, fmt.Errorf("%w: %s", ErrFileMissing, doc.FilePath)
	}
	if err := s.docs.MarkProcessing(ctx, id); err != nil {
		return nil, err
	}
	doc.Status = model.StatusProcessing
	doc.ProcessingError = nil
	s.invalidateStats(ctx)

	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// enqueue publishes the first attempt. When the broker refuses the job the
// document is marked failed, since nothing else would ever move it.
func (s *DocumentService) enqueue(ctx context.Context, doc *model.Document) error {
	err := s.publisher.Publish(ctx, model.IngestJob{DocumentID: doc.ID, Attempt: 1})
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf("could not schedule processing: %v", err)
	if markErr := s.docs.MarkFailed(context.WithoutCancel(ctx), doc.ID, msg); markErr != nil {
		s.logger.Error("mark document failed failed", "document_id", doc.ID, "error", markErr)
	}
	return fmt.Errorf("%w: %w", ErrEnqueue, err)
}

func (s *DocumentService) mustGet(ctx context.Context, id uint) (*model.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) invalidateStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate stats cache failed", "error", err)
	}
}
