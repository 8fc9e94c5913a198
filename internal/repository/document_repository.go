package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pdfrag/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// Get returns nil, nil when the document does not exist.
func (r *DocumentRepository) Get(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// List returns one page of documents, newest first, with their embedded page
// counts, and the total number of documents.
func (r *DocumentRepository) List(ctx context.Context, page, perPage int) ([]model.DocumentSummary, int64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&model.Document{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count documents failed: %w", err)
	}

	var docs []model.Document
	if err := db.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&docs).Error; err != nil {
		return nil, 0, fmt.Errorf("list documents failed: %w", err)
	}
	if len(docs) == 0 {
		return []model.DocumentSummary{}, total, nil
	}

	ids := make([]uint, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	var rows []struct {
		DocumentID uint
		Embedded   int64
	}
	if err := db.Model(&model.DocumentPage{}).
		Select("document_id, COUNT(*) AS embedded").
		Where("document_id IN ? AND has_embedding = ?", ids, true).
		Group("document_id").
		Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("count embedded pages failed: %w", err)
	}
	embedded := make(map[uint]int64, len(rows))
	for _, row := range rows {
		embedded[row.DocumentID] = row.Embedded
	}

	list := make([]model.DocumentSummary, len(docs))
	for i := range docs {
		list[i] = model.DocumentSummary{Document: docs[i], PagesWithEmbeddings: embedded[docs[i].ID]}
	}
	return list, total, nil
}

// MarkProcessing puts a document back into processing before a new run is
// scheduled.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           model.StatusProcessing,
		"processing_error": nil,
	}).Error; err != nil {
		return fmt.Errorf("mark document processing failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id uint, message string) error {
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           model.StatusFailed,
		"processing_error": message,
	}).Error; err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}

// FinishIngest writes the terminal state of a run and drops pages left over
// from an earlier run that produced more chunks, in one transaction.
func (r *DocumentRepository) FinishIngest(ctx context.Context, id uint, status model.DocumentStatus, totalPages int, processingError *string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":           status,
			"total_pages":      totalPages,
			"processing_error": processingError,
		}).Error; err != nil {
			return err
		}
		return tx.Where("document_id = ? AND page_number > ?", id, totalPages).Delete(&model.DocumentPage{}).Error
	})
	if err != nil {
		return fmt.Errorf("finish document ingest failed: %w", err)
	}
	return nil
}

// Delete removes the document; its pages go with it through the cascading
// foreign key.
func (r *DocumentRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Document{}, id).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

// Stats returns the raw corpus counters; ProcessingProgress is left to the caller.
func (r *DocumentRepository) Stats(ctx context.Context) (*model.KnowledgeStats, error) {
	db := r.db.WithContext(ctx)
	var s model.KnowledgeStats

	if err := db.Model(&model.Document{}).Count(&s.TotalDocuments).Error; err != nil {
		return nil, fmt.Errorf("count documents failed: %w", err)
	}
	if err := db.Model(&model.Document{}).Where("status = ?", model.StatusProcessing).Count(&s.ProcessingDocuments).Error; err != nil {
		return nil, fmt.Errorf("count processing documents failed: %w", err)
	}
	if err := db.Model(&model.Document{}).Where("status = ?", model.StatusFailed).Count(&s.FailedDocuments).Error; err != nil {
		return nil, fmt.Errorf("count failed documents failed: %w", err)
	}
	if err := db.Model(&model.DocumentPage{}).Count(&s.TotalPages).Error; err != nil {
		return nil, fmt.Errorf("count pages failed: %w", err)
	}
	if err := db.Model(&model.DocumentPage{}).Where("has_embedding = ?", true).Count(&s.PagesWithEmbeddings).Error; err != nil {
		return nil, fmt.Errorf("count embedded pages failed: %w", err)
	}

	var words struct {
		Average float64
		Total   int64
	}
	if err := db.Model(&model.DocumentPage{}).
		Select("COALESCE(AVG(word_count), 0) AS average, COALESCE(SUM(word_count), 0) AS total").
		Scan(&words).Error; err != nil {
		return nil, fmt.Errorf("aggregate word counts failed: %w", err)
	}
	s.AverageWordsPerPage = words.Average
	s.TotalWords = words.Total
	return &s, nil
}
