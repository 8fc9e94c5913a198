package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pdfrag/internal/ai"
	"pdfrag/internal/model"
)

const hitColumns = `p.id, p.document_id, d.title AS document_title, d.original_filename AS document_filename,
	p.page_number, p.content, p.content_preview, p.word_count, p.keywords, p.created_at`

type PageRepository struct {
	db *gorm.DB
}

func NewPageRepository(db *gorm.DB) *PageRepository {
	return &PageRepository{db: db}
}

// UpsertPage inserts or replaces the page keyed by (document_id, page_number).
// A replaced page loses its embedding until a new one is stored.
func (r *PageRepository) UpsertPage(ctx context.Context, page *model.DocumentPage) error {
	page.HasEmbedding = false
	page.Embedding = nil
	page.EmbeddingGeneratedAt = nil

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}, {Name: "page_number"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"content":                page.Content,
			"content_preview":        page.ContentPreview,
			"word_count":             page.WordCount,
			"keywords":               page.Keywords,
			"has_embedding":          false,
			"embedding":              nil,
			"embedding_generated_at": nil,
			"updated_at":             time.Now(),
		}),
	}).Create(page).Error
	if err != nil {
		return fmt.Errorf("upsert document page failed: %w", err)
	}
	return nil
}

// SetEmbedding stores the vector and flips has_embedding in the same write.
func (r *PageRepository) SetEmbedding(ctx context.Context, pageID uint, vec []float32, generatedAt time.Time) error {
	v := pgvector.NewVector(vec)
	if err := r.db.WithContext(ctx).Model(&model.DocumentPage{}).Where("id = ?", pageID).Updates(map[string]interface{}{
		"embedding":              &v,
		"has_embedding":          true,
		"embedding_generated_at": generatedAt,
	}).Error; err != nil {
		return fmt.Errorf("store page embedding failed: %w", err)
	}
	return nil
}

func (r *PageRepository) ListByDocument(ctx context.Context, documentID uint) ([]model.DocumentPage, error) {
	var pages []model.DocumentPage
	if err := r.db.WithContext(ctx).Omit("embedding").
		Where("document_id = ?", documentID).
		Order("page_number ASC").
		Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("list document pages failed: %w", err)
	}
	return pages, nil
}

// GetPage returns nil, nil when the page does not exist.
func (r *PageRepository) GetPage(ctx context.Context, documentID uint, pageNumber int) (*model.DocumentPage, error) {
	var page model.DocumentPage
	if err := r.db.WithContext(ctx).Omit("embedding").
		Where("document_id = ? AND page_number = ?", documentID, pageNumber).
		First(&page).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document page failed: %w", err)
	}
	return &page, nil
}

// SearchByVector returns embedded pages whose cosine similarity to vec is
// above threshold, closest first.
func (r *PageRepository) SearchByVector(ctx context.Context, vec []float32, threshold float64, limit int) ([]model.PageHit, error) {
	literal := ai.FormatVector(vec)
	var hits []model.PageHit
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+hitColumns+`, 1 - (p.embedding <=> ?::vector) AS similarity
		FROM document_pages p
		JOIN documents d ON d.id = p.document_id
		WHERE p.has_embedding = true
		  AND 1 - (p.embedding <=> ?::vector) > ?
		ORDER BY p.embedding <=> ?::vector
		LIMIT ?
	`, literal, literal, threshold, literal, limit).Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

// SearchByText matches query as a case-insensitive substring of the content
// or the keyword list, newest pages first.
func (r *PageRepository) SearchByText(ctx context.Context, query string, limit int) ([]model.PageHit, error) {
	pattern := "%" + EscapeLike(query) + "%"
	var hits []model.PageHit
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+hitColumns+`, 0 AS similarity
		FROM document_pages p
		JOIN documents d ON d.id = p.document_id
		WHERE p.content ILIKE ? ESCAPE '\'
		   OR p.keywords::text ILIKE ? ESCAPE '\'
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?
	`, pattern, pattern, limit).Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	return hits, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike makes s match literally inside a LIKE pattern.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
