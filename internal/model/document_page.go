package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

const PreviewChars = 200

// DocumentPage is one segmented chunk of a document. HasEmbedding is true
// exactly when Embedding and EmbeddingGeneratedAt are both set.
//
// The embedding column is created by the migration with the configured
// dimension, so AutoMigrate skips it.
type DocumentPage struct {
	ID                   uint                        `gorm:"primaryKey" json:"id"`
	DocumentID           uint                        `gorm:"not null;uniqueIndex:idx_document_page" json:"document_id"`
	PageNumber           int                         `gorm:"not null;uniqueIndex:idx_document_page" json:"page_number"`
	Content              string                      `gorm:"type:text;not null" json:"content"`
	ContentPreview       string                      `gorm:"type:text" json:"content_preview"`
	WordCount            int                         `gorm:"not null;default:0" json:"word_count"`
	Keywords             datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"keywords"`
	HasEmbedding         bool                        `gorm:"not null;default:false;index" json:"has_embedding"`
	Embedding            *pgvector.Vector            `gorm:"column:embedding;-:migration" json:"-"`
	EmbeddingGeneratedAt *time.Time                  `json:"embedding_generated_at"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

// PageHit is a page row joined with its document, as returned by searches.
// Similarity is 1 - cosine distance for vector queries and 0 otherwise.
type PageHit struct {
	ID               uint                        `json:"id"`
	DocumentID       uint                        `json:"document_id"`
	DocumentTitle    string                      `json:"document_title"`
	DocumentFilename string                      `json:"document_filename"`
	PageNumber       int                         `json:"page_number"`
	Content          string                      `json:"content"`
	ContentPreview   string                      `json:"content_preview"`
	WordCount        int                         `json:"word_count"`
	Keywords         datatypes.JSONSlice[string] `json:"keywords"`
	Similarity       float64                     `json:"similarity"`
	CreatedAt        time.Time                   `json:"created_at"`
}

// KnowledgeStats aggregates the corpus for the stats endpoint.
type KnowledgeStats struct {
	TotalDocuments      int64   `json:"total_documents"`
	TotalPages          int64   `json:"total_pages"`
	PagesWithEmbeddings int64   `json:"pages_with_embeddings"`
	ProcessingDocuments int64   `json:"processing_documents"`
	FailedDocuments     int64   `json:"failed_documents"`
	AverageWordsPerPage float64 `json:"average_words_per_page"`
	TotalWords          int64   `json:"total_words"`
	ProcessingProgress  float64 `json:"processing_progress"`
}
