package model

import (
	"time"

	"gorm.io/datatypes"
)

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusPartial    DocumentStatus = "partial"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded PDF. Status only moves out of processing through
// an ingestion run's terminal transition or a failure handler.
type Document struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	Title            string            `gorm:"size:255;not null" json:"title"`
	OriginalFilename string            `gorm:"size:255;not null" json:"original_filename"`
	FilePath         string            `gorm:"size:512;not null" json:"file_path"`
	MimeType         string            `gorm:"size:128;not null;default:application/pdf" json:"mime_type"`
	FileSize         int64             `gorm:"not null" json:"file_size"`
	TotalPages       int               `gorm:"not null;default:0" json:"total_pages"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	Status           DocumentStatus    `gorm:"size:32;not null;default:processing;index" json:"status"`
	ProcessingError  *string           `gorm:"type:text" json:"processing_error"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`

	Pages []DocumentPage `gorm:"constraint:OnDelete:CASCADE" json:"pages,omitempty"`
}

// DocumentSummary is a list row: the document plus how many of its pages
// carry an embedding.
type DocumentSummary struct {
	Document
	PagesWithEmbeddings int64 `json:"pages_with_embeddings"`
}
