package model

// IngestJob is the queue payload that schedules one ingestion attempt.
// Attempt starts at 1.
type IngestJob struct {
	DocumentID uint   `json:"document_id"`
	Attempt    int    `json:"attempt"`
	LastError  string `json:"last_error,omitempty"`
}
