package app

import (
	"fmt"
	"math"

	"pdfrag/internal/model"
)

// ClassifyStatus derives the terminal document status from the number of
// chunks in a run and how many of them failed to embed. The message is nil
// for completed documents.
func ClassifyStatus(chunkCount, errorCount int) (model.DocumentStatus, *string) {
	if errorCount <= 0 {
		return model.StatusCompleted, nil
	}
	msg := fmt.Sprintf("%d of %d pages embedded", chunkCount-errorCount, chunkCount)
	if errorCount >= chunkCount {
		return model.StatusFailed, &msg
	}
	return model.StatusPartial, &msg
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
