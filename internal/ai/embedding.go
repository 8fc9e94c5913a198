package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultDimensions    = 1536
	DefaultMaxInputBytes = 8000
)

var (
	ErrEmptyInput        = errors.New("embedding input is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrProvider          = errors.New("embedding provider error")
)

// Embedding is a successful provider result.
type Embedding struct {
	Vector []float32
	Dims   int
}

// BatchEmbedding is one result of EmbedBatch. Index is the position of the
// text in the slice passed by the caller; Err is set when this item failed.
type BatchEmbedding struct {
	Index  int
	Vector []float32
	Dims   int
	Err    error
}

// PrepareText collapses newlines and whitespace runs into single spaces and trims.
func PrepareText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Embed returns the embedding vector for the given text. Input longer than
// the byte budget is truncated before sending; the tail is not embedded.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, text string) (*Embedding, error) {
	clean := PrepareText(text)
	if clean == "" {
		return nil, ErrEmptyInput
	}
	clean = c.truncate(clean)

	vectors, err := c.requestEmbeddings(ctx, clean)
	if err != nil {
		c.logger.Warn("embedding request failed", "model", c.cfg.Model, "error", err)
		return nil, err
	}
	vec := vectors[0]
	if len(vec) != c.cfg.Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.cfg.Dimensions)
	}

	c.logger.Debug("embedding generated",
		"model", c.cfg.Model,
		"text_length", len(clean),
		"dimensions", len(vec),
	)
	return &Embedding{Vector: vec, Dims: len(vec)}, nil
}

// EmbedBatch embeds several texts in one request. Texts that are empty after
// preparation are skipped; the remaining results keep input order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([]BatchEmbedding, error) {
	inputs := make([]string, 0, len(texts))
	origins := make([]int, 0, len(texts))
	for i, t := range texts {
		clean := PrepareText(t)
		if clean == "" {
			continue
		}
		inputs = append(inputs, c.truncate(clean))
		origins = append(origins, i)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no non-empty texts in batch", ErrEmptyInput)
	}

	vectors, err := c.requestEmbeddings(ctx, inputs)
	if err != nil {
		c.logger.Warn("embedding batch request failed", "model", c.cfg.Model, "texts", len(inputs), "error", err)
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProvider, len(vectors), len(inputs))
	}

	results := make([]BatchEmbedding, len(vectors))
	for i, vec := range vectors {
		results[i] = BatchEmbedding{Index: origins[i], Dims: len(vec)}
		if len(vec) != c.cfg.Dimensions {
			results[i].Err = fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.cfg.Dimensions)
			continue
		}
		results[i].Vector = vec
	}

	c.logger.Debug("embedding batch generated",
		"model", c.cfg.Model,
		"total_texts", len(texts),
		"embeddings_generated", len(results),
	)
	return results, nil
}

func (c *OpenAICompatibleClient) truncate(text string) string {
	limit := c.cfg.MaxInputBytes
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	c.logger.Warn("embedding input truncated", "original_length", len(text), "truncated_length", cut)
	return text[:cut]
}
