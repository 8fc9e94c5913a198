package app

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"pdfrag/internal/model"
)

type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeFulltext SearchMode = "fulltext"
	ModeHybrid   SearchMode = "hybrid"
)

const (
	minQueryChars = 3
	maxQueryChars = 500
	maxLimit      = 20

	// semantic threshold multiplier inside hybrid searches
	hybridThresholdFactor   = 0.8
	occurrencesForFullScore = 10
)

type SearchService struct {
	store            VectorStore
	embedder         Embedder
	docs             DocumentStore
	stats            StatsCache
	logger           *slog.Logger
	defaultLimit     int
	defaultThreshold float64
	queryTimeout     time.Duration
}

type SearchOptions struct {
	DefaultLimit     int
	DefaultThreshold float64
	QueryTimeout     time.Duration
}

type SearchInput struct {
	Query     string
	Limit     int
	Threshold *float64
	Mode      SearchMode
}

type SearchResult struct {
	ID               uint       `json:"id"`
	DocumentID       uint       `json:"document_id"`
	DocumentTitle    string     `json:"document_title"`
	DocumentFilename string     `json:"document_filename"`
	PageNumber       int        `json:"page_number"`
	ContentPreview   string     `json:"content_preview"`
	WordCount        int        `json:"word_count"`
	Keywords         []string   `json:"keywords"`
	SimilarityScore  float64    `json:"similarity_score"`
	SearchMethod     SearchMode `json:"search_method"`
}

type SearchMetadata struct {
	Limit         int     `json:"limit"`
	Threshold     float64 `json:"threshold"`
	ExecutionTime float64 `json:"execution_time"`
}

type SearchOutput struct {
	Query        string         `json:"query"`
	SearchType   SearchMode     `json:"search_type"`
	TotalResults int            `json:"total_results"`
	Results      []SearchResult `json:"results"`
	Metadata     SearchMetadata `json:"metadata"`
}

func NewSearchService(store VectorStore, embedder Embedder, docs DocumentStore, stats StatsCache, logger *slog.Logger, opts SearchOptions) *SearchService {
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > maxLimit {
		opts.DefaultLimit = 10
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 10 * time.Second
	}
	return &SearchService{
		store:            store,
		embedder:         embedder,
		docs:             docs,
		stats:            stats,
		logger:           logger,
		defaultLimit:     opts.DefaultLimit,
		defaultThreshold: opts.DefaultThreshold,
		queryTimeout:     opts.QueryTimeout,
	}
}

func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	started := time.Now()

	query := strings.TrimSpace(input.Query)
	if n := utf8.RuneCountInString(query); n < minQueryChars || n > maxQueryChars {
		return nil, fmt.Errorf("%w: query must be between %d and %d characters", ErrInvalidInput, minQueryChars, maxQueryChars)
	}
	limit := input.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 1 || limit > maxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, maxLimit)
	}
	threshold := s.defaultThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold must be between 0 and 1", ErrInvalidInput)
	}
	mode := input.Mode
	if mode == "" {
		mode = ModeHybrid
	}

	var (
		results []SearchResult
		err     error
	)
	switch mode {
	case ModeSemantic:
		results, err = s.semantic(ctx, query, limit, threshold)
	case ModeFulltext:
		results, err = s.fulltext(ctx, query, limit)
	case ModeHybrid:
		results, err = s.hybrid(ctx, query, limit, threshold)
	default:
		return nil, fmt.Errorf("%w: unknown search type %q", ErrInvalidInput, mode)
	}
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].ContentPreview = highlight(results[i].ContentPreview, query)
		results[i].SimilarityScore = round(results[i].SimilarityScore, 4)
	}

	elapsed := time.Since(started)
	s.logger.Info("search completed",
		"search_type", mode,
		"limit", limit,
		"results", len(results),
		"duration_ms", elapsed.Milliseconds(),
	)
	return &SearchOutput{
		Query:        query,
		SearchType:   mode,
		TotalResults: len(results),
		Results:      results,
		Metadata: SearchMetadata{
			Limit:         limit,
			Threshold:     threshold,
			ExecutionTime: round(elapsed.Seconds(), 4),
		},
	}, nil
}

// semantic and fulltext each run on their own queryTimeout budget, so a
// hybrid fallback still has time after a slow semantic half.
func (s *SearchService) semantic(ctx context.Context, query string, limit int, threshold float64) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}
	hits, err := s.store.SearchByVector(ctx, emb.Vector, threshold, limit)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, len(hits))
	for i := range hits {
		results[i] = toResult(hits[i], hits[i].Similarity, ModeSemantic)
	}
	return results, nil
}

func (s *SearchService) fulltext(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	hits, err := s.store.SearchByText(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	lowered := strings.ToLower(query)
	results := make([]SearchResult, len(hits))
	for i := range hits {
		occurrences := strings.Count(strings.ToLower(hits[i].Content), lowered)
		score := float64(occurrences) / occurrencesForFullScore
		if score > 1 {
			score = 1
		}
		results[i] = toResult(hits[i], score, ModeFulltext)
	}
	return results, nil
}

// hybrid falls back to fulltext-only results when the semantic half fails.
func (s *SearchService) hybrid(ctx context.Context, query string, limit int, threshold float64) ([]SearchResult, error) {
	semantic, err := s.semantic(ctx, query, limit, threshold*hybridThresholdFactor)
	if err != nil {
		s.logger.Warn("semantic search failed, using fulltext only", "error", err)
		return s.fulltext(ctx, query, limit)
	}
	fulltext, err := s.fulltext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return mergeHybrid(semantic, fulltext, limit), nil
}

// mergeHybrid keeps every semantic result, then fills with unseen fulltext
// results up to limit, orders by score and truncates to limit.
func mergeHybrid(semantic, fulltext []SearchResult, limit int) []SearchResult {
	seen := make(map[uint]struct{}, len(semantic)+len(fulltext))
	combined := make([]SearchResult, 0, len(semantic)+len(fulltext))

	for _, r := range semantic {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		r.SearchMethod = ModeSemantic
		combined = append(combined, r)
		seen[r.ID] = struct{}{}
	}
	for _, r := range fulltext {
		if len(combined) >= limit {
			break
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		r.SearchMethod = ModeFulltext
		combined = append(combined, r)
		seen[r.ID] = struct{}{}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].SimilarityScore > combined[j].SimilarityScore
	})
	if len(combined) > limit {
		combined = combined[:limit]
	}
	return combined
}

func toResult(hit model.PageHit, score float64, method SearchMode) SearchResult {
	preview := hit.ContentPreview
	if preview == "" {
		preview = hit.Content
	}
	kw := []string(hit.Keywords)
	if kw == nil {
		kw = []string{}
	}
	return SearchResult{
		ID:               hit.ID,
		DocumentID:       hit.DocumentID,
		DocumentTitle:    hit.DocumentTitle,
		DocumentFilename: hit.DocumentFilename,
		PageNumber:       hit.PageNumber,
		ContentPreview:   preview,
		WordCount:        hit.WordCount,
		Keywords:         kw,
		SimilarityScore:  score,
		SearchMethod:     method,
	}
}

// highlight wraps whole-word, case-insensitive matches of the query words
// longer than two characters in <mark> tags, in a single pass.
func highlight(content, query string) string {
	if content == "" {
		return content
	}
	seen := make(map[string]struct{})
	var words []string
	for _, word := range strings.Fields(query) {
		if utf8.RuneCountInString(word) <= 2 {
			continue
		}
		key := strings.ToLower(word)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		words = append(words, regexp.QuoteMeta(word))
	}
	if len(words) == 0 {
		return content
	}
	re := regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	return re.ReplaceAllString(content, "<mark>${1}</mark>")
}

// Stats returns corpus statistics, served from the cache while it is fresh.
func (s *SearchService) Stats(ctx context.Context) (*model.KnowledgeStats, error) {
	if s.stats != nil {
		cached, ok, err := s.stats.Get(ctx)
		if err != nil {
			s.logger.Warn("read stats cache failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	stats, err := s.docs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.AverageWordsPerPage = round(stats.AverageWordsPerPage, 2)
	stats.ProcessingProgress = progress(stats.PagesWithEmbeddings, stats.TotalPages)

	if s.stats != nil {
		if err := s.stats.Set(ctx, stats); err != nil {
			s.logger.Warn("write stats cache failed", "error", err)
		}
	}
	return stats, nil
}

// progress is the embedded share of pages in percent, rounded to two decimals.
func progress(embedded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round(float64(embedded)/float64(total)*100, 2)
}
