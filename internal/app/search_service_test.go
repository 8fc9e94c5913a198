package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/ai"
	"pdfrag/internal/model"
)

func hit(id uint, similarity float64, content string) model.PageHit {
	return model.PageHit{
		ID:               id,
		DocumentID:       1,
		DocumentTitle:    "Handbook",
		DocumentFilename: "handbook.pdf",
		PageNumber:       int(id),
		Content:          content,
		ContentPreview:   content,
		WordCount:        len(content),
		Similarity:       similarity,
	}
}

func newSearchFixture() (*memStore, *fakeEmbedder, *fakeStatsCache, *SearchService) {
	store := newMemStore()
	embedder := &fakeEmbedder{}
	stats := &fakeStatsCache{}
	svc := NewSearchService(store, embedder, store, stats, testLogger, SearchOptions{DefaultLimit: 10, DefaultThreshold: 0.7})
	return store, embedder, stats, svc
}

func ptr(v float64) *float64 { return &v }

func TestMergeHybridExample(t *testing.T) {
	semantic := []SearchResult{{ID: 1, SimilarityScore: 0.91}, {ID: 2, SimilarityScore: 0.85}}
	fulltext := []SearchResult{{ID: 2, SimilarityScore: 0.4}, {ID: 3, SimilarityScore: 0.3}}

	merged := mergeHybrid(semantic, fulltext, 2)
	require.Len(t, merged, 2)
	assert.Equal(t, uint(1), merged[0].ID)
	assert.Equal(t, ModeSemantic, merged[0].SearchMethod)
	assert.Equal(t, 0.91, merged[0].SimilarityScore)
	assert.Equal(t, uint(2), merged[1].ID)
	assert.Equal(t, ModeSemantic, merged[1].SearchMethod)
	assert.Equal(t, 0.85, merged[1].SimilarityScore)
}

func TestMergeHybridFillsAndSorts(t *testing.T) {
	semantic := []SearchResult{{ID: 1, SimilarityScore: 0.6}}
	fulltext := []SearchResult{
		{ID: 1, SimilarityScore: 1},
		{ID: 4, SimilarityScore: 0.9},
		{ID: 5, SimilarityScore: 0.2},
		{ID: 6, SimilarityScore: 0.1},
	}

	merged := mergeHybrid(semantic, fulltext, 3)
	require.Len(t, merged, 3)
	assert.Equal(t, []uint{4, 1, 5}, []uint{merged[0].ID, merged[1].ID, merged[2].ID})
	assert.Equal(t, ModeFulltext, merged[0].SearchMethod)
	assert.Equal(t, ModeSemantic, merged[1].SearchMethod)

	seen := map[uint]bool{}
	for _, r := range merged {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
}

func TestSearchSemantic(t *testing.T) {
	store, _, _, svc := newSearchFixture()
	store.vectorHits = []model.PageHit{hit(7, 0.912345, "Vector search with pgvector")}

	out, err := svc.Search(context.Background(), SearchInput{Query: "vector search", Mode: ModeSemantic})
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, out.SearchType)
	assert.Equal(t, 1, out.TotalResults)
	assert.Equal(t, 0.7, store.lastThreshold)

	r := out.Results[0]
	assert.Equal(t, 0.9123, r.SimilarityScore)
	assert.Equal(t, ModeSemantic, r.SearchMethod)
	assert.Equal(t, "<mark>Vector</mark> <mark>search</mark> with pgvector", r.ContentPreview)
	assert.Equal(t, "handbook.pdf", r.DocumentFilename)
	assert.NotNil(t, r.Keywords)
	assert.Equal(t, 10, out.Metadata.Limit)
	assert.Equal(t, 0.7, out.Metadata.Threshold)
}

func TestSearchSemanticEmbeddingFailure(t *testing.T) {
	_, embedder, _, svc := newSearchFixture()
	embedder.fail = func(string) error { return ai.ErrProvider }

	_, err := svc.Search(context.Background(), SearchInput{Query: "vector search", Mode: ModeSemantic})
	require.ErrorIs(t, err, ErrQueryEmbedding)
	assert.ErrorIs(t, err, ai.ErrProvider)
}

func TestSearchFulltextScoresOccurrences(t *testing.T) {
	store, embedder, _, svc := newSearchFixture()
	store.textHits = []model.PageHit{
		hit(1, 0, "Index the index; INDEX again"),
		hit(2, 0, "index "+repeat("index ", 11)),
	}

	out, err := svc.Search(context.Background(), SearchInput{Query: "index", Mode: ModeFulltext, Limit: 5})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, 0.3, out.Results[0].SimilarityScore)
	assert.Equal(t, 1.0, out.Results[1].SimilarityScore)
	assert.Equal(t, ModeFulltext, out.Results[0].SearchMethod)
	assert.Zero(t, embedder.calls.Load())
}

func TestSearchHybridUsesRelaxedThreshold(t *testing.T) {
	store, _, _, svc := newSearchFixture()
	store.vectorHits = []model.PageHit{hit(1, 0.91, "machine learning basics")}
	store.textHits = []model.PageHit{hit(1, 0, "machine learning basics"), hit(3, 0, "learning machine code")}

	out, err := svc.Search(context.Background(), SearchInput{Query: "machine learning", Threshold: ptr(0.5)})
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, out.SearchType)
	assert.InDelta(t, 0.4, store.lastThreshold, 1e-9)
	require.Len(t, out.Results, 2)
	assert.Equal(t, uint(1), out.Results[0].ID)
	assert.Equal(t, ModeSemantic, out.Results[0].SearchMethod)
	assert.Equal(t, uint(3), out.Results[1].ID)
	assert.Equal(t, ModeFulltext, out.Results[1].SearchMethod)
}

func TestSearchHybridFallbackEqualsFulltext(t *testing.T) {
	store, embedder, _, svc := newSearchFixture()
	store.textHits = []model.PageHit{hit(2, 0, "learning rate schedule"), hit(5, 0, "deep learning")}
	embedder.fail = func(string) error { return errors.New("provider down") }

	hybrid, err := svc.Search(context.Background(), SearchInput{Query: "learning", Mode: ModeHybrid})
	require.NoError(t, err)
	fulltext, err := svc.Search(context.Background(), SearchInput{Query: "learning", Mode: ModeFulltext})
	require.NoError(t, err)

	assert.Equal(t, fulltext.Results, hybrid.Results)
	assert.Zero(t, store.vectorCalls)
}

func TestSearchHybridFallbackAfterSlowProvider(t *testing.T) {
	store := newMemStore()
	store.textHits = []model.PageHit{hit(3, 0, "learning to rank")}
	embedder := &fakeEmbedder{block: true}
	svc := NewSearchService(store, embedder, store, &fakeStatsCache{}, testLogger, SearchOptions{
		DefaultLimit:     10,
		DefaultThreshold: 0.7,
		QueryTimeout:     50 * time.Millisecond,
	})

	hybrid, err := svc.Search(context.Background(), SearchInput{Query: "learning", Mode: ModeHybrid})
	require.NoError(t, err)
	require.Len(t, hybrid.Results, 1)
	assert.Equal(t, uint(3), hybrid.Results[0].ID)
	assert.Equal(t, ModeFulltext, hybrid.Results[0].SearchMethod)

	_, err = svc.Search(context.Background(), SearchInput{Query: "learning", Mode: ModeSemantic})
	require.ErrorIs(t, err, ErrQueryEmbedding)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearchValidation(t *testing.T) {
	_, _, _, svc := newSearchFixture()
	cases := []SearchInput{
		{Query: "ab"},
		{Query: "   "},
		{Query: repeat("x", 501)},
		{Query: "valid query", Limit: 21},
		{Query: "valid query", Limit: -1},
		{Query: "valid query", Threshold: ptr(1.5)},
		{Query: "valid query", Threshold: ptr(-0.1)},
		{Query: "valid query", Mode: "regex"},
	}
	for _, in := range cases {
		_, err := svc.Search(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
	}
}

func TestHighlight(t *testing.T) {
	assert.Equal(t, "a <mark>Gopher</mark> goes", highlight("a Gopher goes", "go gopher"))
	assert.Equal(t, "<mark>vector</mark> vectors <mark>VECTOR</mark>", highlight("vector vectors VECTOR", "Vector"))
	assert.Equal(t, "an of to", highlight("an of to", "an of to"))
	assert.Equal(t, "c++ and c", highlight("c++ and c", "c++"))
	assert.Equal(t, "<mark>mark</mark> the <mark>words</mark>", highlight("mark the words", "words mark"))
}

func TestStatsCached(t *testing.T) {
	store, _, cache, svc := newSearchFixture()
	doc := store.addDocument("/x.pdf")
	require.NoError(t, store.UpsertPage(context.Background(), &model.DocumentPage{DocumentID: doc.ID, PageNumber: 1, WordCount: 10}))
	require.NoError(t, store.UpsertPage(context.Background(), &model.DocumentPage{DocumentID: doc.ID, PageNumber: 2, WordCount: 5}))
	require.NoError(t, store.UpsertPage(context.Background(), &model.DocumentPage{DocumentID: doc.ID, PageNumber: 3, WordCount: 5}))
	require.NoError(t, store.SetEmbedding(context.Background(), 1, []float32{1}, store.doc(doc.ID).CreatedAt))

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDocuments)
	assert.Equal(t, int64(3), stats.TotalPages)
	assert.Equal(t, int64(1), stats.PagesWithEmbeddings)
	assert.Equal(t, int64(1), stats.ProcessingDocuments)
	assert.Equal(t, int64(20), stats.TotalWords)
	assert.Equal(t, 6.67, stats.AverageWordsPerPage)
	assert.Equal(t, 33.33, stats.ProcessingProgress)
	require.NotNil(t, cache.cached)

	store.addDocument("/y.pdf")
	again, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.TotalDocuments, "served from cache")

	require.NoError(t, cache.Invalidate(context.Background()))
	fresh, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.TotalDocuments)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
