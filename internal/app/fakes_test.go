package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgvector/pgvector-go"

	"pdfrag/internal/ai"
	"pdfrag/internal/model"
	"pdfrag/internal/pkg/logger"
)

type pageKey struct {
	documentID uint
	pageNumber int
}

// memStore implements DocumentStore, PageStore and VectorStore in memory.
type memStore struct {
	mu         sync.Mutex
	docs       map[uint]*model.Document
	pages      map[pageKey]*model.DocumentPage
	nextDocID  uint
	nextPageID uint

	failUpsertAt int
	finishCalls  int

	vectorHits    []model.PageHit
	textHits      []model.PageHit
	vectorErr     error
	lastThreshold float64
	vectorCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		docs:  make(map[uint]*model.Document),
		pages: make(map[pageKey]*model.DocumentPage),
	}
}

func (m *memStore) addDocument(path string) *model.Document {
	doc := &model.Document{Title: "Doc", OriginalFilename: "doc.pdf", FilePath: path, Status: model.StatusProcessing}
	_ = m.Create(context.Background(), doc)
	return doc
}

func (m *memStore) doc(id uint) model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.docs[id]
}

func (m *memStore) pageList(documentID uint) []model.DocumentPage {
	pages, _ := m.ListByDocument(context.Background(), documentID)
	return pages
}

func (m *memStore) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDocID++
	doc.ID = m.nextDocID
	doc.CreatedAt = time.Now()
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id uint) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (m *memStore) List(_ context.Context, page, perPage int) ([]model.DocumentSummary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var out []model.DocumentSummary
	for i := (page - 1) * perPage; i < len(ids) && i < page*perPage; i++ {
		out = append(out, model.DocumentSummary{Document: *m.docs[ids[i]]})
	}
	return out, int64(len(ids)), nil
}

func (m *memStore) MarkProcessing(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id].Status = model.StatusProcessing
	m.docs[id].ProcessingError = nil
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, id uint, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id].Status = model.StatusFailed
	m.docs[id].ProcessingError = &message
	return nil
}

func (m *memStore) FinishIngest(_ context.Context, id uint, status model.DocumentStatus, totalPages int, processingError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishCalls++
	doc := m.docs[id]
	doc.Status = status
	doc.TotalPages = totalPages
	doc.ProcessingError = processingError
	for key := range m.pages {
		if key.documentID == id && key.pageNumber > totalPages {
			delete(m.pages, key)
		}
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	for key := range m.pages {
		if key.documentID == id {
			delete(m.pages, key)
		}
	}
	return nil
}

func (m *memStore) Stats(_ context.Context) (*model.KnowledgeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &model.KnowledgeStats{TotalDocuments: int64(len(m.docs)), TotalPages: int64(len(m.pages))}
	for _, d := range m.docs {
		switch d.Status {
		case model.StatusProcessing:
			s.ProcessingDocuments++
		case model.StatusFailed:
			s.FailedDocuments++
		}
	}
	for _, p := range m.pages {
		if p.HasEmbedding {
			s.PagesWithEmbeddings++
		}
		s.TotalWords += int64(p.WordCount)
	}
	if len(m.pages) > 0 {
		s.AverageWordsPerPage = float64(s.TotalWords) / float64(len(m.pages))
	}
	return s, nil
}

func (m *memStore) UpsertPage(_ context.Context, page *model.DocumentPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsertAt != 0 && page.PageNumber == m.failUpsertAt {
		return errors.New("connection reset")
	}
	key := pageKey{page.DocumentID, page.PageNumber}
	if existing, ok := m.pages[key]; ok {
		page.ID = existing.ID
	} else {
		m.nextPageID++
		page.ID = m.nextPageID
	}
	cp := *page
	cp.HasEmbedding = false
	cp.Embedding = nil
	cp.EmbeddingGeneratedAt = nil
	m.pages[key] = &cp
	return nil
}

func (m *memStore) SetEmbedding(_ context.Context, pageID uint, vec []float32, generatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pages {
		if p.ID == pageID {
			v := pgvector.NewVector(vec)
			p.Embedding = &v
			p.HasEmbedding = true
			p.EmbeddingGeneratedAt = &generatedAt
			return nil
		}
	}
	return errors.New("page not found")
}

func (m *memStore) ListByDocument(_ context.Context, documentID uint) ([]model.DocumentPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DocumentPage
	for key, p := range m.pages {
		if key.documentID == documentID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (m *memStore) GetPage(_ context.Context, documentID uint, pageNumber int) (*model.DocumentPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pageKey{documentID, pageNumber}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SearchByVector(_ context.Context, _ []float32, threshold float64, limit int) ([]model.PageHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectorCalls++
	m.lastThreshold = threshold
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}
	return clip(m.vectorHits, limit), nil
}

func (m *memStore) SearchByText(ctx context.Context, _ string, limit int) ([]model.PageHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return clip(m.textHits, limit), nil
}

func clip(hits []model.PageHit, limit int) []model.PageHit {
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return append([]model.PageHit(nil), hits...)
}

type fakeEmbedder struct {
	calls atomic.Int64
	fail  func(text string) error
	dims  int
	// block makes Embed wait for ctx to end, like a provider that never answers.
	block bool
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) (*ai.Embedding, error) {
	e.calls.Add(1)
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.fail != nil {
		if err := e.fail(text); err != nil {
			return nil, err
		}
	}
	dims := e.dims
	if dims == 0 {
		dims = 3
	}
	vec := make([]float32, dims)
	vec[0] = float32(len(text))
	return &ai.Embedding{Vector: vec, Dims: dims}, nil
}

type fakeExtractor struct {
	text   string
	err    error
	panics bool
	calls  int
}

func (e *fakeExtractor) ExtractFile(ctx context.Context, _ string) (string, error) {
	e.calls++
	if e.panics {
		panic("xref table corrupt")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.text, e.err
}

type fakeLease struct {
	mu   sync.Mutex
	held map[uint]bool
}

func newFakeLease() *fakeLease {
	return &fakeLease{held: make(map[uint]bool)}
}

func (l *fakeLease) Acquire(_ context.Context, documentID uint) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[documentID] {
		return nil, false, nil
	}
	l.held[documentID] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, documentID)
		return nil
	}, true, nil
}

func (l *fakeLease) isHeld(documentID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[documentID]
}

type fakeFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	saves   int
	removed []string
}

func newFakeFiles(paths ...string) *fakeFiles {
	f := &fakeFiles{files: make(map[string][]byte)}
	for _, p := range paths {
		f.files[p] = []byte("%PDF-1.4")
	}
	return f
}

func (f *fakeFiles) Save(_ context.Context, r io.Reader, ext string) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	path := "/uploads/" + strings.Repeat("f", f.saves) + ext
	f.files[path] = data
	return path, int64(len(data)), nil
}

func (f *fakeFiles) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func (f *fakeFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	f.removed = append(f.removed, path)
	return nil
}

type fakePublisher struct {
	jobs []model.IngestJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, job model.IngestJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeStatsCache struct {
	mu            sync.Mutex
	cached        *model.KnowledgeStats
	invalidations int
}

func (c *fakeStatsCache) Get(context.Context) (*model.KnowledgeStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil {
		return nil, false, nil
	}
	cp := *c.cached
	return &cp, true, nil
}

func (c *fakeStatsCache) Set(_ context.Context, stats *model.KnowledgeStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *stats
	c.cached = &cp
	return nil
}

func (c *fakeStatsCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.invalidations++
	return nil
}

var testLogger = logger.Discard()
