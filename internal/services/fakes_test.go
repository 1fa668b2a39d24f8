package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/pagelift/pagelift/internal/apperr"
	"github.com/pagelift/pagelift/internal/models"
)

type fakeObject struct {
	data        []byte
	contentType string
}

type fakeBlobStore struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	failAll  bool
	failKeys map[string]bool
	urlBase  string
	puts     int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:  make(map[string]fakeObject),
		failKeys: make(map[string]bool),
	}
}

func (b *fakeBlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.failAll || b.failKeys[key] {
		return "", apperr.New(apperr.ErrStorage, "failed to store file")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.objects[key] = fakeObject{data: cp, contentType: contentType}
	return key, nil
}

func (b *fakeBlobStore) Read(ctx context.Context, ref string) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[ref]
	if !ok {
		return nil, "", apperr.New(apperr.ErrNotFound, "file not found")
	}
	return obj.data, obj.contentType, nil
}

func (b *fakeBlobStore) SignedURL(ref string, expiry time.Duration) (string, error) {
	if b.urlBase == "" {
		return "", apperr.New(apperr.ErrUpstream, "failed to resolve file URL")
	}
	return b.urlBase + "/" + ref, nil
}

func (b *fakeBlobStore) URI(ref string) string {
	return "gs://test-bucket/" + ref
}

type fakeDocumentStore struct {
	mu                sync.Mutex
	docs              map[string]*models.Document
	nextID            int
	failCreate        bool
	failSetProcessing bool
	failSetFailed     bool
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[string]*models.Document)}
}

func (s *fakeDocumentStore) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("doc-%04d", s.nextID)
}

func (s *fakeDocumentStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return apperr.New(apperr.ErrStorage, "failed to create document record")
	}
	cp := *doc
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeDocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "document not found")
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeDocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, doc := range s.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *fakeDocumentStore) SetProcessing(ctx context.Context, id string, pageRefs []string, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetProcessing {
		return apperr.New(apperr.ErrStorage, "failed to update document record")
	}
	doc, ok := s.docs[id]
	if !ok {
		return apperr.New(apperr.ErrNotFound, "document not found")
	}
	doc.Status = models.StatusProcessing
	doc.PageCount = pageCount
	if len(pageRefs) > 0 {
		doc.PageImageRefs = pageRefs
	}
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *fakeDocumentStore) SetCompleted(ctx context.Context, id string, res *models.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res == nil || (res.Markdown == "" && len(res.Chunks) == 0) {
		return apperr.New(apperr.ErrInternal, "refusing to mark completed without extracted content")
	}
	doc, ok := s.docs[id]
	if !ok {
		return apperr.New(apperr.ErrNotFound, "document not found")
	}
	doc.Status = models.StatusCompleted
	doc.Markdown = res.Markdown
	doc.Chunks = res.Chunks
	doc.Marginalia = res.Marginalia
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *fakeDocumentStore) SetFailed(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetFailed {
		return apperr.New(apperr.ErrStorage, "failed to update document record")
	}
	if message == "" {
		return apperr.New(apperr.ErrInternal, "refusing to mark failed without an error message")
	}
	doc, ok := s.docs[id]
	if !ok {
		return apperr.New(apperr.ErrNotFound, "document not found")
	}
	doc.Status = models.StatusFailed
	doc.ErrorMessage = message
	doc.UpdatedAt = time.Now()
	return nil
}

type fakeRasterizer struct {
	pageCount int
	fail      bool
}

func (r *fakeRasterizer) RenderPages(ctx context.Context, pdf []byte, scale float64) ([]models.PageImage, error) {
	if r.fail {
		return nil, fmt.Errorf("render failed")
	}
	pages := make([]models.PageImage, r.pageCount)
	for i := range pages {
		pages[i] = models.PageImage{
			Index:       i,
			Data:        []byte(fmt.Sprintf("png-bytes-page-%d", i)),
			ContentType: "image/png",
			Scale:       scale,
		}
	}
	return pages, nil
}

type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []string
}

func (d *recordingDispatcher) Dispatch(docID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, docID)
}

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	calls int
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.calls++
	return g.resp, g.err
}

type fakeExtractor struct {
	mu     sync.Mutex
	calls  []string
	err    error
	block  chan struct{}
	onCall func(ctx context.Context, docID string) error
}

func (e *fakeExtractor) Extract(ctx context.Context, docID string) error {
	e.mu.Lock()
	e.calls = append(e.calls, docID)
	e.mu.Unlock()
	if e.block != nil {
		<-e.block
	}
	if e.onCall != nil {
		return e.onCall(ctx, docID)
	}
	return e.err
}
