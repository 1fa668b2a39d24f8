package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/pagelift/internal/models"
)

func TestDispatchDoesNotBlockCaller(t *testing.T) {
	ext := &fakeExtractor{block: make(chan struct{})}
	d := NewAsyncDispatcher(ext, time.Minute)

	done := make(chan struct{})
	go func() {
		d.Dispatch("doc-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a running extraction")
	}

	close(ext.block)
	d.Wait()
	assert.Equal(t, []string{"doc-1"}, ext.calls)
}

func TestDispatchFailureStaysWithDispatcher(t *testing.T) {
	// Scenario: the extraction hand-off fails with a network error. The
	// document must remain in processing and the caller must never see it.
	docs := newFakeDocumentStore()
	doc := &models.Document{ID: docs.NewID(), OwnerID: "owner-1", Status: models.StatusProcessing, PageCount: 1}
	require.NoError(t, docs.Create(context.Background(), doc))

	ext := &fakeExtractor{err: fmt.Errorf("dial tcp: connection refused")}
	d := NewAsyncDispatcher(ext, time.Minute)

	d.Dispatch(doc.ID)
	d.Wait()

	stored, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	assert.Empty(t, stored.ErrorMessage)
}

func TestDispatchTimeoutIsEnforced(t *testing.T) {
	ext := &fakeExtractor{onCall: func(ctx context.Context, docID string) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	d := NewAsyncDispatcher(ext, 10*time.Millisecond)

	d.Dispatch("doc-1")

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("extraction context was never cancelled")
	}
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content}},
	}
}

func TestExtractResponseText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{
			name: "plain json",
			resp: textResponse(`{"markdown":"# Hi"}`),
			want: `{"markdown":"# Hi"}`,
		},
		{
			name: "fenced json",
			resp: textResponse("```json\n{\"markdown\":\"# Hi\"}\n```"),
			want: `{"markdown":"# Hi"}`,
		},
		{
			name: "concatenated parts",
			resp: textResponse(`{"markdown":`, `"# Hi"}`),
			want: `{"markdown":"# Hi"}`,
		},
		{
			name: "nil response",
			resp: nil,
			want: "",
		},
		{
			name: "empty candidates",
			resp: &genai.GenerateContentResponse{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractResponseText(tt.resp))
		})
	}
}

func TestDetectRefusal(t *testing.T) {
	_, refused := detectRefusal(`{"markdown":"normal content"}`)
	assert.False(t, refused)

	phrase, refused := detectRefusal("I am unable to process this document.")
	assert.True(t, refused)
	assert.Equal(t, "i am unable to", phrase)
}

func seedProcessingDocument(t *testing.T, docs *fakeDocumentStore) *models.Document {
	t.Helper()
	doc := &models.Document{
		ID:         docs.NewID(),
		OwnerID:    "owner-1",
		Title:      "report.pdf",
		Status:     models.StatusProcessing,
		RawFileRef: "doc-0001/source.pdf",
		MimeType:   "application/pdf",
		PageCount:  1,
	}
	require.NoError(t, docs.Create(context.Background(), doc))
	return doc
}

func TestExtractOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		resp        *genai.GenerateContentResponse
		genErr      error
		wantErr     bool
		wantStatus  models.DocumentStatus
		wantMessage string
	}{
		{
			name:       "valid output completes the document",
			resp:       textResponse(`{"markdown":"# Title","chunks":[{"id":"c1","text":"Title","page":1}]}`),
			wantStatus: models.StatusCompleted,
		},
		{
			name:        "refusal fails the document",
			resp:        textResponse("I am unable to process this document."),
			wantStatus:  models.StatusFailed,
			wantMessage: "extraction was refused by the model",
		},
		{
			name:        "malformed output fails the document",
			resp:        textResponse("here is the document content, not as json"),
			wantStatus:  models.StatusFailed,
			wantMessage: "extraction returned malformed output",
		},
		{
			name:        "empty output fails the document",
			resp:        &genai.GenerateContentResponse{},
			wantStatus:  models.StatusFailed,
			wantMessage: "extraction produced no content",
		},
		{
			name:       "model call failure leaves the document processing",
			genErr:     fmt.Errorf("rpc error: code = Unavailable"),
			wantErr:    true,
			wantStatus: models.StatusProcessing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := newFakeDocumentStore()
			doc := seedProcessingDocument(t, docs)
			ext := NewVertexExtractor(&fakeGenerator{resp: tt.resp, err: tt.genErr}, newFakeBlobStore(), docs)

			err := ext.Extract(context.Background(), doc.ID)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			stored, getErr := docs.Get(context.Background(), doc.ID)
			require.NoError(t, getErr)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, tt.wantMessage, stored.ErrorMessage)
			if tt.wantStatus == models.StatusCompleted {
				assert.Equal(t, "# Title", stored.Markdown)
				assert.Len(t, stored.Chunks, 1)
			}
		})
	}
}

func TestExtractSkipsDocumentsNotAwaitingExtraction(t *testing.T) {
	for _, status := range []models.DocumentStatus{models.StatusUploading, models.StatusCompleted, models.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			docs := newFakeDocumentStore()
			doc := &models.Document{
				ID:         docs.NewID(),
				OwnerID:    "owner-1",
				Status:     status,
				RawFileRef: "doc-0001/source.pdf",
				MimeType:   "application/pdf",
			}
			require.NoError(t, docs.Create(context.Background(), doc))

			gen := &fakeGenerator{resp: textResponse(`{"markdown":"# Title"}`)}
			ext := NewVertexExtractor(gen, newFakeBlobStore(), docs)

			require.NoError(t, ext.Extract(context.Background(), doc.ID))
			assert.Zero(t, gen.calls, "the model must not be consulted for a %s document", status)

			stored, err := docs.Get(context.Background(), doc.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
		})
	}
}

func TestExtractMissingDocument(t *testing.T) {
	gen := &fakeGenerator{}
	ext := NewVertexExtractor(gen, newFakeBlobStore(), newFakeDocumentStore())

	require.Error(t, ext.Extract(context.Background(), "no-such-doc"))
	assert.Zero(t, gen.calls)
}

func TestExtractFailureWritePropagates(t *testing.T) {
	// When the failed-state write itself fails, the document genuinely
	// remains in processing and the dispatcher must hear about it.
	docs := newFakeDocumentStore()
	doc := seedProcessingDocument(t, docs)
	docs.failSetFailed = true

	ext := NewVertexExtractor(&fakeGenerator{resp: textResponse("not json at all")}, newFakeBlobStore(), docs)
	require.Error(t, ext.Extract(context.Background(), doc.ID))

	stored, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)
}

func TestSetCompletedRequiresContent(t *testing.T) {
	docs := newFakeDocumentStore()
	doc := &models.Document{ID: docs.NewID(), OwnerID: "owner-1", Status: models.StatusProcessing}
	require.NoError(t, docs.Create(context.Background(), doc))

	err := docs.SetCompleted(context.Background(), doc.ID, &models.ExtractionResult{})
	require.Error(t, err, "completed without content must be refused")

	err = docs.SetCompleted(context.Background(), doc.ID, &models.ExtractionResult{Markdown: "# Hi"})
	require.NoError(t, err)

	stored, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestSetFailedRequiresMessage(t *testing.T) {
	docs := newFakeDocumentStore()
	doc := &models.Document{ID: docs.NewID(), OwnerID: "owner-1", Status: models.StatusProcessing}
	require.NoError(t, docs.Create(context.Background(), doc))

	require.Error(t, docs.SetFailed(context.Background(), doc.ID, ""))
	require.NoError(t, docs.SetFailed(context.Background(), doc.ID, "extraction was refused by the model"))

	stored, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}
