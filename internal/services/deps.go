package services

import (
	"context"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/pagelift/pagelift/internal/models"
)

// BlobStore is the content store for raw uploads and page images. Refs are
// opaque handles minted by Put.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Read(ctx context.Context, ref string) ([]byte, string, error)
	SignedURL(ref string, expiry time.Duration) (string, error)
	URI(ref string) string
}

// DocumentStore is the persistent record of documents and their processing
// state. SetProcessing is written only by the ingestion workflow;
// SetCompleted and SetFailed only by the extraction worker.
type DocumentStore interface {
	NewID() string
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	SetProcessing(ctx context.Context, id string, pageRefs []string, pageCount int) error
	SetCompleted(ctx context.Context, id string, res *models.ExtractionResult) error
	SetFailed(ctx context.Context, id, message string) error
}

// Rasterizer converts a PDF byte stream into ordered page images.
type Rasterizer interface {
	RenderPages(ctx context.Context, pdf []byte, scale float64) ([]models.PageImage, error)
}

// Dispatcher hands a document off for asynchronous extraction. Dispatch
// never blocks on extraction and never propagates its failure to the caller.
type Dispatcher interface {
	Dispatch(docID string)
}

// Extractor drives one document from processing to a terminal state.
type Extractor interface {
	Extract(ctx context.Context, docID string) error
}

// ContentGenerator runs the extraction model over a set of content parts.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}
