package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pagelift/pagelift/internal/apperr"
	"github.com/pagelift/pagelift/internal/models"
)

// DocumentService serves the consumer-facing read paths: record lookups,
// the dashboard listing, and page-image retrieval.
type DocumentService struct {
	blobs     BlobStore
	docs      DocumentStore
	fetch     *retryablehttp.Client
	urlExpiry time.Duration
}

// NewDocumentService wires the read paths. The fetch client retries
// transient blob-endpoint failures on its own.
func NewDocumentService(blobs BlobStore, docs DocumentStore, urlExpiry time.Duration) *DocumentService {
	fetch := retryablehttp.NewClient()
	fetch.RetryMax = 2
	fetch.Logger = nil
	return &DocumentService{
		blobs:     blobs,
		docs:      docs,
		fetch:     fetch,
		urlExpiry: urlExpiry,
	}
}

// Get returns one document, enforcing ownership.
func (s *DocumentService) Get(ctx context.Context, docID, requesterID string) (*models.Document, error) {
	if requesterID == "" {
		return nil, apperr.New(apperr.ErrUnauthorized, "authentication required")
	}
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != requesterID {
		return nil, apperr.New(apperr.ErrPermissionDenied, "you do not have access to this document")
	}
	return doc, nil
}

// List returns the requester's documents, newest first.
func (s *DocumentService) List(ctx context.Context, requesterID string) ([]models.Document, error) {
	if requesterID == "" {
		return nil, apperr.New(apperr.ErrUnauthorized, "authentication required")
	}
	return s.docs.ListByOwner(ctx, requesterID)
}

// GetPageImage resolves a (document, page index) pair to displayable bytes.
// Page images are immutable once attached, so responses are safe to cache.
func (s *DocumentService) GetPageImage(ctx context.Context, docID string, pageIndex int, requesterID string) ([]byte, string, error) {
	doc, err := s.Get(ctx, docID, requesterID)
	if err != nil {
		return nil, "", err
	}
	if pageIndex < 0 {
		return nil, "", apperr.New(apperr.ErrValidation, "page index must not be negative")
	}
	if pageIndex >= len(doc.PageImageRefs) {
		return nil, "", apperr.Newf(apperr.ErrNotFound, "no page image at index %d", pageIndex)
	}

	url, err := s.blobs.SignedURL(doc.PageImageRefs[pageIndex], s.urlExpiry)
	if err != nil {
		return nil, "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrInternal, "failed to build page image request")
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		slog.Error("Page image fetch failed.", "documentId", docID, "pageIndex", pageIndex, "error", err)
		return nil, "", apperr.Wrap(err, apperr.ErrUpstream, "page image store unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		slog.Error("Page image fetch returned unexpected status.", "documentId", docID, "pageIndex", pageIndex, "status", resp.StatusCode)
		return nil, "", apperr.Newf(apperr.ErrUpstream, "page image store returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrUpstream, "page image store unavailable")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return data, contentType, nil
}
