package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h2non/filetype"
	"golang.org/x/sync/errgroup"

	"github.com/pagelift/pagelift/internal/apperr"
	"github.com/pagelift/pagelift/internal/models"
)

const (
	mimePDF  = "application/pdf"
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"

	pageUploadConcurrency = 10
)

var allowedMimeTypes = map[string]string{
	mimePDF:  ".pdf",
	mimeJPEG: ".jpg",
	mimePNG:  ".png",
}

// Upload is one file as received from the API boundary.
type Upload struct {
	Filename    string
	Title       string
	ContentType string
	Data        []byte
}

// IngestionConfig bounds the ingestion workflow.
type IngestionConfig struct {
	MaxUploadBytes int64
	RasterScale    float64
}

// IngestionService drives an uploaded file from raw bytes to the processing
// hand-off. It owns the uploading and processing status transitions; terminal
// states belong to the extraction worker.
type IngestionService struct {
	blobs      BlobStore
	docs       DocumentStore
	rasterizer Rasterizer
	dispatcher Dispatcher
	config     IngestionConfig
}

// NewIngestionService wires the ingestion workflow. All clients are
// constructed once per process and shared.
func NewIngestionService(blobs BlobStore, docs DocumentStore, rasterizer Rasterizer, dispatcher Dispatcher, config IngestionConfig) *IngestionService {
	return &IngestionService{
		blobs:      blobs,
		docs:       docs,
		rasterizer: rasterizer,
		dispatcher: dispatcher,
		config:     config,
	}
}

// pageSet is the outcome of the best-effort rasterize-and-upload phase.
// Either the complete ordered ref set is present, or the set is degraded and
// the document proceeds without page previews.
type pageSet struct {
	refs     []string
	degraded bool
	reason   string
}

// Ingest validates and stores one upload, creates its record, attaches page
// previews when possible, and hands the document off for extraction. The
// returned document is already in processing; extraction continues in the
// background.
func (s *IngestionService) Ingest(ctx context.Context, upload *Upload, ownerID string) (*models.Document, error) {
	if ownerID == "" {
		return nil, apperr.New(apperr.ErrUnauthorized, "authentication required")
	}
	if err := s.validateUpload(upload); err != nil {
		return nil, err
	}

	docID := s.docs.NewID()
	logCtx := slog.With("documentId", docID, "ownerId", ownerID, "fileName", upload.Filename)
	logCtx.Info("Ingesting upload.", "fileSize", len(upload.Data), "mimeType", upload.ContentType)

	// Step 1: raw bytes first. Failure here leaves no trace of the document.
	rawKey := fmt.Sprintf("%s/source%s", docID, allowedMimeTypes[upload.ContentType])
	rawRef, err := s.blobs.Put(ctx, rawKey, upload.ContentType, upload.Data)
	if err != nil {
		logCtx.Error("Raw upload failed, aborting ingestion.", "error", err)
		return nil, err
	}

	// Step 2: the record becomes visible to the owner from this point on,
	// before any slower best-effort work is attempted.
	doc := &models.Document{
		ID:         docID,
		OwnerID:    ownerID,
		Title:      upload.Title,
		Status:     models.StatusUploading,
		RawFileRef: rawRef,
		PageCount:  1,
		FileSize:   int64(len(upload.Data)),
		MimeType:   upload.ContentType,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		logCtx.Error("Failed to create document record.", "error", err)
		return nil, err
	}
	logCtx.Info("Created document record.")

	// Steps 3-4: best-effort page previews. A degraded set never fails the
	// ingestion; the document proceeds to extraction without previews.
	pages := s.preparePageImages(ctx, logCtx, docID, upload)
	if pages.degraded {
		logCtx.Warn("Proceeding without page previews.", "reason", pages.reason)
	}

	pageCount := doc.PageCount
	if !pages.degraded && len(pages.refs) > 0 {
		pageCount = len(pages.refs)
	}

	// Step 5: processing is the state the caller observes on return.
	if err := s.docs.SetProcessing(ctx, docID, pages.refs, pageCount); err != nil {
		logCtx.Error("Failed to advance document to processing.", "error", err)
		return nil, err
	}
	doc.Status = models.StatusProcessing
	doc.PageCount = pageCount
	doc.PageImageRefs = pages.refs

	// Step 6: fire-and-forget. Extraction failures are the dispatcher's to
	// log; they never reach this caller.
	s.dispatcher.Dispatch(docID)

	logCtx.Info("Ingestion complete, extraction dispatched.", "pageCount", pageCount)
	return doc, nil
}

// validateUpload rejects disallowed input before any side effect occurs.
func (s *IngestionService) validateUpload(upload *Upload) error {
	if upload == nil || len(upload.Data) == 0 {
		return apperr.New(apperr.ErrValidation, "uploaded file is empty")
	}
	if int64(len(upload.Data)) > s.config.MaxUploadBytes {
		return apperr.Newf(apperr.ErrValidation, "file exceeds the maximum size of %d bytes", s.config.MaxUploadBytes)
	}
	if _, ok := allowedMimeTypes[upload.ContentType]; !ok {
		return apperr.Newf(apperr.ErrValidation, "unsupported content type %q, accepted types are PDF, JPEG and PNG", upload.ContentType)
	}

	// Cross-check the declared type against magic bytes. An unknown sniff is
	// tolerated; a positive mismatch is not. Whether a declared PDF actually
	// parses is checked later, inside the best-effort rasterization phase.
	if kind, err := filetype.Match(upload.Data); err == nil && kind != filetype.Unknown {
		if kind.MIME.Value != upload.ContentType {
			return apperr.Newf(apperr.ErrValidation, "file content does not match declared type %q", upload.ContentType)
		}
	}
	return nil
}

// preparePageImages rasterizes a PDF and uploads the page set. Page images
// attach as a complete, page-count-consistent set or not at all: any failure
// mid-sequence abandons the whole set.
func (s *IngestionService) preparePageImages(ctx context.Context, logCtx *slog.Logger, docID string, upload *Upload) pageSet {
	if upload.ContentType != mimePDF {
		return pageSet{}
	}

	pages, err := s.rasterizer.RenderPages(ctx, upload.Data, s.config.RasterScale)
	if err != nil {
		logCtx.Warn("Rasterization failed.", "error", err)
		return pageSet{degraded: true, reason: fmt.Sprintf("rasterization failed: %v", err)}
	}

	refs := make([]string, len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(pageUploadConcurrency)

	for _, page := range pages {
		eg.Go(func() error {
			key := fmt.Sprintf("%s/pages/%05d.png", docID, page.Index)
			ref, err := s.blobs.Put(gctx, key, page.ContentType, page.Data)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Index, err)
			}
			refs[page.Index] = ref
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Warn("Page image upload failed, abandoning the set.", "error", err)
		return pageSet{degraded: true, reason: fmt.Sprintf("page upload failed: %v", err)}
	}

	logCtx.Info("Page previews uploaded.", "pageCount", len(refs))
	return pageSet{refs: refs}
}
