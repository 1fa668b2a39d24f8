package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pagelift/pagelift/internal/apperr"
	"github.com/pagelift/pagelift/internal/models"
)

// Export formats. Markdown, text and CSV are produced locally from the
// extracted content; DOCX is proxied to the export backend.
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatDocx     = "docx"
)

// ExportService turns a completed document's extracted content into a
// downloadable file.
type ExportService struct {
	docs       *DocumentService
	backendURL string
	client     *retryablehttp.Client
}

// NewExportService wires the export paths. backendURL may be empty, in which
// case DOCX export reports the backend as unavailable.
func NewExportService(docs *DocumentService, backendURL string) *ExportService {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &ExportService{
		docs:       docs,
		backendURL: backendURL,
		client:     client,
	}
}

// Export returns the file bytes and their content type.
func (s *ExportService) Export(ctx context.Context, docID, format, requesterID string) ([]byte, string, error) {
	doc, err := s.docs.Get(ctx, docID, requesterID)
	if err != nil {
		return nil, "", err
	}
	if doc.Status != models.StatusCompleted {
		return nil, "", apperr.Newf(apperr.ErrValidation, "document is not ready for export (status %s)", doc.Status)
	}

	switch format {
	case FormatMarkdown:
		return []byte(doc.Markdown), "text/markdown; charset=utf-8", nil
	case FormatText:
		return []byte(doc.Markdown), "text/plain; charset=utf-8", nil
	case FormatCSV:
		data, err := chunksToCSV(doc.Chunks)
		if err != nil {
			return nil, "", apperr.Wrap(err, apperr.ErrInternal, "failed to build CSV export")
		}
		return data, "text/csv; charset=utf-8", nil
	case FormatDocx:
		return s.proxyDocx(ctx, doc)
	default:
		return nil, "", apperr.Newf(apperr.ErrValidation, "unsupported export format %q", format)
	}
}

// chunksToCSV renders the chunk table: one row per chunk with its page and
// bounding box.
func chunksToCSV(chunks []models.ContentChunk) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "page", "text", "x", "y", "width", "height"}); err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		row := []string{chunk.ID, strconv.Itoa(chunk.Page), chunk.Text, "", "", "", ""}
		if bb := chunk.BoundingBox; bb != nil {
			row[3] = strconv.FormatFloat(bb.X, 'f', -1, 64)
			row[4] = strconv.FormatFloat(bb.Y, 'f', -1, 64)
			row[5] = strconv.FormatFloat(bb.Width, 'f', -1, 64)
			row[6] = strconv.FormatFloat(bb.Height, 'f', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// proxyDocx forwards the document's markdown to the export backend and
// streams the converted file back. Upstream failures surface with the
// upstream's status where available.
func (s *ExportService) proxyDocx(ctx context.Context, doc *models.Document) ([]byte, string, error) {
	if s.backendURL == "" {
		return nil, "", apperr.New(apperr.ErrUpstream, "docx export backend is not configured")
	}

	endpoint := fmt.Sprintf("%s/convert/docx", s.backendURL)
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", endpoint, []byte(doc.Markdown))
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrInternal, "failed to build export request")
	}
	req.Header.Set("Content-Type", "text/markdown")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("Export backend call failed.", "documentId", doc.ID, "error", err)
		return nil, "", apperr.Wrap(err, apperr.ErrUpstream, "export backend unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		slog.Error("Export backend returned unexpected status.", "documentId", doc.ID, "status", resp.StatusCode)
		// Proxy the upstream's status class back to the caller where it maps
		// cleanly; anything else is a 500.
		sentinel := apperr.ErrUpstream
		switch resp.StatusCode {
		case 401:
			sentinel = apperr.ErrUnauthorized
		case 403:
			sentinel = apperr.ErrPermissionDenied
		case 404:
			sentinel = apperr.ErrNotFound
		case 400, 422:
			sentinel = apperr.ErrValidation
		}
		return nil, "", apperr.Newf(sentinel, "export backend returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrUpstream, "export backend unavailable")
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return data, contentType, nil
}
