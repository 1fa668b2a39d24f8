package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pagelift/pagelift/internal/apperr"
	"github.com/pagelift/pagelift/internal/models"
)

// DocumentStore persists document records in Firestore. A single record
// update is atomic; the ingestion workflow relies on that and never takes
// explicit locks.
type DocumentStore struct {
	client     *firestore.Client
	collection string
}

// NewDocumentStore creates the process-wide Firestore-backed record store.
func NewDocumentStore(ctx context.Context, projectID, collection string) (*DocumentStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a document store")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &DocumentStore{client: client, collection: collection}, nil
}

// NewID allocates a document id without writing anything. Blob keys are
// derived from the id before the record itself exists.
func (s *DocumentStore) NewID() string {
	return s.client.Collection(s.collection).NewDoc().ID
}

// Create writes the initial record. The document becomes visible to its
// owner, and to anyone listening on the collection, as soon as this returns.
func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	if _, err := s.client.Collection(s.collection).Doc(doc.ID).Create(ctx, doc); err != nil {
		return apperr.Wrap(err, apperr.ErrStorage, "failed to create document record")
	}
	return nil
}

// Get fetches one record by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.Wrap(err, apperr.ErrNotFound, "document not found")
		}
		return nil, apperr.Wrap(err, apperr.ErrUpstream, "document store unavailable")
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to decode document record")
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

// ListByOwner returns all of one owner's documents, newest first.
func (s *DocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	it := s.client.Collection(s.collection).
		Where("ownerId", "==", ownerID).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)

	var docs []models.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrUpstream, "document store unavailable")
		}
		var doc models.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to decode document record")
		}
		doc.ID = snap.Ref.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

// SetProcessing advances a record to processing, attaching the page-image
// set. Callers pass refs only as a complete, page-count-consistent set;
// a degraded ingestion passes nil refs and the default page count.
func (s *DocumentStore) SetProcessing(ctx context.Context, id string, pageRefs []string, pageCount int) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusProcessing},
		{Path: "pageCount", Value: pageCount},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if len(pageRefs) > 0 {
		updates = append(updates, firestore.Update{Path: "pageImageRefs", Value: pageRefs})
	}
	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates); err != nil {
		return apperr.Wrap(err, apperr.ErrStorage, "failed to update document record")
	}
	return nil
}

// SetCompleted writes the terminal completed state together with the
// extracted content. A completed record always carries content.
func (s *DocumentStore) SetCompleted(ctx context.Context, id string, res *models.ExtractionResult) error {
	if res == nil || (res.Markdown == "" && len(res.Chunks) == 0) {
		return apperr.New(apperr.ErrInternal, "refusing to mark completed without extracted content")
	}
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusCompleted},
		{Path: "markdown", Value: res.Markdown},
		{Path: "chunks", Value: res.Chunks},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if len(res.Marginalia) > 0 {
		updates = append(updates, firestore.Update{Path: "marginalia", Value: res.Marginalia})
	}
	if res.RawResponse != "" {
		updates = append(updates, firestore.Update{Path: "rawResponse", Value: res.RawResponse})
	}
	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates); err != nil {
		return apperr.Wrap(err, apperr.ErrStorage, "failed to update document record")
	}
	return nil
}

// SetFailed writes the terminal failed state. The message is surfaced to
// the owner verbatim, so it must never be empty.
func (s *DocumentStore) SetFailed(ctx context.Context, id, message string) error {
	if message == "" {
		return apperr.New(apperr.ErrInternal, "refusing to mark failed without an error message")
	}
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusFailed},
		{Path: "errorMessage", Value: message},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates); err != nil {
		return apperr.Wrap(err, apperr.ErrStorage, "failed to update document record")
	}
	return nil
}

// Close releases the underlying client.
func (s *DocumentStore) Close() error {
	return s.client.Close()
}
