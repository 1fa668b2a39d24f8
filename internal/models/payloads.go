package models

// These structs define the JSON payloads exchanged with API clients.

// IngestResponse is returned by POST /v1/documents once the synchronous part
// of ingestion has finished. Extraction continues in the background.
type IngestResponse struct {
	DocumentID string         `json:"documentId"`
	Status     DocumentStatus `json:"status"`
	PageCount  int            `json:"pageCount"`
}

// DocumentListResponse wraps the dashboard listing.
type DocumentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
}

// ExportRequest selects the document to export. The target format comes from
// the URL path.
type ExportRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
}
