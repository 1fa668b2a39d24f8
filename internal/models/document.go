package models

import "time"

// DocumentStatus tracks a document through its processing lifecycle.
type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// CanTransition reports whether a status change is a legal forward move.
// Transitions are monotonic: uploading -> processing -> {completed, failed},
// with failed reachable from any non-terminal state.
func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case StatusProcessing:
		return s == StatusUploading
	case StatusCompleted:
		return s == StatusProcessing
	case StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BoundingBox locates a content chunk on its source page, in page pixel
// coordinates at the rasterization scale.
type BoundingBox struct {
	X      float64 `firestore:"x" json:"x"`
	Y      float64 `firestore:"y" json:"y"`
	Width  float64 `firestore:"width" json:"width"`
	Height float64 `firestore:"height" json:"height"`
}

// ContentChunk is one extracted unit of document content.
type ContentChunk struct {
	ID          string            `firestore:"id" json:"id"`
	Text        string            `firestore:"text" json:"text"`
	Page        int               `firestore:"page" json:"page"`
	BoundingBox *BoundingBox      `firestore:"boundingBox,omitempty" json:"boundingBox,omitempty"`
	Metadata    map[string]string `firestore:"metadata,omitempty" json:"metadata,omitempty"`
}

// Document is the master record for one uploaded file. The ingestion
// workflow owns the uploading and processing states; the extraction worker
// is the sole writer of completed and failed.
type Document struct {
	ID            string         `firestore:"-" json:"id"`
	OwnerID       string         `firestore:"ownerId" json:"ownerId"`
	Title         string         `firestore:"title" json:"title"`
	Status        DocumentStatus `firestore:"status" json:"status"`
	ErrorMessage  string         `firestore:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	RawFileRef    string         `firestore:"rawFileRef" json:"-"`
	PageImageRefs []string       `firestore:"pageImageRefs,omitempty" json:"-"`
	PageCount     int            `firestore:"pageCount" json:"pageCount"`
	FileSize      int64          `firestore:"fileSize" json:"fileSize"`
	MimeType      string         `firestore:"mimeType" json:"mimeType"`
	Markdown      string         `firestore:"markdown,omitempty" json:"markdown,omitempty"`
	Chunks        []ContentChunk `firestore:"chunks,omitempty" json:"chunks,omitempty"`
	Marginalia    []string       `firestore:"marginalia,omitempty" json:"marginalia,omitempty"`
	RawResponse   string         `firestore:"rawResponse,omitempty" json:"-"`
	CreatedAt     time.Time      `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `firestore:"updatedAt" json:"updatedAt"`
}

// PageImage is one rasterized page. Index is zero-based and corresponds to
// source-page order: PageImage 0 is the first page of the document.
type PageImage struct {
	Index       int
	Data        []byte
	ContentType string
	Scale       float64
}

// ExtractionResult is what the extraction worker writes back onto a
// completed document.
type ExtractionResult struct {
	Markdown    string         `json:"markdown"`
	Chunks      []ContentChunk `json:"chunks"`
	Marginalia  []string       `json:"marginalia,omitempty"`
	RawResponse string         `json:"-"`
}
