package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/pagelift/pagelift/internal/gcp"
	"github.com/pagelift/pagelift/internal/models"
)

// AsyncDispatcher submits extractions to a background execution context
// owned by the dispatcher, never the request. Failures are logged through
// the dispatcher's error callback and never reach the original caller.
type AsyncDispatcher struct {
	extractor Extractor
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher whose extractions are bounded by
// the given timeout.
func NewAsyncDispatcher(extractor Extractor, timeout time.Duration) *AsyncDispatcher {
	return &AsyncDispatcher{extractor: extractor, timeout: timeout}
}

// Dispatch starts one extraction and returns immediately.
func (d *AsyncDispatcher) Dispatch(docID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.extractor.Extract(ctx, docID); err != nil {
			slog.Error("Extraction hand-off failed, document remains processing.", "documentId", docID, "error", err)
		}
	}()
}

// Wait blocks until all dispatched extractions have finished. Used during
// shutdown and in tests.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// VertexExtractor turns a stored document into structured content with
// Gemini. It is the sole writer of the completed and failed states: transport
// failures before the worker takes ownership of a document bubble up and
// leave it in processing for external retry, while semantic failures after
// that point are terminal.
type VertexExtractor struct {
	model ContentGenerator
	blobs BlobStore
	docs  DocumentStore
}

// NewVertexExtractor wires the extraction worker.
func NewVertexExtractor(model ContentGenerator, blobs BlobStore, docs DocumentStore) *VertexExtractor {
	return &VertexExtractor{model: model, blobs: blobs, docs: docs}
}

// Extract reads the raw blob, prompts the model for markdown plus chunk
// JSON, and writes the terminal state.
func (e *VertexExtractor) Extract(ctx context.Context, docID string) error {
	logCtx := slog.With("documentId", docID)
	logCtx.Info("Starting extraction.")

	doc, err := e.docs.Get(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to load document record: %w", err)
	}
	if !doc.Status.CanTransition(models.StatusCompleted) {
		logCtx.Info("Document is not awaiting extraction, skipping.", "status", doc.Status)
		return nil
	}

	prompt := genai.Text(gcp.ExtractorUserPrompt)
	filePart := genai.FileData{
		MIMEType: doc.MimeType,
		FileURI:  e.blobs.URI(doc.RawFileRef),
	}

	resp, err := e.model.GenerateContent(ctx, filePart, prompt)
	if err != nil {
		// The model was never reached; leave the document in processing
		// rather than burning its single terminal transition.
		logCtx.Error("Call to Vertex AI failed.", "error", err)
		return fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	raw := extractResponseText(resp)
	if raw == "" {
		return e.fail(ctx, logCtx, docID, "extraction produced no content")
	}
	if phrase, refused := detectRefusal(raw); refused {
		logCtx.Error("LLM refusal detected.", "phrase", phrase)
		return e.fail(ctx, logCtx, docID, "extraction was refused by the model")
	}

	var result models.ExtractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		logCtx.Error("Failed to parse extraction output.", "error", err)
		return e.fail(ctx, logCtx, docID, "extraction returned malformed output")
	}
	result.RawResponse = raw

	if err := e.docs.SetCompleted(ctx, docID, &result); err != nil {
		logCtx.Error("Failed to store extraction result.", "error", err)
		return fmt.Errorf("failed to store extraction result: %w", err)
	}
	logCtx.Info("Extraction complete.", "chunkCount", len(result.Chunks))
	return nil
}

// fail writes the terminal failed state. A successful write resolves the
// extraction, so the dispatcher sees no error; only a failure to record the
// failure itself bubbles up, leaving the document in processing.
func (e *VertexExtractor) fail(ctx context.Context, logCtx *slog.Logger, docID, message string) error {
	if err := e.docs.SetFailed(ctx, docID, message); err != nil {
		logCtx.Error("CRITICAL: Failed to mark document failed after an extraction error.", "updateError", err)
		return err
	}
	logCtx.Info("Document marked failed.", "reason", message)
	return nil
}

// extractResponseText concatenates the model's text parts and strips any
// code fences around the JSON body.
func extractResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
		}
	}

	contentStr := strings.TrimSpace(content.String())
	contentStr = strings.TrimPrefix(contentStr, "```json")
	contentStr = strings.TrimPrefix(contentStr, "```")
	contentStr = strings.TrimSuffix(contentStr, "```")
	return strings.TrimSpace(contentStr)
}

// detectRefusal spots responses where the model declined instead of parsing.
func detectRefusal(content string) (string, bool) {
	refusalPhrases := []string{
		"i am unable to",
		"i cannot fulfill",
		"i cannot answer",
		"i cannot provide",
		"as a large language model",
	}
	lower := strings.ToLower(content)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}
