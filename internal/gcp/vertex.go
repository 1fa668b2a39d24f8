package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Extractor Model Prompts ---
const ExtractorSystemPrompt = "You are a document parser. Your task is to read a document and produce structured content: a faithful markdown rendition plus a list of content chunks. Accuracy, detail, and information preservation are of utmost importance. You must output your response as a single valid JSON object."
const ExtractorUserPrompt = `You will be provided with a document (PDF or image).

Parse the document and return a JSON object with exactly these keys:

- "markdown": A string containing the full document content translated to markdown.
  Text becomes markdown text, lists become markdown lists, tables become markdown
  tables (normalize merged cells by copying parent-cell content into child cells),
  and each image is replaced by a detailed textual description.
- "chunks": An array of objects, one per logical content unit (paragraph, table,
  heading, figure description), in reading order. Each object has:
    - "id": a short unique string
    - "text": the chunk's content
    - "page": the 1-based page number the chunk came from
    - "boundingBox": optional object {"x", "y", "width", "height"} locating the
      chunk on the page, when you can determine it
    - "metadata": optional object of string key/value pairs (e.g. {"kind": "table"})
- "marginalia": An array of strings holding header/footer/margin text that was
  excluded from the main content (page numbers, running titles, stamps).

Ignore purely decorative artifacts. Your primary goal is to maintain the
integrity and completeness of the document's content. The final output MUST be
a single valid JSON object with no text before or after it.`

// VertexClient holds the pre-configured generative model used by the
// extraction worker.
type VertexClient struct {
	ExtractorModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client with the extractor model configured
// for deterministic JSON output.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	extractorModel := baseClient.GenerativeModel(modelName)
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output. This is a critical setting for this model.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	extractorModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ExtractorModel: extractorModel,
		baseClient:     baseClient,
	}, nil
}

// GenerateContent runs the extractor model over the given parts.
func (c *VertexClient) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return c.ExtractorModel.GenerateContent(ctx, parts...)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
