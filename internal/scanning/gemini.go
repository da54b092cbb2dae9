package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
)

// Gemini implements the invoice.Extractor interface using Google Gemini.
type Gemini struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGemini creates a Gemini extractor configured with the invoice response
// schema so the model output is constrained to valid JSON.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = invoiceSchema()

	return &Gemini{
		client:    client,
		model:     model,
		modelName: modelName,
	}, nil
}

// Extract parses one invoice file into a record. Unsupported mime types are
// rejected before the service is called; a response that is not schema-valid
// JSON is an error, never a partial success.
func (g *Gemini) Extract(ctx context.Context, filename string, data []byte, contentType string) (*invoice.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	docData, mimeType, err := prepareDocument(data, contentType)
	if err != nil {
		return nil, err
	}

	parts := []genai.Part{
		genai.Text(invoiceSystemPrompt),
		genai.Blob{MIMEType: mimeType, Data: docData},
		genai.Text(extractionRequest),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	rec, err := parseInvoiceJSON(filename, responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing invoice data: %w", err)
	}
	return rec, nil
}

// ModelID returns the configured model name for diagnostics.
func (g *Gemini) ModelID() string {
	return g.modelName
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
