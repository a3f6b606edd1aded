// Package gemini implements the external model collaborators: the
// multimodal page parser, the text embedder, and the query expander.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/store"
)

// parseSystemPrompt instructs the model to emit one JSON object per page.
// The schema mirrors store.ParsedPage.
const parseSystemPrompt = `Extract content from the requested PDF page into JSON format.

Output Schema:
{
  "text": "Cleaned running text.",
  "tables": ["List of Markdown formatted tables."],
  "images": [
    {
      "description": "Detailed image description.",
      "caption": "Image caption or null."
    }
  ],
  "chapter_path": "Chapter/Section hierarchy (e.g., '3.1.2 Advanced Topics') or null.",
  "keywords": ["List of key technical terms, concepts, model names, acronyms."],
  "summary": "Concise 1-2 sentence page summary.",
  "document_title": "Title of the document extracted from the cover page or header. Null if not found."
}

Return only valid JSON. Ensure accurate technical keywords, meaningful summary, and correct document title if present.`

// expandSystemPrompt instructs the model to widen a question into search
// terms for the hybrid retriever. Output is a single whitespace-separated
// string of keywords, synonyms, and related technical terms.
const expandSystemPrompt = `You are a search optimization expert for technical equipment manuals.
Expand the user's question so a hybrid search engine (vector index + BM25) finds the best results.
Include the question's core keywords, synonyms, related technical terms, and English acronyms,
and output them as a single whitespace-separated string.
Output only the expanded query string, with no explanation.

Example:
Question: 원점 복귀 방식 종류
Expanded query: 원점 복귀 방식 OPR method 기계 원점 복귀 근점 도그식 카운트식 데이터 세트식 스토퍼식`

// Config holds the model names and credentials for the Gemini backend.
type Config struct {
	APIKey        string
	ParseModel    string
	EmbedModel    string
	ExpandModel   string
	EmbedDims     int
	EmbedTaskType string
	QueryTaskType string
}

// Client talks to the Gemini API for parsing, embedding, and expansion.
type Client struct {
	client *genai.Client
	cfg    Config
}

// NewClient creates a Gemini client. The API key must be set.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, askerr.New(askerr.ErrCodeConfigInvalid, "gemini API key is not set", nil)
	}
	if cfg.EmbedTaskType == "" {
		cfg.EmbedTaskType = "RETRIEVAL_DOCUMENT"
	}
	if cfg.QueryTaskType == "" {
		cfg.QueryTaskType = "RETRIEVAL_QUERY"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client, cfg: cfg}, nil
}

// ParsePage extracts structured content for one page of a PDF document.
// The whole document is sent inline; the page is selected in the prompt.
// API failures and malformed responses surface as transient parse errors so
// the caller's retry policy applies.
func (c *Client) ParsePage(ctx context.Context, docBytes []byte, page int) (*store.ParsedPage, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{
			{Text: fmt.Sprintf("Extract page %d of the attached PDF document.", page)},
			{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: docBytes}},
		},
	}}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: parseSystemPrompt}}},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.ParseModel, contents, config)
	if err != nil {
		return nil, askerr.ParseTransientError(fmt.Sprintf("page %d parse request failed", page), err)
	}

	parsed, err := decodeParsedPage(resp.Text())
	if err != nil {
		return nil, askerr.ParseTransientError(fmt.Sprintf("page %d response invalid", page), err)
	}
	return parsed, nil
}

// decodeParsedPage validates the model output against the page schema.
func decodeParsedPage(raw string) (*store.ParsedPage, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var page store.ParsedPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return nil, fmt.Errorf("response is not valid page JSON: %w", err)
	}
	return &page, nil
}

// Embed computes a document embedding for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, c.cfg.EmbedTaskType)
}

// EmbedQuery computes a query-side embedding for retrieval.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, c.cfg.QueryTaskType)
}

func (c *Client) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if c.cfg.EmbedDims > 0 {
		dims := int32(c.cfg.EmbedDims)
		config.OutputDimensionality = &dims
	}

	resp, err := c.client.Models.EmbedContent(
		ctx,
		c.cfg.EmbedModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, askerr.New(askerr.ErrCodeEmbeddingFailed, "embedding request failed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, askerr.New(askerr.ErrCodeEmbeddingFailed, "no embedding values returned", nil)
	}
	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the configured embedding width.
func (c *Client) Dimensions() int {
	return c.cfg.EmbedDims
}

// ExpandQuery rewrites a question into a widened keyword query.
func (c *Client) ExpandQuery(ctx context.Context, query string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0),
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: expandSystemPrompt}}},
	}

	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.cfg.ExpandModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: query}}}},
		config,
	)
	if err != nil {
		return "", askerr.New(askerr.ErrCodeExpansionFailed, "query expansion failed", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
