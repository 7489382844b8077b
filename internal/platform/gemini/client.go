package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"recipescan/internal/extract"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Client is a client for the Gemini API.
type Client struct {
	client    *genai.Client
	modelName string
	log       *zap.Logger
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey, modelName string, log *zap.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{client: client, modelName: modelName, log: log}, nil
}

// Generate sends the prompt and optional document to Gemini and returns the
// concatenated text of the first candidate.
func (c *Client) Generate(ctx context.Context, req extract.GenerateRequest) (string, error) {
	model := c.client.GenerativeModel(c.modelName)
	model.SetTemperature(req.Temperature)
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}
	if req.JSONResponse {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if len(req.Document) > 0 {
		parts = append(parts, genai.Blob{MIMEType: req.MIMEType, Data: req.Document})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", extract.NewError(extract.ErrUpstreamUnavailable, "empty response from Gemini", nil)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonMaxTokens {
		c.log.Warn("gemini response hit the output token limit", zap.Int32("max_output_tokens", req.MaxOutputTokens))
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return "", extract.NewError(extract.ErrUpstreamUnavailable, "unexpected response format from Gemini", nil)
	}
	return text.String(), nil
}

// ListModels returns the models that support content generation.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	it := c.client.ListModels(ctx)
	var names []string
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyError(err)
		}
		if slices.Contains(m.SupportedGenerationMethods, "generateContent") {
			names = append(names, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	return names, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// classifyError maps Gemini errors onto the extraction error kinds.
func classifyError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return extract.NewError(extract.ErrRateLimited, "API quota exceeded", err)
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) && aerr.HTTPCode() == http.StatusTooManyRequests {
		return extract.NewError(extract.ErrRateLimited, "API quota exceeded", err)
	}
	return extract.NewError(extract.ErrUpstreamUnavailable, "gemini request failed", err)
}
