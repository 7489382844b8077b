package localllm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"recipescan/internal/extract"
	"recipescan/internal/platform/logging"
)

const (
	// DefaultBaseURL points at a local OpenAI-compatible server.
	DefaultBaseURL = "http://localhost:1234"
	// DefaultModel is the model requested when none is configured.
	DefaultModel = "gemma-3-12b-it"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	http  *resty.Client
	model string
}

// NewClient creates a new client for the local LLM.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		model: model,
	}
}

// Request represents the request body for the local LLM.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a message in the request.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content represents the content of a message.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents the image URL in the content.
type ImageURL struct {
	URL string `json:"url"`
}

// Response represents the response from the local LLM.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice represents a choice in the response.
type Choice struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage represents a message in the response.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Generate sends the prompt and optional image and returns the reply text.
// PDFs are not supported by chat-completions vision input.
func (c *Client) Generate(ctx context.Context, req extract.GenerateRequest) (string, error) {
	content := []Content{{Type: "text", Text: req.Prompt}}
	if len(req.Document) > 0 {
		if !strings.HasPrefix(req.MIMEType, "image/") {
			return "", extract.NewError(extract.ErrInvalidInput, fmt.Sprintf("local model cannot read %s documents", req.MIMEType), nil)
		}
		content = append(content, Content{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Document),
			},
		})
	}

	body := Request{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: content}},
		Temperature: float64(req.Temperature),
		MaxTokens:   int(req.MaxOutputTokens),
	}

	var out Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/chat/completions")
	if err != nil {
		return "", extract.NewError(extract.ErrUpstreamUnavailable, "failed to send request", err)
	}
	if err := statusError(resp); err != nil {
		return "", err
	}

	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", extract.NewError(extract.ErrUpstreamUnavailable, "no content found in response", nil)
	}
	return out.Choices[0].Message.Content, nil
}

// ListModels returns the ids of the models the server has loaded.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out modelList
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/models")
	if err != nil {
		return nil, extract.NewError(extract.ErrUpstreamUnavailable, "failed to list models", err)
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

func statusError(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return extract.NewError(extract.ErrRateLimited, logging.Snippet(resp.String(), 200), nil)
	case resp.IsError():
		return extract.NewError(extract.ErrUpstreamUnavailable,
			fmt.Sprintf("received non-OK status code %d: %s", resp.StatusCode(), logging.Snippet(resp.String(), 200)), nil)
	}
	return nil
}
