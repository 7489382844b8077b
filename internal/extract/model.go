package extract

import "context"

// GenerateRequest is a single call to the extraction model.
type GenerateRequest struct {
	Prompt          string
	Document        []byte
	MIMEType        string
	Temperature     float32
	MaxOutputTokens int32
	JSONResponse    bool
}

// Model is a text-completion service that returns raw text purporting to be
// JSON. Implementations report HTTP 429 as ErrRateLimited and other
// failures as ErrUpstreamUnavailable.
type Model interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
