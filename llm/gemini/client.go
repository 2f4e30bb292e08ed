package gemini

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/kalder/genwire/llm"
)

// Client implements the llm.Client interface for Google's Gemini API.
type Client struct {
	client *genai.Client
	logger zerolog.Logger
}

// NewClient creates a Client backed by the Gemini API with the given key.
func NewClient(ctx context.Context, apiKey string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		client: client,
		logger: logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// GenerateContent implements llm.Client.GenerateContent.
func (c *Client) GenerateContent(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	contents, config := toGenAIRequest(req)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, err
	}

	converted := FromResponse(resp)
	if converted.Usage != nil {
		c.logger.Debug().
			Int64("prompt_tokens", converted.Usage.PromptTokens).
			Int64("completion_tokens", converted.Usage.CompletionTokens).
			Msg("Token usage")
	}
	return converted, nil
}

// StreamGenerateContent implements llm.Client.StreamGenerateContent. The
// first increment is pulled eagerly so connection failures surface here,
// where the caller's retry loop can still see them.
func (c *Client) StreamGenerateContent(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	contents, config := toGenAIRequest(req)
	seq := c.client.Models.GenerateContentStream(ctx, req.Model, contents, config)

	next, stop := iter.Pull2(seq)
	resp, err, ok := next()
	if err != nil {
		stop()
		return nil, err
	}

	s := &geminiStream{next: next, stop: stop, logger: c.logger}
	if ok {
		s.first = FromStreamResponse(resp)
	}
	return s, nil
}

// Ensure Client implements llm.Client.
var _ llm.Client = (*Client)(nil)
