package client

import (
	"context"

	"google.golang.org/genai"
)

// GeminiClient wraps the Google Gemini client.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini client. With a project ID it talks to
// Vertex AI using default credentials; otherwise it uses the Gemini API key.
func NewGeminiClient(ctx context.Context, projectID, location, apiKey string) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if projectID != "" {
		cfg = &genai.ClientConfig{
			Project:  projectID,
			Location: location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		client: client,
		model:  "gemini-2.0-flash",
	}, nil
}

// WithModel sets the model to use.
func (c *GeminiClient) WithModel(model string) *GeminiClient {
	if model != "" {
		c.model = model
	}
	return c
}

// Chat sends a single prompt and returns the response text.
func (c *GeminiClient) Chat(ctx context.Context, message string, opts ChatOptions) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if opts.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(message), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
