package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deskpilot/internal/logging"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient implements Backend over the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini backend.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

func (c *GeminiClient) Name() string         { return "gemini" }
func (c *GeminiClient) SupportsVision() bool { return true }

// Converse sends the prompt with images as inline parts.
func (c *GeminiClient) Converse(ctx context.Context, req ConverseRequest) (string, error) {
	ctx, cancel := callContext(ctx, req, c.timeout)
	defer cancel()
	started := time.Now()

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	logging.Get(logging.CategoryBackend).Debugw("gemini call",
		"model", c.model, "images", len(req.Images), "prompt_bytes", len(req.Prompt))

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		if ctxErr := classifyCtxErr(ctx, c.Name(), started); ctxErr != nil {
			return "", ctxErr
		}
		if strings.Contains(strings.ToLower(err.Error()), "resource_exhausted") ||
			strings.Contains(err.Error(), "429") {
			return "", &RateLimitError{Provider: c.Name()}
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no completion")
	}
	return text, nil
}
