package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/"

type GeminiClient struct {
	Model  string
	client *genai.Client
}

func NewGeminiClient(apiKey, model, endpoint string, timeout time.Duration) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini backend requires an API key")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("gemini backend requires a model")
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultGeminiEndpoint
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     strings.TrimSpace(apiKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create gemini client: %w", err)
	}
	return &GeminiClient{Model: strings.TrimSpace(model), client: client}, nil
}

func (c *GeminiClient) Name() string {
	return "gemini"
}

func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fatal(c.Name(), fmt.Errorf("prompt cannot be empty"))
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.Model, genai.Text(prompt), nil)
	if err != nil {
		return "", c.classify(err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fatal(c.Name(), fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	// No candidates is not an error here; the normalizer treats it as
	// nothing to do.
	return strings.TrimSpace(resp.Text()), nil
}

// classify splits SDK errors into retryable and final ones. Rate limits,
// server errors and transport failures are worth another attempt.
func (c *GeminiClient) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fatal(c.Name(), err)
	}
	if code, ok := apiErrorCode(err); ok {
		if retryableStatus(code) {
			return transient(c.Name(), err)
		}
		return fatal(c.Name(), err)
	}
	return transient(c.Name(), err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
