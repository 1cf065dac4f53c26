package rowfill

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"

	// Anthropic requires max_tokens; used when the config leaves it unset.
	anthropicDefaultMaxTokens = 2000
)

// anthropicProvider speaks the Anthropic messages dialect over a plain
// HTTP client.
type anthropicProvider struct {
	client *resty.Client
	cfg    *Config
	log    *slog.Logger
}

func newAnthropicProvider(cfg *Config, log *slog.Logger) *anthropicProvider {
	base := cfg.APIURL
	if base == "" {
		base = anthropicBaseURL
	}
	client := resty.New().
		SetBaseURL(base).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicAPIVersion).
		SetHeader("Content-Type", "application/json")
	return &anthropicProvider{client: client, cfg: cfg, log: log}
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	var content []anthropicContent
	if req.Image != nil {
		content = append(content, anthropicContent{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: req.Image.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(req.Image.Data),
			},
		})
	}
	if req.Prompt != "" || len(content) == 0 {
		content = append(content, anthropicContent{Type: "text", Text: req.Prompt})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	body := anthropicRequest{
		Model:       p.cfg.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: content}},
	}

	p.log.Debug("anthropic request", "model", p.cfg.Model, "prompt_length", len(req.Prompt), "has_image", req.Image != nil)

	var out anthropicResponse
	res, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("messages request: %w", err)
	}
	if res.IsError() {
		return "", &BadStatusError{StatusCode: res.StatusCode(), Body: string(res.Body())}
	}

	for _, c := range out.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content block", ErrMalformedResponse)
}
