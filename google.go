package rowfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// googleProvider speaks the Gemini dialect through the GenAI SDK. JSON
// output is requested at the API level, so responses usually skip the
// fenced-code-block detour entirely.
type googleProvider struct {
	client *genai.Client
	cfg    *Config
	log    *slog.Logger
}

func newGoogleProvider(ctx context.Context, cfg *Config, log *slog.Logger) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &googleProvider{client: client, cfg: cfg, log: log}, nil
}

func (p *googleProvider) Complete(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{}
	if req.Prompt != "" {
		parts = append(parts, genai.NewPartFromText(req.Prompt))
	}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(""))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temp,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	p.log.Debug("gemini request", "model", p.cfg.Model, "prompt_length", len(req.Prompt), "has_image", req.Image != nil)

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &BadStatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no parts in candidate", ErrMalformedResponse)
	}
	text := candidate.Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("%w: empty text part", ErrMalformedResponse)
	}
	return text, nil
}
