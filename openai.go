package rowfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIProvider speaks the OpenAI chat-completions dialect. With a base
// URL override it also covers the many OpenAI-compatible endpoints
// (Moonshot, DeepSeek, local gateways, ...), which is the common case for
// this tool.
type openAIProvider struct {
	client openai.Client
	cfg    *Config
	log    *slog.Logger
}

func newOpenAIProvider(cfg *Config, log *slog.Logger) *openAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIURL))
	}
	return &openAIProvider{client: openai.NewClient(opts...), cfg: cfg, log: log}
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	if req.Image == nil {
		messages = append(messages, openai.UserMessage(req.Prompt))
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{}
		if req.Prompt != "" {
			parts = append(parts, openai.TextContentPart(req.Prompt))
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    imageDataURL(req.Image),
			Detail: req.ImageDetail,
		}))
		messages = append(messages, openai.UserMessage(parts))
	}

	params := openai.ChatCompletionNewParams{
		Model:       p.cfg.Model,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	p.log.Debug("openai request", "model", p.cfg.Model, "prompt_length", len(req.Prompt), "has_image", req.Image != nil)

	res, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return "", &BadStatusError{StatusCode: apierr.StatusCode, Body: apierr.Error()}
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return res.Choices[0].Message.Content, nil
}
