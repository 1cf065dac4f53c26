package rowfill

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
)

// Request is one completion call: the run-wide system prompt, the row's
// user prompt, and the image that goes with it, if any.
type Request struct {
	System      string
	Prompt      string
	Image       *ImagePayload
	Temperature float64
	MaxTokens   int
	ImageDetail string // OpenAI-style only: "auto", "low", "high"
}

// Provider shapes requests for one API dialect and extracts the raw text
// completion from its responses. Implementations return *BadStatusError
// for well-formed non-2xx responses, ErrMalformedResponse for 2xx bodies
// without a completion, and plain wrapped errors for transport failures;
// the retry policy keys off that distinction. Selected once per run.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NewProvider selects the provider for the configured API dialect.
func NewProvider(ctx context.Context, cfg *Config, log *slog.Logger) (Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	switch strings.ToLower(cfg.APIType) {
	case "", "openai":
		return newOpenAIProvider(cfg, log), nil
	case "anthropic":
		return newAnthropicProvider(cfg, log), nil
	case "google":
		return newGoogleProvider(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown api_type %q (want openai, anthropic or google)", cfg.APIType)
	}
}

// imageDataURL encodes an image payload as a base64 data URL, the inline
// form OpenAI-compatible endpoints accept.
func imageDataURL(img *ImagePayload) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
