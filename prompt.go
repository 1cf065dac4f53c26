package rowfill

import (
	"fmt"
	"os"
	"strings"

	"github.com/tyler-sommer/stick"
)

// systemPromptMarker is the wrapper some prompt files use so the same file
// can be sourced from a Python script: system_prompt = """...""".
const systemPromptMarker = `system_prompt = """`

// LoadSystemPrompt reads the run-wide system prompt from a file. Files
// wrapping the prompt in a system_prompt = """...""" assignment are
// unwrapped transparently.
func LoadSystemPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return "", fmt.Errorf("read prompt file: %w", err)
	}

	content := string(data)
	if idx := strings.Index(content, systemPromptMarker); idx >= 0 {
		start := idx + len(systemPromptMarker)
		if end := strings.LastIndex(content, `"""`); end > start {
			content = content[start:end]
		}
	}
	return strings.TrimSpace(content), nil
}

// PromptRenderer optionally rewrites each row's user prompt through a
// template before it is sent. The template sees the raw prompt as
// {{ prompt }} and every cell of the row as {{ row.<column> }}.
type PromptRenderer struct {
	env *stick.Env
	tpl string
}

// NewPromptRenderer builds a renderer for the given template. An empty
// template yields a nil renderer, which passes prompts through unchanged.
func NewPromptRenderer(tpl string) *PromptRenderer {
	if strings.TrimSpace(tpl) == "" {
		return nil
	}
	return &PromptRenderer{env: stick.New(nil), tpl: tpl}
}

// Render produces the final user prompt for one row.
func (p *PromptRenderer) Render(prompt string, row map[string]stick.Value) (string, error) {
	if p == nil {
		return prompt, nil
	}
	ctx := map[string]stick.Value{
		"prompt": prompt,
		"row":    row,
	}
	var out strings.Builder
	if err := p.env.Execute(p.tpl, &out, ctx); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return out.String(), nil
}

// rowContext exposes a table row's cells by column name for templating.
func rowContext(t *Table, row int) map[string]stick.Value {
	ctx := make(map[string]stick.Value, len(t.Header()))
	for col, name := range t.Header() {
		if name == "" {
			continue
		}
		ctx[name] = t.Cell(row, col)
	}
	return ctx
}
