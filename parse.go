package rowfill

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrResponseParse marks a completion response from which no JSON object
// could be recovered. Not retried within a run; the row stays empty and is
// picked up again on the next invocation.
var ErrResponseParse = errors.New("no JSON object in response")

// ExtractJSON recovers a JSON object from a free-form model response.
// Strategies, in order: the whole trimmed string, the first ```json fenced
// block, and finally the substring from the first '{' to the last '}'.
func ExtractJSON(content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if obj, err := decodeObject(trimmed); err == nil {
			return obj, nil
		}
	}

	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			if obj, err := decodeObject(strings.TrimSpace(rest[:end])); err == nil {
				return obj, nil
			}
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if obj, err := decodeObject(content[start : end+1]); err == nil {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrResponseParse, preview(content, 120))
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
