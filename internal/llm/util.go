package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSONBlock removes markdown code fences models wrap around JSON.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop a language tag such as "json" on the opening fence line.
	if idx := strings.Index(text, "\n"); idx >= 0 {
		tag := text[:idx]
		if len(tag) < 20 && !strings.ContainsAny(tag, " {[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// DecodeJSON parses a model response into T after removing code fences.
func DecodeJSON[T any](text string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(CleanJSONBlock(text)), &out); err != nil {
		return out, fmt.Errorf("failed to parse model output: %w", err)
	}
	return out, nil
}
