package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrExtractionFailed is returned when the raw output holds no parseable object.
var ErrExtractionFailed = errors.New("no structured object in assistant output")

// Extract locates the reply object in raw generator output. Code fences and
// surrounding prose are tolerated; as a last resort the text between the first
// '{' and the last '}' is parsed.
func Extract(raw string) (map[string]any, error) {
	cleaned := stripFence(raw)
	if obj, ok := decodeObject(cleaned); ok {
		return obj, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		if obj, ok := decodeObject(cleaned[start : end+1]); ok {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%w (%d bytes)", ErrExtractionFailed, len(raw))
}

func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func decodeObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}
