package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// basic safety limit to avoid pathological replies
const maxStructuredLen = 256 * 1024 // 256KB

// DecodeJSON extracts the first JSON object from an LLM reply and unmarshals
// it into out. Models wrap JSON in prose or code fences often enough that a
// plain Unmarshal of the raw content is not workable.
func DecodeJSON(content string, out any) error {
	raw, err := ExtractJSONObject(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshal structured output: %w", err)
	}
	return nil
}

// ExtractJSONObject returns the first balanced {...} object in content,
// ignoring code fences and surrounding prose. Braces inside JSON strings are
// honored.
func ExtractJSONObject(content string) (string, error) {
	if len(content) > maxStructuredLen {
		content = content[:maxStructuredLen]
	}
	content = stripCodeFences(content)

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in reply")
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop an optional language tag on the fence line
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
