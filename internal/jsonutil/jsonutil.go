// Package jsonutil decodes JSON embedded in free-form model output.
// Completion models frequently wrap JSON in Markdown code fences or
// surround it with prose; the helpers here recover the payload without
// the callers having to care.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a single Markdown code-fence wrapper (``` or
// ```json) around s, if present. Inner content is returned trimmed.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// drop a language tag such as "json" on the fence line
		first := strings.TrimSpace(trimmed[:idx])
		if len(first) <= 16 && !strings.ContainsAny(first, "{}[]") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// FirstObject returns the first balanced top-level JSON object in s, or
// "" when none exists. Braces inside string literals are honoured.
func FirstObject(s string) string {
	return firstBalanced(s, '{', '}')
}

// FirstArray returns the first balanced top-level JSON array in s, or
// "" when none exists.
func FirstArray(s string) string {
	return firstBalanced(s, '[', ']')
}

func firstBalanced(s string, open, close byte) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// DecodeObject strips fences, locates the first JSON object in raw and
// unmarshals it into out.
func DecodeObject(raw string, out interface{}) error {
	payload := FirstObject(StripFences(raw))
	if payload == "" {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode JSON object: %w", err)
	}
	return nil
}

// DecodeArray strips fences, locates the first JSON array in raw and
// unmarshals it into out. A lone object is accepted and wrapped as a
// single-element array, since models sometimes return one where a list
// was asked for.
func DecodeArray(raw string, out interface{}) error {
	cleaned := StripFences(raw)
	payload := FirstArray(cleaned)
	if payload == "" {
		if obj := FirstObject(cleaned); obj != "" {
			payload = "[" + obj + "]"
		}
	}
	if payload == "" {
		return fmt.Errorf("no JSON array found in response")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode JSON array: %w", err)
	}
	return nil
}
