// Package parser recovers a JSON object from a free-text model reply.
package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrParse is returned when no JSON object can be recovered from a reply.
var ErrParse = errors.New("Could not parse JSON from response")

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// Parse returns the JSON object contained in raw. Strategies, in order:
//  1. the whole reply as JSON
//  2. the reply with markdown code fences stripped
//  3. the first balanced {...} span that decodes
//  4. the greedy span from the first '{' to the last '}'
//  5. steps 3 and 4 again after removing block comments and trailing commas
//  6. steps 3 to 5 on the whole reply when a fence was stripped
//
// The decoded object is returned verbatim, with numbers kept as json.Number.
func Parse(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrParse
	}

	if obj, ok := decodeObject(text); ok {
		return obj, nil
	}

	unfenced := stripCodeFence(text)
	if unfenced != text {
		if obj, ok := decodeObject(unfenced); ok {
			return obj, nil
		}
	}

	if obj, ok := scanWithCleanup(unfenced); ok {
		return obj, nil
	}

	// backticks inside a string value can look like a fence; fall back to
	// the whole reply
	if unfenced != text {
		if obj, ok := scanWithCleanup(text); ok {
			return obj, nil
		}
	}

	return nil, ErrParse
}

// scanWithCleanup scans text, then retries once with block comments and
// trailing commas removed.
func scanWithCleanup(text string) (map[string]any, bool) {
	if obj, ok := scan(text); ok {
		return obj, true
	}

	cleaned := reBlockComment.ReplaceAllString(text, "")
	cleaned = reTrailing.ReplaceAllString(cleaned, "$1")
	if cleaned != text {
		return scan(cleaned)
	}
	return nil, false
}

func scan(text string) (map[string]any, bool) {
	for _, span := range balancedSpans(text) {
		if obj, ok := decodeObject(span); ok {
			return obj, true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return decodeObject(text[start : end+1])
	}
	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	// reject trailing data after the object
	if _, err := dec.Token(); err == nil {
		return nil, false
	}
	return obj, true
}

// balancedSpans returns every top-level {...} span in text, in order.
// Braces inside JSON strings are ignored.
func balancedSpans(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
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
			// only track strings inside an object; stray quotes in prose
			// must not hide the next brace
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// stripCodeFence removes a surrounding ```json ... ``` fence
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "```"); i >= 0 {
			if j := strings.LastIndex(text, "```"); j > i {
				inner := text[i+3 : j]
				if nl := strings.Index(inner, "\n"); nl >= 0 {
					inner = inner[nl+1:]
				}
				return strings.TrimSpace(inner)
			}
		}
		return text
	}
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	}
	if j := strings.LastIndex(text, "```"); j >= 0 {
		text = text[:j]
	}
	return strings.TrimSpace(text)
}
