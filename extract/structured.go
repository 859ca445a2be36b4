package extract

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when no complete JSON object can be recovered.
var ErrNoJSON = errors.New("no JSON object found")

// FirstJSONObject recovers the first complete top-level JSON object from
// text that may wrap it in markdown fences or surrounding prose. The scan is
// string- and escape-aware, so braces inside string literals do not count.
func FirstJSONObject(s string) (string, error) {
	s = StripFences(s)

	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
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
				return s[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSON
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, leaving other text untouched.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}

	rest := trimmed[3:]
	// Drop the language tag line if present.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isLangTag(firstLine) {
			rest = rest[nl+1:]
		}
	}

	if end := strings.LastIndex(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// isLangTag reports whether s looks like a fence language tag (letters only).
func isLangTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}
