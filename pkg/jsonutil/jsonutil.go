// Package jsonutil extracts structured data from noisy model output.
//
// Vision-language models wrap JSON in markdown code fences or pad it with
// conversational prose. The helpers here recover the payload without
// round-tripping through a full parser.
package jsonutil

import "strings"

// StripCodeFences removes markdown code-fence markers the model may have
// wrapped around a JSON response and trims surrounding whitespace.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ExtractObject returns the first balanced top-level JSON object in s,
// tolerating leading and trailing prose. Returns "" when no balanced object
// is present. Braces inside string literals and escape sequences are
// handled, so nested objects and embedded "}" characters do not confuse
// the scan.
func ExtractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := findObjectEnd(s, start)
	if end <= start {
		return ""
	}
	return s[start:end]
}

func findObjectEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
