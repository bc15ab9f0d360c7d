package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFences(t *testing.T) {
	t.Run("removes json fence markers", func(t *testing.T) {
		in := "```json\n{\"a\": 1}\n```"
		assert.Equal(t, `{"a": 1}`, StripCodeFences(in))
	})

	t.Run("removes bare fence markers", func(t *testing.T) {
		in := "```\n{\"a\": 1}\n```"
		assert.Equal(t, `{"a": 1}`, StripCodeFences(in))
	})

	t.Run("trims whitespace on unfenced input", func(t *testing.T) {
		assert.Equal(t, `{"a": 1}`, StripCodeFences("  {\"a\": 1}\n"))
	})
}

func TestExtractObject(t *testing.T) {
	t.Run("extracts object surrounded by prose", func(t *testing.T) {
		in := `Some preamble {"overall_summary":"ok","validation_passed":true} trailing`
		assert.Equal(t, `{"overall_summary":"ok","validation_passed":true}`, ExtractObject(in))
	})

	t.Run("handles nested objects", func(t *testing.T) {
		in := `note: {"outer": {"inner": {"deep": 1}}, "b": 2} done`
		assert.Equal(t, `{"outer": {"inner": {"deep": 1}}, "b": 2}`, ExtractObject(in))
	})

	t.Run("ignores braces inside strings", func(t *testing.T) {
		in := `{"summary": "mismatch in {name} field", "ok": false}`
		assert.Equal(t, in, ExtractObject(in))
	})

	t.Run("handles escaped quotes inside strings", func(t *testing.T) {
		in := `x {"summary": "said \"hi\" {", "ok": true} y`
		assert.Equal(t, `{"summary": "said \"hi\" {", "ok": true}`, ExtractObject(in))
	})

	t.Run("returns empty string when no object present", func(t *testing.T) {
		assert.Equal(t, "", ExtractObject("no json here"))
	})

	t.Run("returns empty string on unbalanced braces", func(t *testing.T) {
		assert.Equal(t, "", ExtractObject(`{"a": 1`))
	})

	t.Run("returns empty string on empty input", func(t *testing.T) {
		assert.Equal(t, "", ExtractObject(""))
	})
}
