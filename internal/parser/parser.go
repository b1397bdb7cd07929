// Package parser provides the source-file parser registry: a named set of
// functions converting raw file content into one or more records. Built-in
// types are markdown (YAML frontmatter), yaml, and json; the registry is
// extensible via RegisterParser.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/staticql/staticql/internal/value"
)

// Func parses raw file content into one or more records.
type Func func(raw []byte) ([]value.Value, error)

// Registry is a named set of parser functions keyed by source type.
type Registry struct {
	parsers map[string]Func
}

// NewRegistry creates a registry pre-populated with the built-in markdown,
// yaml, and json parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Func)}
	r.RegisterParser("markdown", ParseMarkdown)
	r.RegisterParser("yaml", ParseYAML)
	r.RegisterParser("json", ParseJSON)
	return r
}

// RegisterParser adds or replaces the parser for name.
func (r *Registry) RegisterParser(name string, fn Func) {
	r.parsers[name] = fn
}

// Parse dispatches to the registered parser for sourceType.
func (r *Registry) Parse(sourceType string, raw []byte) ([]value.Value, error) {
	fn, ok := r.parsers[sourceType]
	if !ok {
		return nil, fmt.Errorf("no parser registered for source type %q", sourceType)
	}
	return fn(raw)
}

var frontmatterDelim = []byte("---")

// ParseMarkdown extracts the YAML frontmatter block delimited by `---`
// lines at the top of the file and parses it as a single record. The body
// following the closing delimiter is discarded, matching the
// "frontmatter-only; body discarded unless explicitly requested".
func ParseMarkdown(raw []byte) ([]value.Value, error) {
	content := bytes.TrimLeft(raw, "﻿ \t\r\n")
	if !bytes.HasPrefix(content, frontmatterDelim) {
		return nil, fmt.Errorf("markdown record missing frontmatter delimiter")
	}
	rest := content[len(frontmatterDelim):]
	rest = bytes.TrimPrefix(rest, []byte("\n"))
	rest = bytes.TrimPrefix(rest, []byte("\r\n"))

	end := findClosingDelim(rest)
	if end == -1 {
		return nil, fmt.Errorf("markdown record missing closing frontmatter delimiter")
	}
	frontmatter := rest[:end]

	var m map[string]any
	if err := yaml.Unmarshal(frontmatter, &m); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return []value.Value{value.FromAny(m)}, nil
}

func findClosingDelim(b []byte) int {
	lines := bytes.Split(b, []byte("\n"))
	offset := 0
	for _, line := range lines {
		trimmed := bytes.TrimRight(line, "\r")
		if bytes.Equal(trimmed, frontmatterDelim) {
			return offset
		}
		offset += len(line) + 1
	}
	return -1
}

// ParseYAML parses a file as either a single record (a YAML mapping) or a
// list of records (a YAML sequence of mappings).
func ParseYAML(raw []byte) ([]value.Value, error) {
	var a any
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return toRecords(a)
}

// ParseJSON parses a file as either a single record (a JSON object) or a
// list of records (a JSON array of objects).
func ParseJSON(raw []byte) ([]value.Value, error) {
	var a any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return toRecords(normalizeJSONNumbers(a))
}

// normalizeJSONNumbers converts json.Number leaves (from UseNumber) into
// float64, matching the shape value.FromAny expects.
func normalizeJSONNumbers(a any) any {
	switch t := a.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, v := range t {
			t[k] = normalizeJSONNumbers(v)
		}
		return t
	case []any:
		for i, v := range t {
			t[i] = normalizeJSONNumbers(v)
		}
		return t
	default:
		return a
	}
}

func toRecords(a any) ([]value.Value, error) {
	switch t := a.(type) {
	case []any:
		out := make([]value.Value, len(t))
		for i, e := range t {
			out[i] = value.FromAny(e)
		}
		return out, nil
	case map[string]any:
		return []value.Value{value.FromAny(t)}, nil
	default:
		return nil, fmt.Errorf("expected a mapping or a list of mappings, got %T", a)
	}
}
