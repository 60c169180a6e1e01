package docsgen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is one generated legal document record.
type Document struct {
	DocType      string                 `json:"doc_type"`
	Title        string                 `json:"title"`
	Summary      string                 `json:"summary,omitempty"`
	Placeholders []string               `json:"placeholders,omitempty"`
	DefaultsUsed map[string]interface{} `json:"defaults_used,omitempty"`
	Content      string                 `json:"content"`
}

// ParseError means a generator response could not be read as a document
// array.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse generator output: " + e.Reason
}

// ExtractDocuments pulls a JSON array of document records out of a
// possibly decorated text block. The generator is not guaranteed to return
// clean JSON: the array may be wrapped in markdown code fences, preceded by
// prose, or followed by commentary. The outermost [...] span is located
// before parsing; anything outside it is discarded.
func ExtractDocuments(text string) ([]Document, error) {
	cleaned := stripFences(text)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end < start {
		return nil, &ParseError{Reason: "no JSON array found in response"}
	}

	var docs []Document
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &docs); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid document array: %v", err)}
	}
	return docs, nil
}

// stripFences removes a leading/trailing markdown code fence, including a
// language tag like ```json. Text without fences passes through untouched.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	first := strings.Index(trimmed, "```")
	if first < 0 {
		return trimmed
	}
	rest := trimmed[first+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// Drop the fence line itself (may carry a language tag).
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || isFenceTag(tag) {
			rest = rest[nl+1:]
		}
	}
	if closing := strings.LastIndex(rest, "```"); closing >= 0 {
		rest = rest[:closing]
	}
	return strings.TrimSpace(rest)
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
