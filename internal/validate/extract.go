// Package validate turns raw generated text into a Report: it finds a JSON
// object in the text, checks it against the report schema, and substitutes
// the inconclusive fallback when nothing usable can be extracted.
package validate

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ExtractionFailure is the error recorded when no JSON object is found.
const ExtractionFailure = "No valid JSON found"

// ErrNoJSON is returned by ExtractJSON when no candidate parses as an object.
var ErrNoJSON = errors.New(ExtractionFailure)

// bracePattern matches brace-delimited blocks, non-greedy, across lines.
var bracePattern = regexp.MustCompile(`(?s)\{.*?\}`)

// ExtractJSON returns the first JSON object found in text.
//
// Candidates are tried in order: the whole trimmed text, the text inside a
// surrounding markdown fence, the span from the first '{' to the last '}',
// then every non-greedy {...} block left to right.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoJSON
	}

	candidates := []string{trimmed}
	if fenced := stripCodeFences(trimmed); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if span := outerObjectSpan(trimmed); span != "" {
		candidates = append(candidates, span)
	}
	candidates = append(candidates, bracePattern.FindAllString(trimmed, -1)...)

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		if isJSONObject(c) {
			return json.RawMessage(c), nil
		}
	}
	return nil, ErrNoJSON
}

func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return false
	}
	return json.Valid([]byte(s))
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if last := len(lines) - 1; last >= 0 && strings.TrimSpace(lines[last]) == "```" {
		lines = lines[:last]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func outerObjectSpan(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
