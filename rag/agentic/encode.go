package agentic

import (
	"encoding/json"
	"fmt"
	"strings"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
)

// decodeJSON tries to unmarshal the raw model output into T after stripping
// fences. When the whole payload is not JSON it retries with the first
// balanced object found in the text.
func decodeJSON[T any](raw string) (*T, error) {
	clean := sanitizeJSON(raw)
	var out T
	err := json.Unmarshal([]byte(clean), &out)
	if err == nil {
		return &out, nil
	}
	if obj := extractJSONObject(clean); obj != "" && obj != clean {
		var retry T
		if json.Unmarshal([]byte(obj), &retry) == nil {
			return &retry, nil
		}
	}
	return nil, fmt.Errorf("decode JSON: %w: %v", errorskg.ErrUnparseableOutput, err)
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[idx+3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if end := strings.Index(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
	}
	return strings.TrimSpace(trimmed)
}

// extractJSONObject returns the first balanced {...} in text, honouring
// string literals, or "" when there is none.
func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

func extractBalanced(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// decodeStringList accepts a JSON list of strings, optionally fenced or
// wrapped in prose, or an object holding such a list under a common key.
func decodeStringList(raw string) ([]string, error) {
	clean := sanitizeJSON(raw)
	var list []string
	if err := json.Unmarshal([]byte(clean), &list); err == nil {
		return list, nil
	}
	if arr := extractBalanced(clean, '[', ']'); arr != "" {
		if err := json.Unmarshal([]byte(arr), &list); err == nil {
			return list, nil
		}
	}
	type wrapped struct {
		SubQuestions []string `json:"sub_questions"`
		Questions    []string `json:"questions"`
		Queries      []string `json:"queries"`
	}
	if w, err := decodeJSON[wrapped](clean); err == nil {
		for _, candidate := range [][]string{w.SubQuestions, w.Questions, w.Queries} {
			if len(candidate) > 0 {
				return candidate, nil
			}
		}
	}
	return nil, fmt.Errorf("expected a JSON list of strings: %w", errorskg.ErrUnparseableOutput)
}

// normalizeQueries trims, drops blanks, removes case-insensitive duplicates
// and anything in exclude, then caps the list.
func normalizeQueries(queries, exclude []string, limit int) []string {
	seen := make(map[string]struct{}, len(queries)+len(exclude))
	for _, q := range exclude {
		seen[queryKey(q)] = struct{}{}
	}
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := queryKey(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func queryKey(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func trimForLog(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
