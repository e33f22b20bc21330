package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// LLMs wrap JSON in code fences, leave trailing commas, or mix prose around
// the object. These pre-compiled patterns back the fallback strategies in
// Parse.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRegex   = regexp.MustCompile(`(?m)^\s*//.*$`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// Parse decodes an LLM response into T, trying progressively more forgiving
// strategies:
//
//  1. Direct JSON parse
//  2. Strip code fences and retry
//  3. Remove trailing commas and line comments and retry
//  4. Extract the outermost JSON object from mixed content and retry
func Parse[T any](text string) (T, error) {
	var zero T

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, fmt.Errorf("empty response")
	}

	candidates := []string{trimmed}

	unfenced := trimmed
	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		unfenced = strings.TrimSpace(m[1])
		candidates = append(candidates, unfenced)
	}
	cleaned := trailingCommaRegex.ReplaceAllString(unfenced, "$1")
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	if cleaned != unfenced {
		candidates = append(candidates, cleaned)
	}
	if m := objectRegex.FindString(cleaned); m != "" && m != cleaned {
		candidates = append(candidates, m)
	}

	var lastErr error
	for _, candidate := range candidates {
		var out T
		err := json.Unmarshal([]byte(candidate), &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("parsing LLM response: %w", lastErr)
}
