package types

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseDetectionResult decodes a vision model answer. Models wrap JSON in code
// fences, comments and trailing commas; those are stripped first. An answer
// with no usable JSON yields an empty result rather than an error.
func ParseDetectionResult(raw string) (*DetectionResult, error) {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return &DetectionResult{Objects: []Detection{}, Description: "model returned non-JSON response"}, nil
	}

	var result DetectionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return &DetectionResult{Objects: []Detection{}, Description: "failed to parse model response"}, nil
	}
	if result.Objects == nil {
		result.Objects = []Detection{}
	}
	return &result, nil
}

// SanitizeModelJSON removes code fences, comments and trailing commas and keeps
// only the outermost {...}
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
