package ai

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject is returned when a model response contains no JSON object.
var ErrNoJSONObject = errors.New("response contains no JSON object")

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

type classificationPayload struct {
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`
}

// ParseClassification decodes a language model's JSON answer.
// Code fences, text around the object and trailing commas are tolerated.
func ParseClassification(response string) (*Classification, error) {
	text := strings.TrimSpace(response)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSONObject
	}
	text = trailingComma.ReplaceAllString(text[start:end+1], "$1")

	var payload classificationPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, err
	}

	return &Classification{
		Summary:    strings.TrimSpace(payload.Summary),
		Tags:       payload.Tags,
		Categories: payload.Categories,
	}, nil
}
