package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantTags []string
	}{
		{
			name:     "plain object",
			response: `{"summary":"Tuning badger.","tags":["badger","compaction"],"categories":["AI & Technology"]}`,
			wantTags: []string{"badger", "compaction"},
		},
		{
			name:     "code fenced",
			response: "```json\n{\"summary\":\"x\",\"tags\":[\"go\"],\"categories\":[]}\n```",
			wantTags: []string{"go"},
		},
		{
			name:     "chatty preamble and trailing comma",
			response: "Sure! Here you go:\n{\"summary\":\"x\",\"tags\":[\"go\",\"channels\",],\"categories\":[],}\nHope it helps.",
			wantTags: []string{"go", "channels"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTags, got.Tags)
		})
	}
}

func TestParseClassificationErrors(t *testing.T) {
	_, err := ParseClassification("I cannot help with that.")
	assert.ErrorIs(t, err, ErrNoJSONObject)

	_, err = ParseClassification(`{"summary": 12}`)
	assert.Error(t, err)
}

func TestClassificationPrompt(t *testing.T) {
	prompt := ClassificationPrompt(5, []string{"AI & Technology", "Cooking"})

	assert.Contains(t, prompt, `"AI & Technology", "Cooking"`)
	assert.Contains(t, prompt, "tags are the 5 most useful topics")
	assert.Contains(t, prompt, `Use "Uncategorized" when nothing fits`)
	assert.Contains(t, prompt, `"required": ["summary", "tags", "categories"]`)
}
