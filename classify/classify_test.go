package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/chatvault/ai"
	"github.com/poiesic/chatvault/ai/mock"
	"github.com/poiesic/chatvault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conversation(texts ...string) *core.Conversation {
	conv := &core.Conversation{ID: "c1", Title: "Test"}
	for i, text := range texts {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		conv.Turns = append(conv.Turns, core.Turn{Role: role, Text: text, Position: i})
	}
	return conv
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		opts    []Option
		want    any
		wantErr bool
	}{
		{name: "llm", kind: KindLLM, opts: []Option{WithAIClassifier(mock.NewMockClassifier())}, want: &LLMClassifier{}},
		{name: "llm without model", kind: KindLLM, wantErr: true},
		{name: "heuristic", kind: KindHeuristic, want: &Heuristic{}},
		{name: "none", kind: KindNone, want: Noop{}},
		{name: "empty kind", kind: "", want: Noop{}},
		{name: "unknown", kind: "clustering", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.kind, tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}

	_, err := New("clustering")
	var kindErr *UnknownKindError
	assert.ErrorAs(t, err, &kindErr)
	_, err = New(KindLLM)
	assert.ErrorIs(t, err, ErrClassifierRequired)
}

func TestLLMClassifier(t *testing.T) {
	var gotText string
	var gotCategories []string
	model := &mock.MockClassifier{
		ClassifyFunc: func(ctx context.Context, text string, categories []string) (*ai.Classification, error) {
			gotText = text
			gotCategories = categories
			return &ai.Classification{
				Summary:    "  Tuning a vector index. ",
				Tags:       []string{"Postgres", "pgvector", "postgres", "HNSW", "indexes", "tuning", "latency"},
				Categories: []string{"ai & technology", "Cooking"},
			}, nil
		},
	}
	c, err := New(KindLLM, WithAIClassifier(model), WithMaxTags(3))
	require.NoError(t, err)

	labels, err := c.Classify(context.Background(), conversation("How do I tune HNSW?", "Raise ef_search."))
	require.NoError(t, err)

	assert.Equal(t, []string{"postgres", "pgvector", "hnsw"}, labels.Tags)
	assert.Equal(t, []string{"AI & Technology"}, labels.Categories)
	assert.Equal(t, "Tuning a vector index.", labels.Summary)
	assert.Contains(t, gotText, "user: How do I tune HNSW?")
	assert.Contains(t, gotText, "assistant: Raise ef_search.")
	assert.Equal(t, ai.DefaultCategories, gotCategories)
}

func TestLLMClassifier_Error(t *testing.T) {
	failure := ai.NewProviderError("openai", "classify", 503, errors.New("unavailable"))
	model := &mock.MockClassifier{
		ClassifyFunc: func(context.Context, string, []string) (*ai.Classification, error) {
			return nil, failure
		},
	}
	c, err := New(KindLLM, WithAIClassifier(model))
	require.NoError(t, err)

	labels, err := c.Classify(context.Background(), conversation("hello"))
	assert.ErrorIs(t, err, failure)
	assert.True(t, labels.IsEmpty())
}

func TestMapCategories(t *testing.T) {
	allowed := []string{"AI & Technology", "Business & Strategy", ai.UncategorizedCategory}
	tests := []struct {
		name      string
		suggested []string
		want      []string
	}{
		{name: "known", suggested: []string{"Business & Strategy"}, want: []string{"Business & Strategy"}},
		{name: "case insensitive", suggested: []string{"ai & technology", "AI & TECHNOLOGY"}, want: []string{"AI & Technology"}},
		{name: "unknown", suggested: []string{"Cooking"}, want: []string{ai.UncategorizedCategory}},
		{name: "none", suggested: nil, want: []string{ai.UncategorizedCategory}},
		{name: "uncategorized dropped beside known", suggested: []string{"Uncategorized", "AI & Technology"}, want: []string{"AI & Technology"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapCategories(tt.suggested, allowed))
		})
	}
}

func TestTranscript(t *testing.T) {
	conv := conversation("abcdef", "ghijkl")
	assert.Equal(t, "Title: Test\n\nuser: abcdef\nassistant: ghijkl", Transcript(conv, 0))
	assert.Equal(t, "Title: Te", Transcript(conv, 9))
}

func TestHeuristic(t *testing.T) {
	c := NewHeuristic(3, nil)
	conv := conversation(
		"My python program fails when the database connection drops.",
		"Wrap the database call in a retry and log the python traceback.",
		"The database retry works now.",
	)

	labels, err := c.Classify(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, []string{"database", "python", "retry"}, labels.Tags)
	assert.Equal(t, []string{"AI & Technology"}, labels.Categories)
	assert.Equal(t, "My python program fails when the database connection drops.", labels.Summary)
}

func TestHeuristic_Uncategorized(t *testing.T) {
	labels, err := NewHeuristic(5, nil).Classify(context.Background(), conversation("hello there 12345"))
	require.NoError(t, err)
	assert.Equal(t, []string{ai.UncategorizedCategory}, labels.Categories)
	assert.NotContains(t, labels.Tags, "12345")
}

func TestHeuristic_OnlyConfiguredCategories(t *testing.T) {
	c := NewHeuristic(5, []string{"Research & Academia", ai.UncategorizedCategory})
	labels, err := c.Classify(context.Background(), conversation("Help me debug this python code"))
	require.NoError(t, err)
	assert.Equal(t, []string{ai.UncategorizedCategory}, labels.Categories)
}

func TestHeuristic_LongSummary(t *testing.T) {
	text := strings.Repeat("word ", 100)
	labels, err := NewHeuristic(5, nil).Classify(context.Background(), conversation(text))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(labels.Summary, "..."))
	assert.LessOrEqual(t, len([]rune(labels.Summary)), summaryRunes+3)
}

func TestNoop(t *testing.T) {
	labels, err := Noop{}.Classify(context.Background(), conversation("anything"))
	require.NoError(t, err)
	assert.True(t, labels.IsEmpty())
}
