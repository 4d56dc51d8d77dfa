package ingestion

import (
	"testing"
	"time"

	"github.com/poiesic/chatvault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stored() *core.Conversation {
	return &core.Conversation{
		ID:    "c1",
		Title: "Original",
		Turns: []core.Turn{
			{Role: core.RoleUser, Text: "q1", Position: 0},
			{Role: core.RoleAssistant, Text: "a1", Position: 1},
		},
		Tags:         []string{"kept"},
		Summary:      "summary",
		EmbeddedWith: []string{"m"},
		InsertedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func incoming() *core.Conversation {
	return &core.Conversation{
		ID:    "c1",
		Title: "Updated",
		Turns: []core.Turn{
			{Role: core.RoleUser, Text: "q1", Position: 0},
			{Role: core.RoleAssistant, Text: "a1", Position: 1},
			{Role: core.RoleUser, Text: "q2", Position: 2},
		},
	}
}

func TestResolveDuplicate(t *testing.T) {
	t.Run("new conversation", func(t *testing.T) {
		conv, action := ResolveDuplicate(nil, incoming(), PolicySkip)
		assert.Equal(t, ActionImported, action)
		assert.Equal(t, "Updated", conv.Title)
	})

	t.Run("skip", func(t *testing.T) {
		existing := stored()
		conv, action := ResolveDuplicate(existing, incoming(), PolicySkip)
		assert.Equal(t, ActionSkipped, action)
		assert.Same(t, existing, conv)
	})

	t.Run("overwrite keeps labels", func(t *testing.T) {
		conv, action := ResolveDuplicate(stored(), incoming(), PolicyOverwrite)
		assert.Equal(t, ActionOverwritten, action)
		assert.Equal(t, "Updated", conv.Title)
		assert.Len(t, conv.Turns, 3)
		assert.Equal(t, []string{"kept"}, conv.Tags)
		assert.Equal(t, "summary", conv.Summary)
		assert.Empty(t, conv.EmbeddedWith)
		assert.Equal(t, stored().InsertedAt, conv.InsertedAt)
	})

	t.Run("merge adds missing turns", func(t *testing.T) {
		existing := stored()
		conv, action := ResolveDuplicate(existing, incoming(), PolicyMerge)
		assert.Equal(t, ActionMerged, action)
		assert.Equal(t, "Original", conv.Title)
		require.Len(t, conv.Turns, 3)
		assert.Equal(t, "q2", conv.Turns[2].Text)
		assert.Equal(t, 2, conv.Turns[2].Position)
		assert.Len(t, existing.Turns, 2, "stored conversation is not mutated")
		assert.NoError(t, core.ValidateConversation(conv))
	})

	t.Run("merge with nothing new", func(t *testing.T) {
		existing := stored()
		conv, action := ResolveDuplicate(existing, stored(), PolicyMerge)
		assert.Equal(t, ActionSkipped, action)
		assert.Same(t, existing, conv)
	})
}

func TestParseDuplicatePolicy(t *testing.T) {
	for in, want := range map[string]DuplicatePolicy{
		"":          PolicySkip,
		"skip":      PolicySkip,
		"Overwrite": PolicyOverwrite,
		" merge ":   PolicyMerge,
	} {
		got, err := ParseDuplicatePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDuplicatePolicy("replace")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
