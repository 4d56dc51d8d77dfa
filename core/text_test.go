package core

import (
	"slices"
	"testing"
)

func TestKeywords(t *testing.T) {
	got := Keywords("How do I tune the Badger (LSM) compaction?")
	want := []string{"tune", "badger", "lsm", "compaction"}
	if !slices.Equal(got, want) {
		t.Errorf("Keywords() = %v, want %v", got, want)
	}
	if !IsStopWord("The") {
		t.Errorf("IsStopWord(The) = false")
	}
}

func TestMatchesQuery(t *testing.T) {
	conv := &Conversation{
		ID:    "c1",
		Title: "Vector databases",
		Turns: []Turn{
			{Role: RoleUser, Text: "Which index does pgvector use?", Position: 0},
			{Role: RoleAssistant, Text: "HNSW or IVFFlat.", Position: 1},
		},
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"pgvector", true},
		{"vector hnsw", true},
		{"Databases, PGVECTOR!", true},
		{"pgvector postgres", false},
		{"the and of", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := MatchesQuery(conv, tt.query); got != tt.want {
			t.Errorf("MatchesQuery(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
