package core

import (
	"slices"
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{name: "single part", parts: []string{"test content"}},
		{name: "empty string", parts: []string{""}},
		{name: "multiple parts", parts: []string{"conv-1", "3", "some chunk text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.parts...)
			id2 := IDFromContent(tt.parts...)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_PartBoundaries(t *testing.T) {
	if IDFromContent("ab", "c") == IDFromContent("a", "bc") {
		t.Errorf("IDFromContent() ignored part boundaries")
	}
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestIDString(t *testing.T) {
	if got := ID(255).String(); got != "00000000000000ff" {
		t.Errorf("ID.String() = %q", got)
	}

	ids := []ID{1 << 63, 42, 7, 1<<40 + 3}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	slices.Sort(ids)
	slices.Sort(strs)
	for i := range ids {
		if ids[i].String() != strs[i] {
			t.Fatalf("lexical order differs from numeric order at %d", i)
		}
	}
}

func TestConversationHelpers(t *testing.T) {
	conv := &Conversation{
		ID: "c1",
		Turns: []Turn{
			{Role: RoleUser, Text: "hi", Position: 0},
			{Role: RoleAssistant, Text: "hello", Position: 1},
		},
		Tags:         []string{"greeting"},
		EmbeddedWith: []string{"embeddinggemma"},
	}

	if got := conv.TurnTexts(); !slices.Equal(got, []string{"hi", "hello"}) {
		t.Errorf("TurnTexts() = %v", got)
	}
	if !conv.IsEmbeddedWith("embeddinggemma") {
		t.Errorf("IsEmbeddedWith() = false for recorded model")
	}
	if conv.IsEmbeddedWith("text-embedding-3-small") {
		t.Errorf("IsEmbeddedWith() = true for unknown model")
	}
	if conv.Labels().IsEmpty() {
		t.Errorf("Labels().IsEmpty() = true with a tag set")
	}
	if !(Labels{}).IsEmpty() {
		t.Errorf("zero Labels should be empty")
	}
}

func TestRoleString(t *testing.T) {
	if RoleUser.String() != "user" || RoleAssistant.String() != "assistant" {
		t.Errorf("unexpected role names %q %q", RoleUser, RoleAssistant)
	}
	if Role(9).String() != "role(9)" {
		t.Errorf("unexpected unknown role rendering %q", Role(9))
	}
}

func TestMergeLabels(t *testing.T) {
	got := MergeLabels([]string{"Go", "databases"}, "go", "  vector   search ", "", "Databases", "embeddings")
	want := []string{"Go", "databases", "vector search", "embeddings"}
	if !slices.Equal(got, want) {
		t.Errorf("MergeLabels() = %v, want %v", got, want)
	}

	if !HasLabel(got, "VECTOR SEARCH") {
		t.Errorf("HasLabel() should ignore case")
	}
	if NormalizeTag("  Machine   Learning ") != "machine learning" {
		t.Errorf("NormalizeTag() = %q", NormalizeTag("  Machine   Learning "))
	}
}

func TestLabelsNormalized(t *testing.T) {
	got := Labels{
		Tags:       []string{"Go", " go ", "Vector  Search"},
		Categories: []string{"AI & Technology", "ai & technology"},
		Summary:    " About Go. ",
	}.Normalized()

	if !slices.Equal(got.Tags, []string{"go", "vector search"}) {
		t.Errorf("Normalized().Tags = %v", got.Tags)
	}
	if !slices.Equal(got.Categories, []string{"AI & Technology"}) {
		t.Errorf("Normalized().Categories = %v", got.Categories)
	}
	if got.Summary != "About Go." {
		t.Errorf("Normalized().Summary = %q", got.Summary)
	}
}
