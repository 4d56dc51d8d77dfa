package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/chatvault/ai"
	"github.com/poiesic/chatvault/core"
)

// LLMClassifier asks a language model for labels and maps its categories
// onto the configured list.
type LLMClassifier struct {
	classifier    ai.Classifier
	categories    []string
	maxTags       int
	maxTextLength int
	logger        *slog.Logger
}

// Classify sends the transcript to the language model.
func (c *LLMClassifier) Classify(ctx context.Context, conv *core.Conversation) (core.Labels, error) {
	text := Transcript(conv, c.maxTextLength)
	if text == "" {
		return core.Labels{}, nil
	}

	result, err := c.classifier.Classify(ctx, text, c.categories)
	if err != nil {
		return core.Labels{}, fmt.Errorf("classify %q: %w", conv.ID, err)
	}

	tags := make([]string, 0, len(result.Tags))
	for _, tag := range result.Tags {
		tags = append(tags, core.NormalizeTag(tag))
	}
	tags = core.MergeLabels(nil, tags...)
	if len(tags) > c.maxTags {
		tags = tags[:c.maxTags]
	}

	labels := core.Labels{
		Tags:       tags,
		Categories: MapCategories(result.Categories, c.categories),
		Summary:    strings.TrimSpace(result.Summary),
	}
	c.logger.Debug("classified conversation",
		"conversation", conv.ID, "tags", len(labels.Tags), "categories", labels.Categories)
	return labels, nil
}

// MapCategories keeps the suggestions found in allowed, using the allowed
// spelling. With no known suggestion the result is Uncategorized.
func MapCategories(suggested, allowed []string) []string {
	var known []string
	for _, s := range suggested {
		if strings.EqualFold(strings.TrimSpace(s), ai.UncategorizedCategory) {
			continue
		}
		for _, a := range allowed {
			if core.HasLabel([]string{a}, s) {
				known = core.MergeLabels(known, a)
				break
			}
		}
	}
	if len(known) == 0 {
		return []string{ai.UncategorizedCategory}
	}
	return known
}

// Transcript renders a conversation as role-prefixed lines, cut to at most
// maxRunes runes when maxRunes is positive.
func Transcript(conv *core.Conversation, maxRunes int) string {
	var b strings.Builder
	if conv.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", conv.Title)
	}
	for _, turn := range conv.Turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
	}
	text := strings.TrimSpace(b.String())
	if maxRunes > 0 {
		runes := []rune(text)
		if len(runes) > maxRunes {
			text = string(runes[:maxRunes])
		}
	}
	return text
}
