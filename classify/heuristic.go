package classify

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/chatvault/ai"
	"github.com/poiesic/chatvault/core"
)

const summaryRunes = 160

// categoryKeywords holds the words that vote for each default category.
var categoryKeywords = map[string][]string{
	"AI & Technology": {
		"ai", "algorithm", "api", "code", "computer", "data", "database", "debug",
		"embedding", "function", "golang", "javascript", "learning", "llm", "model",
		"neural", "program", "programming", "python", "server", "software", "sql",
		"technology", "vector",
	},
	"Writing & Creativity": {
		"article", "blog", "character", "creative", "draft", "edit", "essay",
		"fiction", "novel", "poem", "poetry", "story", "write", "writing",
	},
	"Business & Strategy": {
		"budget", "business", "client", "company", "customer", "market", "marketing",
		"pricing", "product", "revenue", "sales", "startup", "strategy",
	},
	"Personal Development": {
		"career", "goal", "goals", "habit", "habits", "health", "interview",
		"motivation", "productivity", "resume", "skills", "wellbeing",
	},
	"Research & Academia": {
		"academic", "analysis", "citation", "experiment", "hypothesis", "journal",
		"paper", "research", "study", "theory", "thesis", "university",
	},
}

// Heuristic labels conversations by keyword frequency.
type Heuristic struct {
	maxTags    int
	categories []string
	votes      map[string][]string // keyword -> categories it votes for
}

// NewHeuristic builds a heuristic classifier. Only categories present in
// categories can be assigned.
func NewHeuristic(maxTags int, categories []string) *Heuristic {
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	if len(categories) == 0 {
		categories = ai.DefaultCategories
	}
	h := &Heuristic{
		maxTags:    maxTags,
		categories: categories,
		votes:      make(map[string][]string),
	}
	for _, category := range categories {
		for name, words := range categoryKeywords {
			if !strings.EqualFold(name, category) {
				continue
			}
			for _, w := range words {
				h.votes[w] = append(h.votes[w], category)
			}
		}
	}
	return h
}

// Classify counts keywords across the title and turns.
func (h *Heuristic) Classify(ctx context.Context, conv *core.Conversation) (core.Labels, error) {
	if err := ctx.Err(); err != nil {
		return core.Labels{}, err
	}

	counts := make(map[string]int)
	for _, text := range append([]string{conv.Title}, conv.TurnTexts()...) {
		for _, word := range core.Keywords(text) {
			if !isTagWord(word) {
				continue
			}
			counts[word]++
		}
	}

	return core.Labels{
		Tags:       h.topTags(counts),
		Categories: h.pickCategories(counts),
		Summary:    summarize(conv),
	}, nil
}

func (h *Heuristic) topTags(counts map[string]int) []string {
	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(words) > h.maxTags {
		words = words[:h.maxTags]
	}
	return words
}

func (h *Heuristic) pickCategories(counts map[string]int) []string {
	scores := make(map[string]int)
	for word, n := range counts {
		for _, category := range h.votes[word] {
			scores[category] += n
		}
	}
	best := 0
	for _, score := range scores {
		best = max(best, score)
	}
	if best == 0 {
		return []string{ai.UncategorizedCategory}
	}
	var picked []string
	for _, category := range h.categories {
		if scores[category] == best {
			picked = append(picked, category)
		}
	}
	return picked
}

// isTagWord keeps words of at least three letters that are not pure numbers.
func isTagWord(word string) bool {
	if utf8.RuneCountInString(word) < 3 {
		return false
	}
	return strings.IndexFunc(word, unicode.IsLetter) >= 0
}

// summarize returns the first user turn cut at a word boundary.
func summarize(conv *core.Conversation) string {
	for _, turn := range conv.Turns {
		if turn.Role != core.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(turn.Text), " ")
		runes := []rune(text)
		if len(runes) <= summaryRunes {
			return text
		}
		cut := string(runes[:summaryRunes])
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}
		return cut + "..."
	}
	return ""
}
