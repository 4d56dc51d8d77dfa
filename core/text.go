package core

import "strings"

// Stop words to filter out when matching queries and picking keywords
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "i": true, "me": true, "my": true, "we": true,
	"or": true, "if": true, "so": true, "can": true, "how": true, "what": true,
	"your": true, "about": true, "would": true, "will": true, "could": true,
	"should": true, "there": true, "their": true, "they": true, "them": true,
	"these": true, "those": true, "which": true, "when": true, "where": true,
	"who": true, "why": true, "here": true, "some": true, "any": true,
	"all": true, "also": true, "just": true, "like": true, "more": true,
	"than": true, "then": true, "into": true, "its": true, "it's": true,
	"i'm": true, "don't": true, "has": true, "had": true, "were": true,
	"been": true, "being": true, "does": true, "did": true, "our": true,
	"us": true, "he": true, "she": true, "his": true, "her": true, "no": true,
	"yes": true, "one": true, "use": true, "using": true, "get": true,
	"make": true, "want": true, "need": true, "let": true, "very": true,
	"each": true, "other": true, "such": true, "only": true, "may": true,
	"might": true, "well": true, "sure": true, "here's": true, "great": true,
}

// Keywords splits text into words, lowercases, trims punctuation and removes stop words.
func Keywords(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}*`#<>/\\|"))

		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// IsStopWord reports whether word is ignored by Keywords.
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

// MatchesQuery reports whether every keyword of query appears in the conversation's
// title or turns. A query made only of stop words matches nothing.
func MatchesQuery(conv *Conversation, query string) bool {
	queryWords := Keywords(query)
	if len(queryWords) == 0 {
		return false
	}

	docWords := make(map[string]bool)
	for _, word := range Keywords(conv.Title) {
		docWords[word] = true
	}
	for _, turn := range conv.Turns {
		for _, word := range Keywords(turn.Text) {
			docWords[word] = true
		}
	}

	for _, word := range queryWords {
		if !docWords[word] {
			return false
		}
	}
	return true
}
