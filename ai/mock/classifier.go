package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/chatvault/ai"
)

// MockClassifier is a test double for ai.Classifier.
// It allows custom behavior injection via function fields.
type MockClassifier struct {
	// ClassifyFunc is called by Classify if set.
	// If nil, tags are the first words of the text and the category is the first candidate.
	ClassifyFunc func(ctx context.Context, text string, categories []string) (*ai.Classification, error)

	mu        sync.Mutex
	callCount int
}

// NewMockClassifier creates a mock classifier with default behavior.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// Classify returns labels derived from the leading words of text.
func (m *MockClassifier) Classify(ctx context.Context, text string, categories []string) (*ai.Classification, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text, categories)
	}

	result := &ai.Classification{}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(result.Tags) >= 5 {
			break
		}
		word = strings.Trim(word, ".,!?;:\"'()[]{}-")
		if len(word) < 4 {
			continue
		}
		result.Tags = append(result.Tags, word)
	}
	if len(result.Tags) > 0 {
		result.Summary = "About " + result.Tags[0]
	}
	if len(categories) > 0 {
		result.Categories = []string{categories[0]}
	}
	return result, nil
}

// CallCount returns the number of Classify calls.
func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
