// Package mock provides test double implementations of AI service interfaces.
//
// The mocks let pipeline, retriever and classifier tests run without a model
// server while keeping outputs deterministic.
//
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().EmbedText(ctx, "test")
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, ai.NewProviderError("mock", "embed", 429, errors.New("slow down"))
//	}
//
// # Default Behavior
//
//   - MockEmbedder: unit vectors derived from an FNV hash of the text
//   - MockClassifier: tags from the leading words, the first candidate category
//   - MockProvider: aggregates both
package mock
