// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the AI services chatvault depends on.
//
// This package defines interfaces for text embeddings and conversation
// classification so the ingestion, search and classify packages depend on
// abstractions rather than concrete provider clients.
//
// # Design Principles
//
// The package is designed around three key interfaces:
//
//   - Embedder: Generates vector embeddings from text, tagged with a model ID
//   - Classifier: Suggests a summary, tags and categories for conversation text
//   - AIProvider: Aggregates AI services for convenient initialization
//
// Provider failures are reported as *ProviderError. The Transient flag tells
// callers whether the failure (quota, timeout, 5xx) is worth retrying.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo against any OpenAI-compatible server (Ollama, vLLM)
//   - ai/hosted: go-openai against the hosted OpenAI API
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, hosted.NewProvider) return
// interface types. Test constructors in ai/mock return concrete types so tests
// can inject behaviour and assert on call counts.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"Hello world"})
//	labels, err := provider.Classifier().Classify(ctx, transcript, ai.DefaultCategories)
package ai
