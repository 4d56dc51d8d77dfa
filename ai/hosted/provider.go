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


package hosted

import (
	"errors"

	"github.com/poiesic/chatvault/ai"
)

// Provider implements ai.AIProvider on the hosted OpenAI API.
type Provider struct {
	embedder   *Embedder
	classifier *Classifier
}

// NewProvider creates a hosted provider. An API key is required.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if config.Provider != ai.ProviderOpenAI {
		return nil, errors.New("hosted provider requires provider \"openai\"")
	}
	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	classifier, err := newClassifier(config)
	if err != nil {
		return nil, err
	}
	return &Provider{embedder: embedder, classifier: classifier}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Classifier returns the conversation classification service.
func (p *Provider) Classifier() ai.Classifier {
	return p.classifier
}

// Close is a no-op; the HTTP client needs no cleanup.
func (p *Provider) Close() error {
	return nil
}
