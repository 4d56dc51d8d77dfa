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


package reembed

import (
	"context"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/storage"
)

const (
	// DefaultBatchSize is the default number of conversations to fetch in each batch
	DefaultBatchSize = 100
)

// ConversationIterator walks all stored conversations in batches, newest first.
type ConversationIterator struct {
	store     storage.ConversationRepository
	batchSize int
}

// NewConversationIterator creates a new conversation iterator.
// batchSize: number of conversations to fetch in each batch (defaults when <= 0)
func NewConversationIterator(store storage.ConversationRepository, batchSize int) *ConversationIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ConversationIterator{
		store:     store,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of conversations.
// Iteration stops on the first error from fn or when all conversations are visited.
// Context cancellation is checked between batches.
func (it *ConversationIterator) ForEach(ctx context.Context, fn func([]*core.Conversation) error) error {
	for offset := 0; ; offset += it.batchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := it.store.ListConversations(ctx, offset, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		if len(batch) < it.batchSize {
			return nil
		}
	}
}
