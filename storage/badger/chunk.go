package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/storage"
	"github.com/timshannon/badgerhold/v4"
)

func chunksOf(conversationID string) *badgerhold.Query {
	return badgerhold.Where("ConversationID").Eq(conversationID).Index("ConversationID")
}

// PutChunks atomically replaces a conversation's chunk set and its vectors for model.
func (s *Store) PutChunks(ctx context.Context, conversationID, model string, chunks []*core.Chunk) error {
	err := s.update(ctx, func(tx *badger.Txn) error {
		var conv core.Conversation
		if err := s.store.TxGet(tx, conversationID, &conv); err != nil {
			return err
		}

		dim, err := s.txDimension(tx, model)
		if err != nil {
			return err
		}
		newDim, err := storage.ValidateVectors(chunks, dim)
		if err != nil {
			return fmt.Errorf("chunks of %q for model %s: %w", conversationID, model, err)
		}
		if dim == 0 && newDim > 0 {
			if err := s.store.TxUpsert(tx, model, &modelRecord{Model: model, Dimension: newDim}); err != nil {
				return err
			}
		}

		var existing []chunkRecord
		if err := s.store.TxFind(tx, &existing, chunksOf(conversationID)); err != nil {
			return err
		}
		keep := make(map[core.ID]bool, len(chunks))
		for _, chunk := range chunks {
			keep[chunk.ID] = true
		}
		models, err := s.txModels(tx)
		if err != nil {
			return err
		}
		changed := len(existing) != len(chunks)
		for _, old := range existing {
			if keep[old.ID] {
				continue
			}
			changed = true
			if err := s.txDeleteChunk(tx, old.ID, models); err != nil {
				return err
			}
		}

		for _, chunk := range chunks {
			if chunk.ConversationID != conversationID {
				return fmt.Errorf("chunk %s belongs to %q, not %q: %w",
					chunk.ID, chunk.ConversationID, conversationID, storage.ErrInvalidQuery)
			}
			if err := s.store.TxUpsert(tx, chunk.ID, newChunkRecord(chunk)); err != nil {
				return err
			}
			rec := &embeddingRecord{
				ChunkID:        chunk.ID,
				ConversationID: conversationID,
				Model:          model,
				Vector:         chunk.Vector,
			}
			if err := s.store.TxUpsert(tx, makeEmbeddingKey(model, chunk.ID), rec); err != nil {
				return err
			}
		}

		if err := s.txClearStaged(tx, conversationID, model); err != nil {
			return err
		}

		// Vectors of other models only cover the old chunk set.
		if changed {
			conv.EmbeddedWith = []string{model}
		} else if !conv.IsEmbeddedWith(model) {
			conv.EmbeddedWith = append(conv.EmbeddedWith, model)
		}
		conv.UpdatedAt = time.Now().UTC()
		return s.store.TxUpsert(tx, conversationID, &conv)
	})
	if isNotFound(err) {
		return notFound("conversation", conversationID)
	}
	return err
}

// GetChunks returns the chunks of a conversation ordered by Seq.
func (s *Store) GetChunks(ctx context.Context, conversationID string) ([]*core.Chunk, error) {
	var records []chunkRecord
	err := s.view(ctx, func(tx *badger.Txn) error {
		return s.store.TxFind(tx, &records, chunksOf(conversationID))
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(records, func(a, b chunkRecord) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	chunks := make([]*core.Chunk, len(records))
	for i := range records {
		chunks[i] = records[i].chunk()
	}
	return chunks, nil
}

// ChunkVectors returns the model's vectors for a conversation's chunks.
func (s *Store) ChunkVectors(ctx context.Context, model, conversationID string) (map[core.ID][]float32, error) {
	vectors := make(map[core.ID][]float32)
	err := s.view(ctx, func(tx *badger.Txn) error {
		var records []chunkRecord
		if err := s.store.TxFind(tx, &records, chunksOf(conversationID)); err != nil {
			return err
		}
		for _, rec := range records {
			var emb embeddingRecord
			err := s.store.TxGet(tx, makeEmbeddingKey(model, rec.ID), &emb)
			if err != nil {
				if ignoreNotFound(err) == nil {
					continue
				}
				return err
			}
			vectors[rec.ID] = emb.Vector
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// NearestChunks scans the model's vectors in one read transaction and returns
// the k most similar chunks.
func (s *Store) NearestChunks(ctx context.Context, model string, vector []float32, k int) ([]core.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	var results []core.ScoredChunk
	err := s.view(ctx, func(tx *badger.Txn) error {
		dim, err := s.txDimension(tx, model)
		if err != nil {
			return err
		}
		if dim == 0 {
			return nil
		}
		if len(vector) != dim {
			return fmt.Errorf("query has %d dimensions, model %s has %d: %w",
				len(vector), model, dim, storage.ErrDimensionMismatch)
		}

		var scored []core.ScoredChunk
		query := badgerhold.Where("Model").Eq(model)
		err = s.store.TxForEach(tx, query, func(rec *embeddingRecord) error {
			scored = append(scored, core.ScoredChunk{
				Chunk: &core.Chunk{ID: rec.ChunkID},
				Score: storage.CosineSimilarity(vector, rec.Vector),
			})
			return nil
		})
		if err != nil {
			return err
		}

		storage.SortScored(scored)
		if len(scored) > k {
			scored = scored[:k]
		}

		results = make([]core.ScoredChunk, 0, len(scored))
		for _, sc := range scored {
			var rec chunkRecord
			if err := s.store.TxGet(tx, sc.Chunk.ID, &rec); err != nil {
				return err
			}
			chunk := rec.chunk()
			chunk.Model = model
			results = append(results, core.ScoredChunk{Chunk: chunk, Score: sc.Score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// StageEmbeddings keeps vectors of a partly embedded conversation.
func (s *Store) StageEmbeddings(ctx context.Context, model, conversationID string, vectors map[core.ID][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	return s.update(ctx, func(tx *badger.Txn) error {
		dim, err := s.txDimension(tx, model)
		if err != nil {
			return err
		}
		for id, vector := range vectors {
			if len(vector) == 0 || (dim != 0 && len(vector) != dim) {
				return fmt.Errorf("staged vector %s for model %s: %w", id, model, storage.ErrDimensionMismatch)
			}
			rec := &stagedRecord{
				ChunkID:        id,
				ConversationID: conversationID,
				Model:          model,
				Vector:         vector,
			}
			if err := s.store.TxUpsert(tx, makeStagedKey(model, id), rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// StagedEmbeddings returns the staged vectors for ids.
func (s *Store) StagedEmbeddings(ctx context.Context, model string, ids []core.ID) (map[core.ID][]float32, error) {
	vectors := make(map[core.ID][]float32)
	err := s.view(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			var rec stagedRecord
			err := s.store.TxGet(tx, makeStagedKey(model, id), &rec)
			if err != nil {
				if ignoreNotFound(err) == nil {
					continue
				}
				return err
			}
			vectors[id] = rec.Vector
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimension returns the vector dimension recorded for model, or 0.
func (s *Store) Dimension(ctx context.Context, model string) (int, error) {
	var dim int
	err := s.view(ctx, func(tx *badger.Txn) error {
		var err error
		dim, err = s.txDimension(tx, model)
		return err
	})
	return dim, err
}

func (s *Store) txDimension(tx *badger.Txn, model string) (int, error) {
	var rec modelRecord
	if err := s.store.TxGet(tx, model, &rec); err != nil {
		return 0, ignoreNotFound(err)
	}
	return rec.Dimension, nil
}

func (s *Store) txModels(tx *badger.Txn) ([]string, error) {
	var records []modelRecord
	if err := s.store.TxFind(tx, &records, nil); err != nil {
		return nil, err
	}
	models := make([]string, len(records))
	for i, rec := range records {
		models[i] = rec.Model
	}
	return models, nil
}

// txDeleteChunk removes a chunk with its vectors under every model.
func (s *Store) txDeleteChunk(tx *badger.Txn, id core.ID, models []string) error {
	for _, model := range models {
		if err := ignoreNotFound(s.store.TxDelete(tx, makeEmbeddingKey(model, id), &embeddingRecord{})); err != nil {
			return err
		}
		if err := ignoreNotFound(s.store.TxDelete(tx, makeStagedKey(model, id), &stagedRecord{})); err != nil {
			return err
		}
	}
	return ignoreNotFound(s.store.TxDelete(tx, id, &chunkRecord{}))
}

// txClearStaged drops staged vectors of a conversation, for one model or all when model is empty.
func (s *Store) txClearStaged(tx *badger.Txn, conversationID, model string) error {
	var staged []stagedRecord
	if err := s.store.TxFind(tx, &staged, chunksOf(conversationID)); err != nil {
		return err
	}
	for _, rec := range staged {
		if model != "" && rec.Model != model {
			continue
		}
		if err := ignoreNotFound(s.store.TxDelete(tx, makeStagedKey(rec.Model, rec.ChunkID), &stagedRecord{})); err != nil {
			return err
		}
	}
	return nil
}
