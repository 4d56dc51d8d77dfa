package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/storage"
)

// PutChunks atomically replaces a conversation's chunk set and its vectors for model.
func (s *Store) PutChunks(ctx context.Context, conversationID, model string, chunks []*core.Chunk) error {
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		if chunk.ConversationID != conversationID {
			return fmt.Errorf("chunk %s belongs to %q, not %q: %w",
				chunk.ID, chunk.ConversationID, conversationID, storage.ErrInvalidQuery)
		}
		ids[i] = chunk.ID.String()
	}

	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var embeddedWith []string
		err := tx.QueryRow(ctx,
			`SELECT embedded_with FROM conversations WHERE id = $1 FOR UPDATE`,
			conversationID).Scan(&embeddedWith)
		if err != nil {
			return err
		}

		dim, err := txDimension(ctx, tx, model)
		if err != nil {
			return err
		}
		newDim, err := storage.ValidateVectors(chunks, dim)
		if err != nil {
			return fmt.Errorf("chunks of %q for model %s: %w", conversationID, model, err)
		}
		if dim == 0 && newDim > 0 {
			if err := registerModel(ctx, tx, model, newDim); err != nil {
				return err
			}
		}

		var existing int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM chunks WHERE conversation_id = $1`,
			conversationID).Scan(&existing)
		if err != nil {
			return err
		}
		removed, err := tx.Exec(ctx,
			`DELETE FROM chunks WHERE conversation_id = $1 AND NOT (chunk_id = ANY ($2))`,
			conversationID, ids)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM staged_embeddings WHERE conversation_id = $1 AND (model = $2 OR NOT (chunk_id = ANY ($3)))`,
			conversationID, model, ids)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, chunk := range chunks {
			batch.Queue(`
				INSERT INTO chunks (chunk_id, conversation_id, seq, first_turn, last_turn, continues, text)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (chunk_id) DO UPDATE SET
					conversation_id = EXCLUDED.conversation_id,
					seq = EXCLUDED.seq,
					first_turn = EXCLUDED.first_turn,
					last_turn = EXCLUDED.last_turn,
					continues = EXCLUDED.continues,
					text = EXCLUDED.text`,
				ids[i], conversationID, chunk.Seq, chunk.FirstTurn, chunk.LastTurn, chunk.Continues, chunk.Text)
			batch.Queue(`
				INSERT INTO embeddings (chunk_id, model, embedding)
				VALUES ($1, $2, $3::vector)
				ON CONFLICT (chunk_id, model) DO UPDATE SET embedding = EXCLUDED.embedding`,
				ids[i], model, pgvector.NewVector(chunk.Vector))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		// Vectors of other models only cover the old chunk set.
		changed := removed.RowsAffected() > 0 || existing != len(chunks)
		if changed {
			embeddedWith = []string{model}
		} else if !slices.Contains(embeddedWith, model) {
			embeddedWith = append(embeddedWith, model)
		}
		_, err = tx.Exec(ctx,
			`UPDATE conversations SET embedded_with = $2, updated_at = $3 WHERE id = $1`,
			conversationID, embeddedWith, time.Now().UTC())
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return notFound("conversation", conversationID)
	}
	return err
}

// registerModel records the dimension of a model's first vectors. A concurrent
// writer may win the insert, so the stored value is checked afterwards.
func registerModel(ctx context.Context, tx pgx.Tx, model string, dim int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO models (model, dimension) VALUES ($1, $2) ON CONFLICT (model) DO NOTHING`,
		model, dim)
	if err != nil {
		return err
	}
	stored, err := txDimension(ctx, tx, model)
	if err != nil {
		return err
	}
	if stored != dim {
		return fmt.Errorf("model %s has %d dimensions, got %d: %w", model, stored, dim, storage.ErrDimensionMismatch)
	}
	return nil
}

func txDimension(ctx context.Context, tx pgx.Tx, model string) (int, error) {
	var dim int
	err := tx.QueryRow(ctx, `SELECT dimension FROM models WHERE model = $1`, model).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return dim, err
}

const chunkColumns = `c.chunk_id, c.conversation_id, c.seq, c.first_turn, c.last_turn, c.continues, c.text`

func scanChunk(row pgx.Row, extra ...any) (*core.Chunk, error) {
	var (
		chunk core.Chunk
		id    string
	)
	dest := append([]any{
		&id,
		&chunk.ConversationID,
		&chunk.Seq,
		&chunk.FirstTurn,
		&chunk.LastTurn,
		&chunk.Continues,
		&chunk.Text,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	var err error
	chunk.ID, err = parseChunkID(id)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetChunks returns the chunks of a conversation ordered by Seq.
func (s *Store) GetChunks(ctx context.Context, conversationID string) ([]*core.Chunk, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks c WHERE c.conversation_id = $1 ORDER BY c.seq`,
		conversationID)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, wrapError(err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, wrapError(rows.Err())
}

// vectorRows reads (chunk_id, embedding::text) rows into a map.
func vectorRows(rows pgx.Rows) (map[core.ID][]float32, error) {
	defer rows.Close()
	vectors := make(map[core.ID][]float32)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		chunkID, err := parseChunkID(id)
		if err != nil {
			return nil, err
		}
		vector, err := parseVector(text)
		if err != nil {
			return nil, err
		}
		vectors[chunkID] = vector
	}
	return vectors, rows.Err()
}

func parseVector(text string) ([]float32, error) {
	var v pgvector.Vector
	if err := v.Scan(text); err != nil {
		return nil, fmt.Errorf("invalid vector: %w", err)
	}
	return v.Slice(), nil
}

// ChunkVectors returns the model's vectors for a conversation's chunks.
func (s *Store) ChunkVectors(ctx context.Context, model, conversationID string) (map[core.ID][]float32, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT e.chunk_id, e.embedding::text
		FROM embeddings e JOIN chunks c ON c.chunk_id = e.chunk_id
		WHERE c.conversation_id = $1 AND e.model = $2`,
		conversationID, model)
	if err != nil {
		return nil, wrapError(err)
	}
	vectors, err := vectorRows(rows)
	return vectors, wrapError(err)
}

// NearestChunks ranks the model's vectors by cosine distance inside one
// read-only repeatable-read transaction.
func (s *Store) NearestChunks(ctx context.Context, model string, vector []float32, k int) ([]core.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	var results []core.ScoredChunk
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := s.inTx(ctx, opts, func(tx pgx.Tx) error {
		dim, err := txDimension(ctx, tx, model)
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

		rows, err := tx.Query(ctx, `
			SELECT `+chunkColumns+`, 1 - (e.embedding <=> $2::vector)
			FROM embeddings e JOIN chunks c ON c.chunk_id = e.chunk_id
			WHERE e.model = $1
			ORDER BY e.embedding <=> $2::vector, c.chunk_id
			LIMIT $3`,
			model, pgvector.NewVector(vector), k)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var score float64
			chunk, err := scanChunk(rows, &score)
			if err != nil {
				return err
			}
			chunk.Model = model
			results = append(results, core.ScoredChunk{Chunk: chunk, Score: float32(score)})
		}
		if err := rows.Err(); err != nil {
			return err
		}
		// Re-sort so equal scores fall back to chunk ID the same way every backend does.
		storage.SortScored(results)
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
	return s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		dim, err := txDimension(ctx, tx, model)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for id, vector := range vectors {
			if len(vector) == 0 || (dim != 0 && len(vector) != dim) {
				return fmt.Errorf("staged vector %s for model %s: %w", id, model, storage.ErrDimensionMismatch)
			}
			batch.Queue(`
				INSERT INTO staged_embeddings (chunk_id, model, conversation_id, embedding)
				VALUES ($1, $2, $3, $4::vector)
				ON CONFLICT (chunk_id, model) DO UPDATE SET
					conversation_id = EXCLUDED.conversation_id,
					embedding = EXCLUDED.embedding`,
				id.String(), model, conversationID, pgvector.NewVector(vector))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// StagedEmbeddings returns the staged vectors for ids.
func (s *Store) StagedEmbeddings(ctx context.Context, model string, ids []core.ID) (map[core.ID][]float32, error) {
	if len(ids) == 0 {
		return map[core.ID][]float32{}, nil
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, embedding::text FROM staged_embeddings
		WHERE model = $1 AND chunk_id = ANY ($2)`,
		model, keys)
	if err != nil {
		return nil, wrapError(err)
	}
	vectors, err := vectorRows(rows)
	return vectors, wrapError(err)
}

// Dimension returns the vector dimension recorded for model, or 0.
func (s *Store) Dimension(ctx context.Context, model string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var dim int
	err := s.pool.QueryRow(ctx, `SELECT dimension FROM models WHERE model = $1`, model).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return dim, wrapError(err)
}
