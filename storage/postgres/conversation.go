package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/storage"
)

const conversationColumns = `id, title, created_at, turns, tags, categories, summary, source, embedded_with, inserted_at, updated_at`

func scanConversation(row pgx.Row) (*core.Conversation, error) {
	var conv core.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.Title,
		&conv.CreatedAt,
		&conv.Turns,
		&conv.Tags,
		&conv.Categories,
		&conv.Summary,
		&conv.Source,
		&conv.EmbeddedWith,
		&conv.InsertedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.InsertedAt = conv.InsertedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return &conv, nil
}

func (s *Store) queryConversations(ctx context.Context, sql string, args ...any) ([]*core.Conversation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	var convs []*core.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, wrapError(err)
		}
		convs = append(convs, conv)
	}
	return convs, wrapError(rows.Err())
}

// PutConversation inserts or replaces a conversation, keeping the first InsertedAt.
func (s *Store) PutConversation(ctx context.Context, conv *core.Conversation) error {
	if err := core.ValidateConversation(conv); err != nil {
		return err
	}
	if err := s.ready(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	insertedAt := conv.InsertedAt
	if insertedAt.IsZero() {
		insertedAt = now
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			created_at = EXCLUDED.created_at,
			turns = EXCLUDED.turns,
			tags = EXCLUDED.tags,
			categories = EXCLUDED.categories,
			summary = EXCLUDED.summary,
			source = EXCLUDED.source,
			embedded_with = EXCLUDED.embedded_with,
			updated_at = EXCLUDED.updated_at
		RETURNING inserted_at`,
		conv.ID,
		conv.Title,
		conv.CreatedAt,
		conv.Turns,
		nonNil(conv.Tags),
		nonNil(conv.Categories),
		conv.Summary,
		conv.Source,
		nonNil(conv.EmbeddedWith),
		insertedAt,
		now,
	).Scan(&insertedAt)
	if err != nil {
		return wrapError(err)
	}
	conv.InsertedAt = insertedAt.UTC()
	conv.UpdatedAt = now
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if err != nil {
		if err = wrapError(err); errors.Is(err, storage.ErrNotFound) {
			return nil, notFound("conversation", id)
		}
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation. Chunks, embeddings and staged
// vectors go with it through ON DELETE CASCADE.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("conversation", id)
	}
	return nil
}

// ListConversations returns conversations newest first.
func (s *Store) ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error) {
	if offset < 0 {
		offset = 0
	}
	return s.queryConversations(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2`, offset, limitArg(limit))
}

// CountConversations returns the number of stored conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM conversations`).Scan(&count); err != nil {
		return 0, wrapError(err)
	}
	return count, nil
}

// FindByTag returns conversations carrying tag, newest first.
func (s *Store) FindByTag(ctx context.Context, tag string) ([]*core.Conversation, error) {
	return s.findByLabel(ctx, "tags", tag)
}

// FindByCategory returns conversations in category, newest first.
func (s *Store) FindByCategory(ctx context.Context, category string) ([]*core.Conversation, error) {
	return s.findByLabel(ctx, "categories", category)
}

// findByLabel matches a label array column ignoring case. Stored labels have
// their whitespace collapsed already, so lowering both sides is enough.
func (s *Store) findByLabel(ctx context.Context, column, label string) ([]*core.Conversation, error) {
	key := core.NormalizeTag(label)
	if key == "" {
		return nil, nil
	}
	return s.queryConversations(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE EXISTS (SELECT 1 FROM unnest(`+column+`) AS l WHERE lower(l) = $1)
		ORDER BY created_at DESC, id DESC`, key)
}

// UpdateLabels replaces the labels of a conversation. Tags are normalized to lowercase.
func (s *Store) UpdateLabels(ctx context.Context, id string, labels core.Labels) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	labels = labels.Normalized()
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET tags = $2, categories = $3, summary = $4, updated_at = $5
		WHERE id = $1`,
		id, nonNil(labels.Tags), nonNil(labels.Categories), labels.Summary, time.Now().UTC())
	if err != nil {
		return wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("conversation", id)
	}
	return nil
}

// Tags returns every tag with its conversation count.
func (s *Store) Tags(ctx context.Context) ([]core.LabelCount, error) {
	return s.countLabels(ctx, "tags")
}

// Categories returns every category with its conversation count.
func (s *Store) Categories(ctx context.Context) ([]core.LabelCount, error) {
	return s.countLabels(ctx, "categories")
}

func (s *Store) countLabels(ctx context.Context, column string) ([]core.LabelCount, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+column+` FROM conversations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, wrapError(err)
	}
	sets, err := pgx.CollectRows(rows, pgx.RowTo[[]string])
	if err != nil {
		return nil, wrapError(err)
	}
	return storage.CountLabels(sets...), nil
}

// SearchText returns conversations containing every query keyword, newest first.
// ILIKE narrows the candidates and keyword matching decides.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]*core.Conversation, error) {
	keywords := core.Keywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	for _, kw := range keywords {
		// JSON escaping would hide these from a match on the turns text.
		if strings.ContainsAny(kw, "\"\\") {
			continue
		}
		args = append(args, "%"+escapeLike(kw)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR turns::text ILIKE $%d)", n, n))
	}
	sql := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id DESC`

	candidates, err := s.queryConversations(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var matches []*core.Conversation
	for _, conv := range candidates {
		if !core.MatchesQuery(conv, query) {
			continue
		}
		matches = append(matches, conv)
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(s)
}

// PendingConversations returns conversations not yet embedded with model, oldest first.
func (s *Store) PendingConversations(ctx context.Context, model string, limit int) ([]*core.Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE NOT ($1 = ANY (embedded_with))
		ORDER BY inserted_at, id
		LIMIT $2`, model, limitArg(limit))
}
