package badger

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/storage"
	"github.com/timshannon/badgerhold/v4"
)

// PutConversation inserts or replaces a conversation with its turns.
func (s *Store) PutConversation(ctx context.Context, conv *core.Conversation) error {
	if err := core.ValidateConversation(conv); err != nil {
		return err
	}
	inserted := conv.InsertedAt
	return s.update(ctx, func(tx *badger.Txn) error {
		now := time.Now().UTC()

		conv.InsertedAt = inserted
		var existing core.Conversation
		err := s.store.TxGet(tx, conv.ID, &existing)
		switch {
		case err == nil:
			if conv.InsertedAt.IsZero() {
				conv.InsertedAt = existing.InsertedAt
			}
		case ignoreNotFound(err) != nil:
			return err
		}
		if conv.InsertedAt.IsZero() {
			conv.InsertedAt = now
		}
		conv.UpdatedAt = now

		return s.store.TxUpsert(tx, conv.ID, conv)
	})
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	var conv core.Conversation
	err := s.view(ctx, func(tx *badger.Txn) error {
		return s.store.TxGet(tx, id, &conv)
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("conversation", id)
		}
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes a conversation with its chunks, embeddings and staged vectors.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	err := s.update(ctx, func(tx *badger.Txn) error {
		if err := s.store.TxGet(tx, id, &core.Conversation{}); err != nil {
			return err
		}

		var chunks []chunkRecord
		if err := s.store.TxFind(tx, &chunks, chunksOf(id)); err != nil {
			return err
		}
		models, err := s.txModels(tx)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			if err := s.txDeleteChunk(tx, chunk.ID, models); err != nil {
				return err
			}
		}
		if err := s.txClearStaged(tx, id, ""); err != nil {
			return err
		}
		return s.store.TxDelete(tx, id, &core.Conversation{})
	})
	if isNotFound(err) {
		return notFound("conversation", id)
	}
	return err
}

// ListConversations returns conversations newest first.
func (s *Store) ListConversations(ctx context.Context, offset, limit int) ([]*core.Conversation, error) {
	if offset < 0 {
		offset = 0
	}
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt", "ID").Reverse()
	if offset > 0 {
		query = query.Skip(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	return s.findConversations(ctx, query)
}

// CountConversations returns the number of stored conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	count, err := s.store.Count(&core.Conversation{}, nil)
	if err != nil {
		return 0, wrapError(err)
	}
	return int(count), nil
}

// FindByTag returns conversations carrying tag, newest first.
func (s *Store) FindByTag(ctx context.Context, tag string) ([]*core.Conversation, error) {
	return s.findConversations(ctx, labelQuery("Tags", tag))
}

// FindByCategory returns conversations in category, newest first.
func (s *Store) FindByCategory(ctx context.Context, category string) ([]*core.Conversation, error) {
	return s.findConversations(ctx, labelQuery("Categories", category))
}

// labelQuery matches records whose label slice field holds label, ignoring case.
func labelQuery(field, label string) *badgerhold.Query {
	return badgerhold.Where(field).MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
		labels, ok := ra.Field().([]string)
		return ok && core.HasLabel(labels, label), nil
	}).SortBy("CreatedAt", "ID").Reverse()
}

// UpdateLabels replaces the labels of a conversation. Tags are normalized to lowercase.
func (s *Store) UpdateLabels(ctx context.Context, id string, labels core.Labels) error {
	err := s.update(ctx, func(tx *badger.Txn) error {
		var conv core.Conversation
		if err := s.store.TxGet(tx, id, &conv); err != nil {
			return err
		}
		applyLabels(&conv, labels)
		conv.UpdatedAt = time.Now().UTC()
		return s.store.TxUpsert(tx, id, &conv)
	})
	if isNotFound(err) {
		return notFound("conversation", id)
	}
	return err
}

func applyLabels(conv *core.Conversation, labels core.Labels) {
	labels = labels.Normalized()
	conv.Tags = labels.Tags
	conv.Categories = labels.Categories
	conv.Summary = labels.Summary
}

// Tags returns every tag with its conversation count.
func (s *Store) Tags(ctx context.Context) ([]core.LabelCount, error) {
	return s.countLabels(ctx, func(c *core.Conversation) []string { return c.Tags })
}

// Categories returns every category with its conversation count.
func (s *Store) Categories(ctx context.Context) ([]core.LabelCount, error) {
	return s.countLabels(ctx, func(c *core.Conversation) []string { return c.Categories })
}

func (s *Store) countLabels(ctx context.Context, labels func(*core.Conversation) []string) ([]core.LabelCount, error) {
	var sets [][]string
	err := s.view(ctx, func(tx *badger.Txn) error {
		return s.store.TxForEach(tx, nil, func(conv *core.Conversation) error {
			sets = append(sets, labels(conv))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return storage.CountLabels(sets...), nil
}

// SearchText returns conversations containing every query keyword, newest first.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]*core.Conversation, error) {
	if len(core.Keywords(query)) == 0 {
		return nil, nil
	}
	q := badgerhold.Where("ID").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
		switch conv := ra.Record().(type) {
		case *core.Conversation:
			return core.MatchesQuery(conv, query), nil
		case core.Conversation:
			return core.MatchesQuery(&conv, query), nil
		}
		return false, nil
	}).SortBy("CreatedAt", "ID").Reverse()
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.findConversations(ctx, q)
}

// PendingConversations returns conversations not yet embedded with model, oldest first.
func (s *Store) PendingConversations(ctx context.Context, model string, limit int) ([]*core.Conversation, error) {
	var pending []*core.Conversation
	err := s.view(ctx, func(tx *badger.Txn) error {
		return s.store.TxForEach(tx, nil, func(conv *core.Conversation) error {
			if !conv.IsEmbeddedWith(model) {
				pending = append(pending, conv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(pending, func(a, b *core.Conversation) int {
		if c := a.InsertedAt.Compare(b.InsertedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) findConversations(ctx context.Context, query *badgerhold.Query) ([]*core.Conversation, error) {
	var convs []core.Conversation
	err := s.view(ctx, func(tx *badger.Txn) error {
		return s.store.TxFind(tx, &convs, query)
	})
	if err != nil {
		return nil, err
	}
	result := make([]*core.Conversation, len(convs))
	for i := range convs {
		result[i] = &convs[i]
	}
	return result, nil
}
