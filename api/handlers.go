package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/ingestion"
	"github.com/poiesic/chatvault/search"
	"github.com/poiesic/chatvault/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxK            = 100
)

type handler struct {
	store    storage.ConversationRepository
	searcher Searcher
	importer Importer
	logger   *slog.Logger
}

// TurnResponse is one message of a conversation.
type TurnResponse struct {
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	Position  int        `json:"position"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ConversationResponse describes a conversation. Turns are omitted in listings.
type ConversationResponse struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
	Source     string         `json:"source,omitempty"`
	Tags       []string       `json:"tags"`
	Categories []string       `json:"categories"`
	Summary    string         `json:"summary,omitempty"`
	TurnCount  int            `json:"turn_count"`
	Turns      []TurnResponse `json:"turns,omitempty"`
}

// HitResponse is one search result.
type HitResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Excerpt      string               `json:"excerpt"`
	Score        float32              `json:"score"`
	ChunkSeq     *int                 `json:"chunk_seq,omitempty"`
}

// ListResponse is a page of conversations.
type ListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Total         int                    `json:"total"`
	Offset        int                    `json:"offset"`
	Limit         int                    `json:"limit"`
}

// LabelResponse is a tag or category with its conversation count.
type LabelResponse struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func conversationToResponse(c *core.Conversation, withTurns bool) ConversationResponse {
	resp := ConversationResponse{
		ID:         c.ID,
		Title:      c.Title,
		CreatedAt:  optionalTime(c.CreatedAt),
		Source:     c.Source,
		Tags:       nonNil(c.Tags),
		Categories: nonNil(c.Categories),
		Summary:    c.Summary,
		TurnCount:  len(c.Turns),
	}
	if withTurns {
		resp.Turns = make([]TurnResponse, len(c.Turns))
		for i, t := range c.Turns {
			resp.Turns[i] = TurnResponse{
				Role:      t.Role.String(),
				Text:      t.Text,
				Position:  t.Position,
				Timestamp: optionalTime(t.Timestamp),
			}
		}
	}
	return resp
}

func conversationsToResponse(convs []*core.Conversation) []ConversationResponse {
	out := make([]ConversationResponse, len(convs))
	for i, c := range convs {
		out[i] = conversationToResponse(c, false)
	}
	return out
}

func hitsToResponse(hits []core.Hit) []HitResponse {
	out := make([]HitResponse, len(hits))
	for i, hit := range hits {
		out[i] = HitResponse{
			Conversation: conversationToResponse(hit.Conversation, false),
			Excerpt:      hit.Excerpt,
			Score:        hit.Score,
		}
		if hit.Chunk != nil {
			seq := hit.Chunk.Seq
			out[i].ChunkSeq = &seq
		}
	}
	return out
}

func labelsToResponse(counts []core.LabelCount) []LabelResponse {
	out := make([]LabelResponse, len(counts))
	for i, c := range counts {
		out[i] = LabelResponse{Label: c.Label, Count: c.Count}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// intParam parses an optional positive integer query parameter.
func intParam(r *http.Request, name string, def, maxValue int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	if maxValue > 0 && v > maxValue {
		v = maxValue
	}
	return v, true
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		Error(w, http.StatusBadRequest, "q is required")
		return
	}
	k, ok := intParam(r, "k", 0, maxK)
	if !ok {
		Error(w, http.StatusBadRequest, "k must be a positive integer")
		return
	}
	perConv, ok := intParam(r, "per_conversation", 0, 0)
	if !ok {
		Error(w, http.StatusBadRequest, "per_conversation must be a positive integer")
		return
	}

	hits, err := h.searcher.Search(r.Context(), query, search.WithK(k), search.WithCap(perConv))
	if err != nil {
		h.logger.Error("search failed", "query", query, "err", err)
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, hitsToResponse(hits))
}

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	offset, ok := intParam(r, "offset", 0, 0)
	if !ok {
		Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, ok := intParam(r, "limit", defaultPageSize, maxPageSize)
	if !ok || limit == 0 {
		Error(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	convs, err := h.store.ListConversations(r.Context(), offset, limit)
	if err != nil {
		HandleError(w, err)
		return
	}
	total, err := h.store.CountConversations(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, ListResponse{
		Conversations: conversationsToResponse(convs),
		Total:         total,
		Offset:        offset,
		Limit:         limit,
	})
}

func (h *handler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, conversationToResponse(conv, true))
}

func (h *handler) related(w http.ResponseWriter, r *http.Request) {
	k, ok := intParam(r, "k", 0, maxK)
	if !ok {
		Error(w, http.StatusBadRequest, "k must be a positive integer")
		return
	}
	hits, err := h.searcher.Related(r.Context(), chi.URLParam(r, "id"), k)
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, hitsToResponse(hits))
}

func (h *handler) tags(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Tags(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, labelsToResponse(counts))
}

func (h *handler) byTag(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.FindByTag(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, conversationsToResponse(convs))
}

func (h *handler) categories(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Categories(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, labelsToResponse(counts))
}

func (h *handler) byCategory(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.FindByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, conversationsToResponse(convs))
}

func (h *handler) importExport(w http.ResponseWriter, r *http.Request) {
	policy, err := ingestion.ParseDuplicatePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		HandleError(w, err)
		return
	}

	report, err := h.importer.Import(r.Context(), r.Body, ingestion.ImportOptions{Policy: policy})
	if err != nil {
		h.logger.Warn("import failed", "err", err)
		HandleError(w, err)
		return
	}
	Success(w, http.StatusOK, report)
}
