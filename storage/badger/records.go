package badger

import "github.com/poiesic/chatvault/core"

// chunkRecord is a stored chunk without its vectors.
type chunkRecord struct {
	ID             core.ID
	ConversationID string `badgerholdIndex:"ConversationID"`
	Seq            int
	FirstTurn      int
	LastTurn       int
	Continues      bool
	Text           string
}

func newChunkRecord(c *core.Chunk) *chunkRecord {
	return &chunkRecord{
		ID:             c.ID,
		ConversationID: c.ConversationID,
		Seq:            c.Seq,
		FirstTurn:      c.FirstTurn,
		LastTurn:       c.LastTurn,
		Continues:      c.Continues,
		Text:           c.Text,
	}
}

func (r *chunkRecord) chunk() *core.Chunk {
	return &core.Chunk{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Seq:            r.Seq,
		FirstTurn:      r.FirstTurn,
		LastTurn:       r.LastTurn,
		Continues:      r.Continues,
		Text:           r.Text,
	}
}

// embeddingRecord is one chunk's vector under one model.
type embeddingRecord struct {
	ChunkID        core.ID
	ConversationID string
	Model          string
	Vector         []float32
}

// stagedRecord is a vector kept from a partly failed embedding run.
type stagedRecord struct {
	ChunkID        core.ID
	ConversationID string `badgerholdIndex:"ConversationID"`
	Model          string
	Vector         []float32
}

// modelRecord pins the vector dimension of an embedding model.
type modelRecord struct {
	Model     string
	Dimension int
}
