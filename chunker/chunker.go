package chunker

import (
	"iter"
	"strconv"
	"strings"

	"github.com/poiesic/chatvault/core"
)

const (
	// DefaultBudget is the maximum chunk length in runes.
	DefaultBudget = 1000
	// DefaultSeparator joins consecutive turns inside a chunk.
	DefaultSeparator = "\n\n"
)

// Chunker packs whole turns into chunks of at most Budget runes.
// A turn longer than the budget is split into fragments, each its own chunk.
type Chunker struct {
	Budget    int
	Separator string
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithBudget sets the chunk budget in runes. Non-positive values are ignored.
func WithBudget(runes int) Option {
	return func(c *Chunker) {
		if runes > 0 {
			c.Budget = runes
		}
	}
}

// WithSeparator sets the text placed between turns.
func WithSeparator(sep string) Option {
	return func(c *Chunker) {
		c.Separator = sep
	}
}

// New creates a Chunker with the default budget and separator.
func New(opts ...Option) *Chunker {
	c := &Chunker{Budget: DefaultBudget, Separator: DefaultSeparator}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chunker) budget() int {
	if c.Budget <= 0 {
		return DefaultBudget
	}
	return c.Budget
}

// Chunks returns the conversation's chunks in order. The sequence is lazy and
// can be ranged over more than once; every pass yields identical chunks.
func (c *Chunker) Chunks(conv *core.Conversation) iter.Seq[*core.Chunk] {
	return func(yield func(*core.Chunk) bool) {
		budget := c.budget()
		sepLen := runeLen(c.Separator)

		seq := 0
		emit := func(text string, first, last int, continues bool) bool {
			chunk := &core.Chunk{
				ID:             core.IDFromContent(conv.ID, strconv.Itoa(seq), text),
				ConversationID: conv.ID,
				Seq:            seq,
				FirstTurn:      first,
				LastTurn:       last,
				Continues:      continues,
				Text:           text,
			}
			seq++
			return yield(chunk)
		}

		var buf strings.Builder
		bufLen, first, last := 0, -1, -1
		flush := func() bool {
			if first < 0 {
				return true
			}
			ok := emit(buf.String(), first, last, false)
			buf.Reset()
			bufLen, first, last = 0, -1, -1
			return ok
		}

		for i, turn := range conv.Turns {
			n := runeLen(turn.Text)

			if n > budget {
				if !flush() {
					return
				}
				fragments := splitTurn(turn.Text, budget)
				for j, fragment := range fragments {
					if !emit(fragment, i, i, j < len(fragments)-1) {
						return
					}
				}
				continue
			}

			if first >= 0 && bufLen+sepLen+n > budget {
				if !flush() {
					return
				}
			}
			if first < 0 {
				first = i
			} else {
				buf.WriteString(c.Separator)
				bufLen += sepLen
			}
			buf.WriteString(turn.Text)
			bufLen += n
			last = i
		}
		flush()
	}
}

// Reassemble joins chunks back into the conversation transcript. Chunks are
// separated by the separator unless the previous chunk continues its turn.
// For chunks produced by Chunks the result equals strings.Join(conv.TurnTexts(), Separator).
func (c *Chunker) Reassemble(chunks []*core.Chunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		b.WriteString(chunk.Text)
		if i < len(chunks)-1 && !chunk.Continues {
			b.WriteString(c.Separator)
		}
	}
	return b.String()
}

func runeLen(s string) int {
	return len([]rune(s))
}
