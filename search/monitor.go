package search

import "github.com/poiesic/chatvault/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to trace how hits were chosen.
type SearchMonitor interface {
	Start(query string)
	Embedded(model string, dimension int)
	Candidates(window int, chunks []core.ScoredChunk)
	Admitted(hit core.Hit)
	Capped(chunk *core.Chunk)
	Finish(hits []core.Hit)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                         {}
func (n *noopMonitor) Embedded(_ string, _ int)               {}
func (n *noopMonitor) Candidates(_ int, _ []core.ScoredChunk) {}
func (n *noopMonitor) Admitted(_ core.Hit)                    {}
func (n *noopMonitor) Capped(_ *core.Chunk)                   {}
func (n *noopMonitor) Finish(_ []core.Hit)                    {}
