package chess

import (
	"context"
)

// SearchResult is what a searcher reports for one bounded search. BestMove
// is empty when the position has no legal moves.
type SearchResult struct {
	BestMove  string
	Ponder    string
	Depth     int
	ScoreCP   int
	Nodes     int64
	Principal []string
}

// Searcher runs bounded searches. Search is called with a position the
// caller does not touch again until Search returns.
type Searcher interface {
	Search(ctx context.Context, pos *Position, limits SearchLimits) (SearchResult, error)
	Close() error
}
