package chess

import (
	"context"
	"errors"
	"sort"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"
)

const (
	// DefaultNodeBudget caps the in-process search when limits carry no
	// node count. Depth 20 is never reached on real positions; the budget
	// decides when the deepest completed iteration is reported.
	DefaultNodeBudget int64 = 6000

	mateValue      = 100000
	mateThreshold  = mateValue - 1000
	checkInterval  = 128
	centreBonusMax = 12
)

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   100,
	nchess.Knight: 320,
	nchess.Bishop: 330,
	nchess.Rook:   500,
	nchess.Queen:  900,
}

var errSearchAborted = errors.New("search aborted")

// AlphaBeta is an in-process iterative deepening negamax searcher.
type AlphaBeta struct {
	nodeBudget int64
	logger     *zap.Logger
}

func NewAlphaBeta(nodeBudget int64, logger *zap.Logger) *AlphaBeta {
	if nodeBudget <= 0 {
		nodeBudget = DefaultNodeBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlphaBeta{nodeBudget: nodeBudget, logger: logger}
}

type searchRun struct {
	ctx      context.Context
	budget   int64
	deadline time.Time
	nodes    int64
	aborted  bool
}

func (a *AlphaBeta) Search(ctx context.Context, pos *Position, limits SearchLimits) (SearchResult, error) {
	if err := limits.Validate(); err != nil {
		return SearchResult{}, err
	}
	root := pos.pos
	rootMoves := orderMoves(root.ValidMoves())
	if len(rootMoves) == 0 {
		return SearchResult{}, nil
	}

	run := &searchRun{ctx: ctx, budget: a.nodeBudget}
	if limits.Nodes > 0 {
		run.budget = limits.Nodes
	}
	if limits.MoveTime > 0 {
		run.deadline = time.Now().Add(limits.MoveTime)
	}
	maxDepth := limits.Depth
	if maxDepth <= 0 {
		maxDepth = maxSearchDepth
	}

	result := SearchResult{
		BestMove:  rootMoves[0].String(),
		Principal: []string{rootMoves[0].String()},
	}
	for depth := 1; depth <= maxDepth; depth++ {
		score, line, err := run.searchRoot(root, rootMoves, depth)
		if err != nil {
			break
		}
		result.BestMove = line[0]
		result.Principal = line
		result.Depth = depth
		result.ScoreCP = score
		// search the previous best first next iteration
		rootMoves = promote(rootMoves, line[0])
		if score >= mateThreshold || score <= -mateThreshold {
			break
		}
	}
	result.Nodes = run.nodes
	if len(result.Principal) > 1 {
		result.Ponder = result.Principal[1]
	}
	a.logger.Debug("alphabeta_done",
		zap.String("best", result.BestMove),
		zap.Int("depth", result.Depth),
		zap.Int("score_cp", result.ScoreCP),
		zap.Int64("nodes", result.Nodes),
	)
	if err := ctx.Err(); err != nil && result.Depth == 0 {
		return result, err
	}
	return result, nil
}

func (r *searchRun) searchRoot(root *nchess.Position, moves []nchess.Move, depth int) (int, []string, error) {
	alpha, beta := -mateValue-1, mateValue+1
	var best []string
	for i := range moves {
		child := root.Update(&moves[i])
		score, line := r.negamax(child, depth-1, 1, -beta, -alpha)
		if r.aborted {
			return 0, nil, errSearchAborted
		}
		score = -score
		if best == nil || score > alpha {
			alpha = score
			best = append([]string{moves[i].String()}, line...)
		}
	}
	return alpha, best, nil
}

func (r *searchRun) negamax(pos *nchess.Position, depth, ply, alpha, beta int) (int, []string) {
	if r.stop() {
		return 0, nil
	}
	if depth == 0 {
		return evaluate(pos), nil
	}
	moves := pos.ValidMoves()
	if len(moves) == 0 {
		if pos.Status() == nchess.Checkmate {
			return -mateValue + ply, nil
		}
		return 0, nil
	}
	moves = orderMoves(moves)
	var best []string
	for i := range moves {
		child := pos.Update(&moves[i])
		score, line := r.negamax(child, depth-1, ply+1, -beta, -alpha)
		if r.aborted {
			return 0, nil
		}
		score = -score
		if score >= beta {
			return beta, nil
		}
		if score > alpha {
			alpha = score
			best = append([]string{moves[i].String()}, line...)
		}
	}
	return alpha, best
}

func (r *searchRun) stop() bool {
	if r.aborted {
		return true
	}
	r.nodes++
	if r.nodes > r.budget {
		r.aborted = true
		return true
	}
	if r.nodes%checkInterval == 0 {
		if r.ctx.Err() != nil {
			r.aborted = true
			return true
		}
		if !r.deadline.IsZero() && time.Now().After(r.deadline) {
			r.aborted = true
			return true
		}
	}
	return false
}

// evaluate scores pos from the side to move's point of view.
func evaluate(pos *nchess.Position) int {
	board := pos.Board()
	score := 0
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			v := pieceValues[piece.Type()]
			if piece.Type() != nchess.King && piece.Type() != nchess.Queen {
				v += centreBonus(int(file), int(rank))
			}
			if piece.Color() == nchess.White {
				score += v
			} else {
				score -= v
			}
		}
	}
	if pos.Turn() == nchess.Black {
		return -score
	}
	return score
}

func centreBonus(file, rank int) int {
	df := file*2 - 7
	if df < 0 {
		df = -df
	}
	dr := rank*2 - 7
	if dr < 0 {
		dr = -dr
	}
	return centreBonusMax - (df+dr)*centreBonusMax/14
}

// orderMoves puts promotions and captures first and keeps the rest in
// coordinate order so results are reproducible.
func orderMoves(moves []nchess.Move) []nchess.Move {
	out := make([]nchess.Move, len(moves))
	copy(out, moves)
	rank := func(m *nchess.Move) int {
		switch {
		case m.Promo() != nchess.NoPieceType:
			return 0
		case m.HasTag(nchess.Capture):
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(&out[i]), rank(&out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].String() < out[j].String()
	})
	return out
}

func promote(moves []nchess.Move, first string) []nchess.Move {
	for i := range moves {
		if moves[i].String() != first {
			continue
		}
		if i == 0 {
			return moves
		}
		out := make([]nchess.Move, 0, len(moves))
		out = append(out, moves[i])
		out = append(out, moves[:i]...)
		return append(out, moves[i+1:]...)
	}
	return moves
}
