package chess

import (
	nchess "github.com/corentings/chess/v2"
)

// DrawRule names a rule-based draw.
type DrawRule string

const (
	NoDraw               DrawRule = ""
	FiftyMoveRule        DrawRule = "fifty-move"
	InsufficientMaterial DrawRule = "insufficient-material"
	ThreefoldRepetition  DrawRule = "repetition"
)

const fiftyMoveHalfMoves = 100

// RuleDraw reports the first draw rule that applies to p. history holds
// the encodings of positions that preceded p, oldest first.
func RuleDraw(p *Position, history []string) DrawRule {
	if p.HalfMoveClock() >= fiftyMoveHalfMoves {
		return FiftyMoveRule
	}
	if p.insufficientMaterial() {
		return InsufficientMaterial
	}
	if repetitions(p.Encode(), history) >= 3 {
		return ThreefoldRepetition
	}
	return NoDraw
}

func repetitions(current string, history []string) int {
	hasher := nchess.NewZobristHasher()
	key, err := hasher.HashPosition(current)
	if err != nil {
		return 0
	}
	count := 1
	for _, enc := range history {
		h, err := hasher.HashPosition(enc)
		if err != nil {
			continue
		}
		if h == key {
			count++
		}
	}
	return count
}
