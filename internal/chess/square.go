package chess

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "BLACK"
	}
	return "WHITE"
}

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// ParseColor accepts w/b, white/black in any case.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w", "white":
		return White, true
	case "b", "black":
		return Black, true
	default:
		return White, false
	}
}

// ParseSquare converts "e2" style text into a library square.
func ParseSquare(s string) (nchess.Square, error) {
	s = strings.TrimSpace(s)
	if !validSquareText(s) {
		var none nchess.Square
		return none, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

// ValidMoveText checks the coordinate move grammar: from, to and an
// optional lower-case promotion letter.
func ValidMoveText(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if !validSquareText(s[0:2]) || !validSquareText(s[2:4]) {
		return false
	}
	if len(s) == 5 && !strings.ContainsRune("qrbn", rune(s[4])) {
		return false
	}
	return true
}

func validSquareText(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
