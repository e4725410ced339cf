package chess

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartEncoding is the standard initial position.
const StartEncoding = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// VariantStandard is the only variant the adapter understands.
const VariantStandard = "chess"

var (
	ErrInvalidEncoding = errors.New("invalid position encoding")
	ErrIllegalMove     = errors.New("illegal move")
	ErrInvalidSquare   = errors.New("invalid square")
)

// Position is an immutable board state. Apply returns a new value.
type Position struct {
	pos      *nchess.Position
	encoding string
}

// StartPosition returns the standard starting position.
func StartPosition() *Position {
	p, err := ParsePosition(StartEncoding, VariantStandard)
	if err != nil {
		panic(fmt.Sprintf("start position: %v", err))
	}
	return p
}

// ParsePosition decodes a FEN encoding for the given variant.
func ParsePosition(encoding, variant string) (*Position, error) {
	v := strings.ToLower(strings.TrimSpace(variant))
	if v != "" && v != VariantStandard {
		return nil, fmt.Errorf("%w: unsupported variant %q", ErrInvalidEncoding, variant)
	}
	normalized, err := normalizeEncoding(encoding)
	if err != nil {
		return nil, err
	}
	opt, err := nchess.FEN(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	game := nchess.NewGame(opt)
	pos := game.Position()
	if pos == nil {
		return nil, fmt.Errorf("%w: empty position", ErrInvalidEncoding)
	}
	return &Position{pos: pos, encoding: pos.String()}, nil
}

// WithSideToMove rewrites the active color of an encoding. An en-passant
// square is dropped when the side changes since it no longer applies.
func WithSideToMove(encoding string, side Color) (string, error) {
	normalized, err := normalizeEncoding(encoding)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(normalized)
	want := "w"
	if side == Black {
		want = "b"
	}
	if fields[1] == want {
		return normalized, nil
	}
	fields[1] = want
	fields[3] = "-"
	return strings.Join(fields, " "), nil
}

// Encode returns the FEN encoding.
func (p *Position) Encode() string { return p.encoding }

func (p *Position) String() string { return p.encoding }

// Turn reports the side to move.
func (p *Position) Turn() Color {
	if p.pos.Turn() == nchess.Black {
		return Black
	}
	return White
}

// Clone returns an independent copy backed by a freshly decoded board.
func (p *Position) Clone() *Position {
	cp, err := ParsePosition(p.encoding, VariantStandard)
	if err != nil {
		return &Position{pos: p.pos, encoding: p.encoding}
	}
	return cp
}

// LegalMoves returns every legal move in coordinate notation, sorted.
func (p *Position) LegalMoves() []string {
	moves := p.pos.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, moves[i].String())
	}
	sort.Strings(out)
	return out
}

// LegalMovesFrom returns the legal moves whose origin is square.
func (p *Position) LegalMovesFrom(square string) ([]string, error) {
	from, err := ParseSquare(square)
	if err != nil {
		return nil, err
	}
	moves := p.pos.ValidMoves()
	out := make([]string, 0, 8)
	for i := range moves {
		if moves[i].S1() == from {
			out = append(out, moves[i].String())
		}
	}
	sort.Strings(out)
	return out, nil
}

// HasLegalMoves reports whether the side to move can move at all.
func (p *Position) HasLegalMoves() bool {
	return len(p.pos.ValidMoves()) > 0
}

// Apply validates text against the legal moves and returns the resulting
// position together with the move in SAN.
func (p *Position) Apply(text string) (*Position, string, error) {
	text = strings.TrimSpace(text)
	if !ValidMoveText(text) {
		return nil, "", fmt.Errorf("%w: %q", ErrIllegalMove, text)
	}
	moves := p.pos.ValidMoves()
	for i := range moves {
		mv := &moves[i]
		if mv.String() != text {
			continue
		}
		san := nchess.AlgebraicNotation{}.Encode(p.pos, mv)
		next := p.pos.Update(mv)
		if next == nil {
			return nil, "", fmt.Errorf("%w: %q", ErrIllegalMove, text)
		}
		return &Position{pos: next, encoding: next.String()}, san, nil
	}
	return nil, "", fmt.Errorf("%w: %q", ErrIllegalMove, text)
}

// HalfMoveClock is the number of half moves since the last capture or pawn move.
func (p *Position) HalfMoveClock() int { return p.pos.HalfMoveClock() }

func (p *Position) board() *nchess.Board { return p.pos.Board() }

func normalizeEncoding(encoding string) (string, error) {
	fields := strings.Fields(encoding)
	switch len(fields) {
	case 4:
		fields = append(fields, "0", "1")
	case 6:
	default:
		return "", fmt.Errorf("%w: expected 6 fields, got %d", ErrInvalidEncoding, len(fields))
	}
	if err := validatePlacement(fields[0]); err != nil {
		return "", err
	}
	if fields[1] != "w" && fields[1] != "b" {
		return "", fmt.Errorf("%w: side to move %q", ErrInvalidEncoding, fields[1])
	}
	if err := validateCastling(fields[2]); err != nil {
		return "", err
	}
	if fields[3] != "-" {
		sq := fields[3]
		if !validSquareText(sq) || (sq[1] != '3' && sq[1] != '6') {
			return "", fmt.Errorf("%w: en passant square %q", ErrInvalidEncoding, sq)
		}
	}
	for _, clock := range fields[4:] {
		n, err := strconv.Atoi(clock)
		if err != nil || n < 0 {
			return "", fmt.Errorf("%w: move clock %q", ErrInvalidEncoding, clock)
		}
	}
	if n, _ := strconv.Atoi(fields[5]); n < 1 {
		return "", fmt.Errorf("%w: full move number %q", ErrInvalidEncoding, fields[5])
	}
	return strings.Join(fields, " "), nil
}

func validatePlacement(placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("%w: expected 8 ranks, got %d", ErrInvalidEncoding, len(ranks))
	}
	kings := map[rune]int{}
	for i, rank := range ranks {
		files := 0
		for _, r := range rank {
			switch {
			case r >= '1' && r <= '8':
				files += int(r - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", r):
				files++
				if r == 'k' || r == 'K' {
					kings[r]++
				}
				if (r == 'p' || r == 'P') && (i == 0 || i == 7) {
					return fmt.Errorf("%w: pawn on back rank", ErrInvalidEncoding)
				}
			default:
				return fmt.Errorf("%w: unexpected piece %q", ErrInvalidEncoding, r)
			}
		}
		if files != 8 {
			return fmt.Errorf("%w: rank %d has %d files", ErrInvalidEncoding, 8-i, files)
		}
	}
	if kings['K'] != 1 || kings['k'] != 1 {
		return fmt.Errorf("%w: each side needs exactly one king", ErrInvalidEncoding)
	}
	return nil
}

func validateCastling(rights string) error {
	if rights == "-" {
		return nil
	}
	seen := map[rune]bool{}
	for _, r := range rights {
		if !strings.ContainsRune("KQkq", r) || seen[r] {
			return fmt.Errorf("%w: castling rights %q", ErrInvalidEncoding, rights)
		}
		seen[r] = true
	}
	return nil
}
