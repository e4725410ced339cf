package chess

import (
	nchess "github.com/corentings/chess/v2"
)

// PieceKind names follow the host contract spelling.
type PieceKind string

const (
	KindPawn   PieceKind = "PAWN"
	KindKnight PieceKind = "KNIGHT"
	KindBishop PieceKind = "BISHOP"
	KindRook   PieceKind = "ROOK"
	KindQueen  PieceKind = "QUEEN"
	KindKing   PieceKind = "KING"
)

// Piece is an occupied square's content.
type Piece struct {
	Kind  PieceKind
	Color Color
}

var kindNames = map[nchess.PieceType]PieceKind{
	nchess.Pawn:   KindPawn,
	nchess.Knight: KindKnight,
	nchess.Bishop: KindBishop,
	nchess.Rook:   KindRook,
	nchess.Queen:  KindQueen,
	nchess.King:   KindKing,
}

// PieceAt returns the piece on square; ok is false for an empty square.
func (p *Position) PieceAt(square string) (Piece, bool, error) {
	sq, err := ParseSquare(square)
	if err != nil {
		return Piece{}, false, err
	}
	piece := p.board().Piece(sq)
	if piece == nchess.NoPiece {
		return Piece{}, false, nil
	}
	kind, ok := kindNames[piece.Type()]
	if !ok {
		return Piece{}, false, nil
	}
	color := White
	if piece.Color() == nchess.Black {
		color = Black
	}
	return Piece{Kind: kind, Color: color}, true, nil
}

// Status classifies the side to move as checkmated, stalemated or neither.
type Status int

const (
	StatusOngoing Status = iota
	StatusCheckmate
	StatusStalemate
)

func (p *Position) Status() Status {
	switch p.pos.Status() {
	case nchess.Checkmate:
		return StatusCheckmate
	case nchess.Stalemate:
		return StatusStalemate
	default:
		return StatusOngoing
	}
}

// insufficientMaterial asks the rules library whether neither side can
// still mate. The library only evaluates this for a game it decodes.
func (p *Position) insufficientMaterial() bool {
	opt, err := nchess.FEN(p.encoding)
	if err != nil {
		return false
	}
	return nchess.NewGame(opt).Method() == nchess.InsufficientMaterial
}
