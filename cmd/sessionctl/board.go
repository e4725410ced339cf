package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
)

var glyphs = map[corechess.PieceKind][2]string{
	corechess.KindKing:   {"♔", "♚"},
	corechess.KindQueen:  {"♕", "♛"},
	corechess.KindRook:   {"♖", "♜"},
	corechess.KindBishop: {"♗", "♝"},
	corechess.KindKnight: {"♘", "♞"},
	corechess.KindPawn:   {"♙", "♟"},
}

var (
	lightSquare = color.New(color.BgHiWhite, color.FgBlack)
	darkSquare  = color.New(color.BgGreen, color.FgBlack)
	coordStyle  = color.New(color.FgHiBlack)
)

// renderBoard draws the position with white at the bottom.
func renderBoard(w io.Writer, encoding string) error {
	pos, err := corechess.ParsePosition(encoding, "")
	if err != nil {
		return err
	}
	var b strings.Builder
	for rank := 8; rank >= 1; rank-- {
		b.WriteString(coordStyle.Sprintf("%d ", rank))
		for file := 0; file < 8; file++ {
			sq := fmt.Sprintf("%c%d", 'a'+file, rank)
			piece, ok, err := pos.PieceAt(sq)
			if err != nil {
				return err
			}
			cellText := "  "
			if ok {
				cellText = glyph(piece) + " "
			}
			style := lightSquare
			if (file+rank)%2 == 1 {
				style = darkSquare
			}
			b.WriteString(style.Sprint(cellText))
		}
		b.WriteByte('\n')
	}
	b.WriteString(coordStyle.Sprint("  a b c d e f g h"))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%s to move\n", strings.ToLower(pos.Turn().String()))
	_, err = io.WriteString(w, b.String())
	return err
}

func glyph(p corechess.Piece) string {
	pair, ok := glyphs[p.Kind]
	if !ok {
		return "?"
	}
	if p.Color == corechess.Black {
		return pair[1]
	}
	return pair[0]
}
