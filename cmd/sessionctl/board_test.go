package main

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
)

func TestRenderBoardStart(t *testing.T) {
	color.NoColor = true
	var b strings.Builder
	if err := renderBoard(&b, corechess.StartEncoding); err != nil {
		t.Fatalf("renderBoard: %v", err)
	}
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 lines, got %d:\n%s", len(lines), b.String())
	}
	if lines[0] != "8 ♜ ♞ ♝ ♛ ♚ ♝ ♞ ♜ " {
		t.Fatalf("unexpected back rank %q", lines[0])
	}
	if lines[6] != "2 ♙ ♙ ♙ ♙ ♙ ♙ ♙ ♙ " {
		t.Fatalf("unexpected pawn rank %q", lines[6])
	}
	if lines[9] != "white to move" {
		t.Fatalf("unexpected footer %q", lines[9])
	}
}

func TestRenderBoardRejectsGarbage(t *testing.T) {
	var b strings.Builder
	if err := renderBoard(&b, "not a position"); err == nil {
		t.Fatalf("expected error")
	}
}
