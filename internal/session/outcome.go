package session

import (
	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
)

// Outcome values match the numeric codes hosts already depend on.
type Outcome int

const (
	WhiteWins Outcome = -1
	Draw      Outcome = 0
	BlackWins Outcome = 1
	Ongoing   Outcome = 2
)

func (o Outcome) Code() int { return int(o) }

func (o Outcome) String() string {
	switch o {
	case WhiteWins:
		return "white_wins"
	case BlackWins:
		return "black_wins"
	case Draw:
		return "draw"
	default:
		return "ongoing"
	}
}

// Terminal reports whether the game is over.
func (o Outcome) Terminal() bool { return o != Ongoing }

const (
	MethodCheckmate = "checkmate"
	MethodStalemate = "stalemate"
)

// Result is a classified position. Method is empty while ongoing.
type Result struct {
	Outcome Outcome
	Method  string
}

// Classify decides the outcome of pos. Checkmate and stalemate are settled
// before any rule draw is considered.
func Classify(pos *corechess.Position, history []string) Result {
	switch pos.Status() {
	case corechess.StatusCheckmate:
		if pos.Turn() == corechess.White {
			return Result{Outcome: BlackWins, Method: MethodCheckmate}
		}
		return Result{Outcome: WhiteWins, Method: MethodCheckmate}
	case corechess.StatusStalemate:
		return Result{Outcome: Draw, Method: MethodStalemate}
	}
	if rule := corechess.RuleDraw(pos, history); rule != corechess.NoDraw {
		return Result{Outcome: Draw, Method: string(rule)}
	}
	return Result{Outcome: Ongoing}
}

// Outcome classifies the live position. It is recomputed on every call.
func (s *Session) Outcome() (Result, error) {
	if err := s.ready(); err != nil {
		return Result{}, err
	}
	return Classify(s.pos, s.history), nil
}
