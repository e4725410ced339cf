package chess

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	corechess "github.com/park285/Cheese-ChessSession/internal/chess"
	"github.com/park285/Cheese-ChessSession/internal/session"
)

const (
	resultWhite = "white"
	resultBlack = "black"
	resultDraw  = "draw"
)

func resultFromOutcome(o session.Outcome) string {
	switch o {
	case session.WhiteWins:
		return resultWhite
	case session.BlackWins:
		return resultBlack
	case session.Draw:
		return resultDraw
	default:
		return ""
	}
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case resultWhite:
		return "1-0"
	case resultBlack:
		return "0-1"
	case resultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

type pgnInput struct {
	Date          time.Time
	StartEncoding string
	MovesSAN      []string
	Result        string
	Method        string
}

func buildPGN(in pgnInput) string {
	var b strings.Builder
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	pgnResult := mapResultToPGN(in.Result)

	b.WriteString("[Event \"Chess Session\"]\n")
	b.WriteString("[Site \"local\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString("[White \"?\"]\n")
	b.WriteString("[Black \"?\"]\n")

	startsFromStandard := in.StartEncoding == "" || in.StartEncoding == corechess.StartEncoding
	if !startsFromStandard {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(in.StartEncoding)))
	}
	if strings.TrimSpace(in.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(in.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	turn, blackFirst := 1, false
	if !startsFromStandard {
		fields := strings.Fields(in.StartEncoding)
		if len(fields) == 6 {
			if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
				turn = n
			}
		}
		blackFirst = len(fields) > 1 && fields[1] == "b"
	}
	for i, san := range in.MovesSAN {
		san = strings.TrimSpace(san)
		whiteMove := (i%2 == 0) != blackFirst
		switch {
		case whiteMove:
			b.WriteString(fmt.Sprintf("%d. %s ", turn, san))
		case i == 0:
			// 흑 선수로 시작하는 포지션
			b.WriteString(fmt.Sprintf("%d... %s ", turn, san))
			turn++
		default:
			b.WriteString(san + " ")
			turn++
		}
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
