package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/park285/Cheese-ChessSession/internal/hostclient"
)

const usage = `usage: sessionctl [flags] <command> [args]

commands:
  health                     probe the server
  init | shutdown            start or stop the engine session
  position [encoding] [side] show or set the position
  move <uci>                 apply a move
  ai [side]                  ask the engine for a move
  legal [square]             list legal moves
  outcome                    show the game outcome
  piece <square>             show a square's content
  board                      draw the position
  snapshot | restore <id>    save or resume the session
  games [limit] | pgn        finished games / current PGN
`

func main() {
	baseURL := flag.String("url", envDefault("SESSION_URL", "http://127.0.0.1:8080"), "session server base URL")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	token := os.Getenv("SESSION_TOKEN")
	client := hostclient.NewClient(*baseURL,
		hostclient.WithTimeout(*timeout),
		hostclient.WithHeaderProvider(func() map[string]string {
			if token == "" {
				return nil
			}
			return map[string]string{"Authorization": "Bearer " + token}
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := run(ctx, client, flag.Arg(0), flag.Args()[1:]); err != nil {
		cancel()
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, c *hostclient.Client, cmd string, args []string) error {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch strings.ToLower(cmd) {
	case "health":
		if err := c.Health(ctx); err != nil {
			return err
		}
		color.Green("ok")
	case "init":
		if err := c.Init(ctx); err != nil {
			return err
		}
		return showBoard(ctx, c)
	case "shutdown":
		return c.Shutdown(ctx)
	case "position":
		if arg(0) == "" {
			enc, err := c.Position(ctx)
			if err != nil {
				return err
			}
			fmt.Println(enc)
			return nil
		}
		// 인코딩은 공백을 포함하므로 마지막 인자가 side인지 확인
		enc, side := strings.Join(args, " "), ""
		if last := args[len(args)-1]; len(args) > 1 && isSide(last) {
			enc, side = strings.Join(args[:len(args)-1], " "), last
		}
		if _, err := c.SetPosition(ctx, enc, side); err != nil {
			return err
		}
		return showBoard(ctx, c)
	case "move":
		if arg(0) == "" {
			return fmt.Errorf("move requires a move")
		}
		if _, err := c.Move(ctx, arg(0)); err != nil {
			return err
		}
		return showBoard(ctx, c)
	case "ai":
		mv, err := c.AIMove(ctx, arg(0))
		if err != nil {
			return err
		}
		if mv == "" {
			color.Yellow("no move available")
			return nil
		}
		fmt.Println(mv)
	case "legal":
		moves, err := c.LegalMoves(ctx, arg(0))
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(moves, " "))
	case "outcome":
		out, err := c.Outcome(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d %s\n", out.Code, out.Text)
	case "piece":
		p, err := c.Piece(ctx, arg(0))
		if err != nil {
			return err
		}
		if p.Empty {
			fmt.Println("empty")
			return nil
		}
		fmt.Printf("%s %s\n", p.Color, p.Kind)
	case "board":
		return showBoard(ctx, c)
	case "snapshot":
		id, err := c.SaveSnapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Println(id)
	case "restore":
		if arg(0) == "" {
			return fmt.Errorf("restore requires a snapshot id")
		}
		if _, err := c.RestoreSnapshot(ctx, arg(0)); err != nil {
			return err
		}
		return showBoard(ctx, c)
	case "games":
		limit := 0
		if arg(0) != "" {
			n, err := strconv.Atoi(arg(0))
			if err != nil {
				return fmt.Errorf("invalid limit %q", arg(0))
			}
			limit = n
		}
		games, err := c.Games(ctx, limit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(games)
	case "pgn":
		pgn, err := c.PGN(ctx)
		if err != nil {
			return err
		}
		fmt.Println(pgn)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func showBoard(ctx context.Context, c *hostclient.Client) error {
	enc, err := c.Position(ctx)
	if err != nil {
		return err
	}
	return renderBoard(os.Stdout, enc)
}

func isSide(s string) bool {
	switch strings.ToLower(s) {
	case "w", "b", "white", "black":
		return true
	}
	return false
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
