package sessiondto

import "encoding/json"

// Websocket operation names. Each maps onto the HTTP route of the same meaning.
const (
	OpInit        = "init"
	OpShutdown    = "shutdown"
	OpSetPosition = "set_position"
	OpPosition    = "position"
	OpMove        = "move"
	OpAIMove      = "ai_move"
	OpLegalMoves  = "legal_moves"
	OpOutcome     = "outcome"
	OpPiece       = "piece"
	OpSnapshot    = "snapshot"
	OpRestore     = "restore"
	OpPGN         = "pgn"
)

// Command is one websocket request frame.
type Command struct {
	ID   string            `json:"id"`
	Op   string            `json:"op"`
	Args map[string]string `json:"args,omitempty"`
}

// Reply answers the Command with the same ID.
type Reply struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *DomainError    `json:"error,omitempty"`
}
