package sessiondto

import "time"

type SetPositionRequest struct {
	Encoding string `json:"encoding"`
	// Side optionally overrides the side to move: "w" or "b".
	Side string `json:"side,omitempty"`
}

type MoveRequest struct {
	Move string `json:"move"`
}

type AIMoveRequest struct {
	Side string `json:"side,omitempty"`
}

type RestoreRequest struct {
	ID string `json:"id"`
}

type PositionResponse struct {
	Encoding string `json:"encoding"`
}

type AIMoveResponse struct {
	// Move is empty when the side to move has no legal move.
	Move string `json:"move"`
}

type LegalMovesResponse struct {
	Square string   `json:"square,omitempty"`
	Moves  []string `json:"moves"`
}

type OutcomeResponse struct {
	Code    int    `json:"code"`
	Outcome string `json:"outcome"`
	Method  string `json:"method,omitempty"`
	Text    string `json:"text,omitempty"`
}

type PieceResponse struct {
	Square string `json:"square"`
	Empty  bool   `json:"empty"`
	Kind   string `json:"kind,omitempty"`
	Color  string `json:"color,omitempty"`
}

type SnapshotResponse struct {
	ID string `json:"id"`
}

type GameSummary struct {
	ID           int64     `json:"id"`
	SessionUUID  string    `json:"session_uuid"`
	Result       string    `json:"result"`
	ResultMethod string    `json:"result_method"`
	Moves        []string  `json:"moves"`
	PGN          string    `json:"pgn"`
	EndedAt      time.Time `json:"ended_at"`
	DurationMS   int64     `json:"duration_ms"`
}

type GamesResponse struct {
	Games []GameSummary `json:"games"`
}

type PGNResponse struct {
	PGN string `json:"pgn"`
}

type StatusResponse struct {
	OK bool `json:"ok"`
}
