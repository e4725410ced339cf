package domain

import "time"

// GameRecord is a finished game as persisted by the history repository.
type GameRecord struct {
	ID            int64
	SessionUUID   string
	StartEncoding string
	FinalEncoding string
	SearchPreset  string
	Result        string
	ResultMethod  string
	MovesUCI      []string
	MovesSAN      []string
	PGN           string
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
	EngineLatency time.Duration
}

// Snapshot is a resumable copy of a session kept in Redis.
type Snapshot struct {
	ID            string    `json:"id"`
	SessionUUID   string    `json:"session_uuid"`
	StartEncoding string    `json:"start_encoding"`
	Moves         []string  `json:"moves"`
	Encoding      string    `json:"encoding"`
	SavedAt       time.Time `json:"saved_at"`
}
