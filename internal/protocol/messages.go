package protocol

import "skirmish.ai/internal/sim/board"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	MatchID         string `json:"match_id,omitempty"`
	Encoding        string `json:"encoding,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	MatchID         string        `json:"match_id"`
	Player          int           `json:"player"`
	Encoding        string        `json:"encoding"`
	TickIntervalMs  int           `json:"tick_interval_ms"`
	Map             board.GameMap `json:"map"`
	CatalogDigest   string        `json:"catalog_digest,omitempty"`
}

// ERROR (server -> client). Only protocol-level problems are reported; command
// failures surface as the absence of a state change.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
