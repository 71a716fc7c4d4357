package match

import (
	"time"

	"skirmish.ai/internal/protocol"
)

type JoinRequest struct {
	Name     string
	Encoding string
	Out      chan []byte
	Resp     chan JoinResponse
}

// JoinResponse carries either a welcome or a protocol error code.
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Code    string
	Message string
}

type CommandEnvelope struct {
	Player int
	Packet protocol.CommandPacket
}

type controlOp int

const (
	opStart controlOp = iota + 1
	opPause
	opResume
	opSurrender
)

type controlReq struct {
	op     controlOp
	player int
	resp   chan error
}

// TickLogEntry is one journal line: the commands received since the previous
// tick and the state after it.
type TickLogEntry struct {
	MatchID  string                 `json:"match_id"`
	Tick     int                    `json:"tick"`
	State    protocol.GameState     `json:"state"`
	Units    int                    `json:"units"`
	Players  []protocol.PlayerState `json:"players"`
	Commands []RecordedCommand      `json:"commands,omitempty"`
}

type RecordedCommand struct {
	Player   int                    `json:"player"`
	Accepted int                    `json:"accepted"`
	Packet   protocol.CommandPacket `json:"packet"`
}

type MatchRecord struct {
	ID        string
	Board     string
	Players   int
	CreatedAt time.Time
}

type ResultRecord struct {
	ID      string
	State   protocol.GameStateID
	Winners []int
	Tick    int
	EndedAt time.Time
}

// EndSnapshot is the full state of a match at the tick it ended.
type EndSnapshot struct {
	MatchID string
	Board   string
	Tick    int
	State   protocol.GameState
	Players []protocol.PlayerState
	Units   []protocol.UnitSnapshot
	EndedAt time.Time
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// Recorder keeps the match index. Implementations must not block.
type Recorder interface {
	RecordMatch(rec MatchRecord)
	RecordResult(rec ResultRecord)
}

type PlayerStatus struct {
	Player      int    `json:"player"`
	Name        string `json:"name,omitempty"`
	Connected   bool   `json:"connected"`
	Resources   int    `json:"resources"`
	StillInGame bool   `json:"stillInGame"`
}

// Status is a point-in-time view of a match, safe to read from any goroutine.
type Status struct {
	ID        string             `json:"id"`
	Board     string             `json:"board,omitempty"`
	State     protocol.GameState `json:"state"`
	Tick      int                `json:"tick"`
	Units     int                `json:"units"`
	Players   []PlayerStatus     `json:"players"`
	CreatedAt time.Time          `json:"created_at"`
}
