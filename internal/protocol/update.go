package protocol

import (
	"encoding/json"

	"skirmish.ai/internal/sim/vec"
)

type GameStateID string

const (
	StateLobby           GameStateID = "Lobby"
	StatePrecount        GameStateID = "Precount"
	StatePlay            GameStateID = "Play"
	StatePaused          GameStateID = "Paused"
	StateGameEnded       GameStateID = "GameEnded"
	StateForcefullyEnded GameStateID = "GameForcefullyEnded"
)

// GameState is the match phase. Count is the remaining precount in
// milliseconds; WinnerIndices are 0-based indices into the player list and are
// only meaningful once the game has ended.
type GameState struct {
	ID            GameStateID `json:"id"`
	Count         float64     `json:"count,omitempty"`
	WinnerIndices []int       `json:"winnerIndices,omitempty"`
}

func (s GameState) Ended() bool {
	return s.ID == StateGameEnded || s.ID == StateForcefullyEnded
}

// MarshalJSON always writes count for Precount and winnerIndices for
// GameEnded, even when zero or empty (a draw).
func (s GameState) MarshalJSON() ([]byte, error) {
	switch s.ID {
	case StatePrecount:
		return json.Marshal(struct {
			ID    GameStateID `json:"id"`
			Count float64     `json:"count"`
		}{s.ID, s.Count})
	case StateGameEnded:
		w := s.WinnerIndices
		if w == nil {
			w = []int{}
		}
		return json.Marshal(struct {
			ID            GameStateID `json:"id"`
			WinnerIndices []int       `json:"winnerIndices"`
		}{s.ID, w})
	default:
		return json.Marshal(struct {
			ID GameStateID `json:"id"`
		}{s.ID})
	}
}

type PlayerState struct {
	Resources   int  `json:"resources"`
	StillInGame bool `json:"stillInGame"`
}

// Component is one tagged entry of a unit's component list, e.g.
// {"type":"Hp","maxHp":100,"hp":80}.
type Component map[string]any

type UnitStateView struct {
	State        string        `json:"state"`
	IdlePosition *vec.Vec2     `json:"idlePosition,omitempty"`
	Current      *CommandView  `json:"current,omitempty"`
	Rest         []CommandView `json:"rest,omitempty"`
	Action       string        `json:"action"`
	ActionTime   float64       `json:"actionTime"`
}

type UnitSnapshot struct {
	ID         int           `json:"id"`
	State      UnitStateView `json:"state"`
	Position   vec.Vec2      `json:"position"`
	Direction  float64       `json:"direction"`
	Velocity   vec.Vec2      `json:"velocity"`
	Owner      int           `json:"owner"`
	Kind       string        `json:"kind"`
	Components []Component   `json:"components"`
	Debug      any           `json:"debug,omitempty"`
}

type UpdatePacket struct {
	State      GameState      `json:"state"`
	TickNumber int            `json:"tickNumber"`
	Units      []UnitSnapshot `json:"units"`
	Player     PlayerState    `json:"player"`
}

// UPDATE (server -> client)
type UpdateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MatchID         string `json:"match_id"`
	UpdatePacket
}
