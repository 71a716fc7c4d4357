package protocol

import (
	"encoding/json"
	"fmt"

	"skirmish.ai/internal/sim/vec"
)

type CommandKind string

const (
	CmdMove       CommandKind = "Move"
	CmdAttackMove CommandKind = "AttackMove"
	CmdAttack     CommandKind = "Attack"
	CmdStop       CommandKind = "Stop"
	CmdFollow     CommandKind = "Follow"
	CmdHarvest    CommandKind = "Harvest"
	CmdProduce    CommandKind = "Produce"
	CmdBuild      CommandKind = "Build"
)

// Command is one of the eight unit orders. Only the fields of the active
// variant are meaningful:
//
//	Move, AttackMove        Target
//	Attack, Follow, Harvest TargetID
//	Produce                 UnitToProduce
//	Build                   Building, Position
type Command struct {
	Kind          CommandKind
	Target        vec.Vec2
	TargetID      int
	UnitToProduce string
	Building      string
	Position      vec.Vec2
}

func MoveTo(kind CommandKind, target vec.Vec2) Command {
	return Command{Kind: kind, Target: target}
}

func TargetUnit(kind CommandKind, id int) Command {
	return Command{Kind: kind, TargetID: id}
}

// CommandView is the wire form of a Command. It is also what ends up in unit
// snapshots so JSON and msgpack encoders see the same shape.
type CommandView struct {
	Command       CommandKind `json:"command"`
	Target        any         `json:"target,omitempty"`
	UnitToProduce string      `json:"unitToProduce,omitempty"`
	Building      string      `json:"building,omitempty"`
	Position      *vec.Vec2   `json:"position,omitempty"`
}

func (c Command) View() CommandView {
	v := CommandView{Command: c.Kind}
	switch c.Kind {
	case CmdMove, CmdAttackMove:
		v.Target = c.Target
	case CmdAttack, CmdFollow, CmdHarvest:
		v.Target = c.TargetID
	case CmdProduce:
		v.UnitToProduce = c.UnitToProduce
	case CmdBuild:
		v.Building = c.Building
		p := c.Position
		v.Position = &p
	}
	return v
}

func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.View())
}

func (c *Command) UnmarshalJSON(b []byte) error {
	var raw struct {
		Command       CommandKind     `json:"command"`
		Target        json.RawMessage `json:"target"`
		UnitToProduce string          `json:"unitToProduce"`
		Building      string          `json:"building"`
		Position      *vec.Vec2       `json:"position"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := Command{Kind: raw.Command}
	switch raw.Command {
	case CmdMove, CmdAttackMove:
		if len(raw.Target) == 0 {
			return fmt.Errorf("%s: missing target", raw.Command)
		}
		if err := json.Unmarshal(raw.Target, &out.Target); err != nil {
			return fmt.Errorf("%s target: %w", raw.Command, err)
		}
	case CmdAttack, CmdFollow, CmdHarvest:
		if len(raw.Target) == 0 {
			return fmt.Errorf("%s: missing target", raw.Command)
		}
		if err := json.Unmarshal(raw.Target, &out.TargetID); err != nil {
			return fmt.Errorf("%s target: %w", raw.Command, err)
		}
	case CmdProduce:
		if raw.UnitToProduce == "" {
			return fmt.Errorf("Produce: missing unitToProduce")
		}
		out.UnitToProduce = raw.UnitToProduce
	case CmdBuild:
		if raw.Building == "" || raw.Position == nil {
			return fmt.Errorf("Build: missing building or position")
		}
		out.Building = raw.Building
		out.Position = *raw.Position
	case CmdStop:
	default:
		return fmt.Errorf("unknown command %q", raw.Command)
	}
	*c = out
	return nil
}

type CommandPacket struct {
	Command Command `json:"command"`
	UnitIDs []int   `json:"unitIds"`
	Shift   bool    `json:"shift"`
}

// COMMAND (client -> server)
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CommandPacket
}
