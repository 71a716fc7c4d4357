package units

import (
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/vec"
)

type StateKind string

const (
	StateIdle   StateKind = "Idle"
	StateActive StateKind = "Active"
)

type Action string

const (
	ActionIdle       Action = "Idle"
	ActionMoving     Action = "Moving"
	ActionAttacking  Action = "Attacking"
	ActionHarvesting Action = "Harvesting"
	ActionProducing  Action = "Producing"
	ActionBuilding   Action = "Building"
)

// State is the command state machine of a unit. When Kind is StateIdle only
// IdlePosition is meaningful; when StateActive, Current and Rest are.
type State struct {
	Kind         StateKind
	IdlePosition vec.Vec2
	Current      protocol.Command
	Rest         []protocol.Command
	Action       Action
	ActionTime   float64
}

func IdleAt(p vec.Vec2) State {
	return State{Kind: StateIdle, IdlePosition: p, Action: ActionIdle}
}

// SetAction records what the unit is doing; ActionTime restarts whenever the
// action changes.
func (s *State) SetAction(a Action) {
	if s.Action != a {
		s.Action = a
		s.ActionTime = 0
	}
}

type Unit struct {
	ID        int
	Kind      string
	Owner     int
	Position  vec.Vec2
	Velocity  vec.Vec2
	Direction float64
	Components
	State State

	// PathToNext holds the remaining waypoints of the current move. Never sent to clients.
	PathToNext []vec.Vec2
	Debug      any
}

func (u *Unit) Alive() bool {
	return u.Hp == nil || u.Hp.Hp > 0
}

func (u *Unit) IsIdle() bool { return u.State.Kind == StateIdle }

func (u *Unit) Carrying() bool {
	return u.Harvester != nil && u.Harvester.ResourcesCarried != nil
}

// Accepts reports whether the unit has the capability a command kind needs.
func (u *Unit) Accepts(kind protocol.CommandKind) bool {
	switch kind {
	case protocol.CmdMove, protocol.CmdAttackMove, protocol.CmdFollow:
		return u.Mover != nil
	case protocol.CmdAttack:
		return u.Attacker != nil
	case protocol.CmdHarvest:
		return u.Harvester != nil
	case protocol.CmdBuild:
		return u.Builder != nil
	case protocol.CmdProduce:
		return u.ProductionFacility != nil
	case protocol.CmdStop:
		return true
	}
	return false
}

// Enqueue applies a command to the unit's queue. Without shift the command
// replaces everything queued and drops the in-flight path.
func (u *Unit) Enqueue(cmd protocol.Command, shift bool) {
	if u.State.Kind == StateIdle {
		u.State = State{Kind: StateActive, Current: cmd, Action: u.State.Action, ActionTime: u.State.ActionTime}
		u.PathToNext = nil
		return
	}
	if shift {
		u.State.Rest = append(u.State.Rest, cmd)
		return
	}
	u.State.Current = cmd
	u.State.Rest = nil
	u.PathToNext = nil
}

// Advance finishes the current command, moving to the next queued one or
// going idle where the unit ends up after this tick's velocity is applied.
func (u *Unit) Advance() {
	u.PathToNext = nil
	if u.State.Kind == StateActive && len(u.State.Rest) > 0 {
		u.State.Current = u.State.Rest[0]
		u.State.Rest = u.State.Rest[1:]
		return
	}
	u.GoIdle(vec.Sum(u.Position, u.Velocity))
}

func (u *Unit) GoIdle(at vec.Vec2) {
	action, t := u.State.Action, u.State.ActionTime
	u.State = IdleAt(at)
	u.State.Action, u.State.ActionTime = action, t
	u.PathToNext = nil
}
