package game

import (
	"errors"
	"math"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/pathfind"
	"skirmish.ai/internal/sim/spatial"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

// approachSlack widens the search goal around interaction targets: the lattice
// only has corners every tile and corners touching a footprint are blocked.
const approachSlack = 1.5

// moveTo walks u along a path toward target, planning one when there is none
// or the current one ends too far from target. It reports true once the final
// waypoint is reached this tick.
func (g *Game) moveTo(u *units.Unit, target vec.Vec2, done pathfind.CloseEnough, dtMs float64, harvesting bool) (bool, error) {
	if u.Mover == nil {
		return false, cmdErr(protocol.ErrBadRequest, "unit cannot move")
	}
	path := u.PathToNext
	if len(path) == 0 || vec.Distance(path[len(path)-1], target) > g.tuning.Movement.PathRecomputeDistance {
		p, ok := pathfind.FindPath(g.grid(), u.Position, target, done)
		if !ok {
			return false, cmdErr(protocol.ErrUnreachable, "no path to (%.1f,%.1f)", target.X, target.Y)
		}
		if len(p) == 0 {
			return false, errors.New("path search succeeded without waypoints")
		}
		u.PathToNext = p
	}
	u.State.SetAction(units.ActionMoving)
	return g.steer().MoveApply(u, dtMs, harvesting), nil
}

// approach walks toward another unit until within dist of it (perimeter
// distance for buildings).
func (g *Game) approach(u, target *units.Unit, dist, dtMs float64, harvesting bool) error {
	var done pathfind.CloseEnough
	if r, ok := spatial.UnitFootprint(target); ok {
		done = pathfind.NearRect(r, dist+approachSlack)
	} else {
		done = pathfind.Within(target.Position, math.Max(dist, approachSlack))
	}
	_, err := g.moveTo(u, target.Position, done, dtMs, harvesting)
	return err
}

func (g *Game) halt(u *units.Unit, action units.Action) {
	u.PathToNext = nil
	u.State.SetAction(action)
}

// aggro closes to weapon range and attacks on cooldown.
func (g *Game) aggro(u, target *units.Unit, dtMs float64) error {
	a := u.Attacker
	if a == nil {
		return cmdErr(protocol.ErrBadRequest, "unit cannot attack")
	}
	if target.Hp == nil {
		return cmdErr(protocol.ErrInvalidTarget, "unit %d cannot be damaged", target.ID)
	}
	reach := a.Range - g.tuning.Combat.RangeCompensation
	if spatial.DistanceTo(u.Position, target) > reach {
		if u.Mover == nil {
			g.halt(u, units.ActionIdle)
			return nil
		}
		return g.approach(u, target, reach, dtMs, false)
	}
	g.halt(u, units.ActionAttacking)
	u.Direction = vec.AngleFromTo(u.Position, target.Position)
	if a.Cooldown <= 0 {
		target.Hp.Hp -= a.Damage
		a.Cooldown = a.AttackRate
	}
	return nil
}

func hostile(u, other *units.Unit) bool {
	return other.Owner != 0 && other.Owner != u.Owner && other.Hp != nil && other.Alive()
}

// nearestEnemy returns the closest hostile unit within u's vision, ties going
// to the lower id.
func (g *Game) nearestEnemy(u *units.Unit) *units.Unit {
	if u.Vision == nil || u.Owner == 0 {
		return nil
	}
	var best *units.Unit
	bestD := math.Inf(1)
	for _, o := range g.units {
		if !hostile(u, o) {
			continue
		}
		d := spatial.DistanceTo(u.Position, o)
		if d > u.Vision.Range {
			continue
		}
		if d < bestD || (d == bestD && o.ID < best.ID) {
			best, bestD = o, d
		}
	}
	return best
}

// idle runs autonomous behaviour: defend the anchor, otherwise walk back to it.
func (g *Game) idle(u *units.Unit, dtMs float64) error {
	anchor := u.State.IdlePosition
	if u.Attacker != nil {
		if t := g.nearestEnemy(u); t != nil && spatial.DistanceTo(anchor, t) <= g.tuning.Combat.MaxIdleAggroRange {
			err := g.aggro(u, t, dtMs)
			var ce *CommandError
			if errors.As(err, &ce) {
				g.halt(u, units.ActionIdle)
				return nil
			}
			return err
		}
	}
	if u.Mover == nil || vec.Distance(u.Position, anchor) <= g.tuning.Movement.ArrivalTolerance {
		g.halt(u, units.ActionIdle)
		return nil
	}
	_, err := g.moveTo(u, anchor, pathfind.Within(anchor, approachSlack), dtMs, false)
	var ce *CommandError
	if errors.As(err, &ce) {
		// Unreachable anchor: stay put and defend here instead.
		u.State.IdlePosition = u.Position
		g.halt(u, units.ActionIdle)
		return nil
	}
	return err
}
