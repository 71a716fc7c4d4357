// Package steering turns a desired heading into this tick's displacement,
// avoiding nearby units and impassable terrain without replanning the path.
package steering

import (
	"math"
	"sort"

	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/spatial"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

type Env struct {
	Map      board.GameMap
	Presence spatial.PresenceMap
	Params   tuning.Movement
}

// arc is an angular range [start, start+width] on the unit circle.
type arc struct {
	start, width float64
}

func (a arc) contains(angle float64) bool {
	return vec.NormalizeAngle(angle-a.start) <= a.width
}

// mergeArcs returns a minimal set of disjoint arcs covering the input, wrap-around included.
func mergeArcs(in []arc) []arc {
	if len(in) == 0 {
		return nil
	}
	as := make([]arc, 0, len(in))
	for _, a := range in {
		if a.width >= 2*math.Pi {
			return []arc{{start: 0, width: 2 * math.Pi}}
		}
		as = append(as, arc{start: vec.NormalizeAngle(a.start), width: a.width})
	}
	sort.Slice(as, func(i, j int) bool { return as[i].start < as[j].start })

	out := []arc{as[0]}
	for _, a := range as[1:] {
		last := &out[len(out)-1]
		end := last.start + last.width
		if a.start <= end {
			if e := a.start + a.width; e > end {
				last.width = e - last.start
			}
			continue
		}
		out = append(out, a)
	}
	if len(out) > 1 {
		last, first := out[len(out)-1], out[0]
		if end := last.start + last.width; end >= first.start+2*math.Pi {
			merged := arc{start: last.start, width: math.Max(end, first.start+first.width+2*math.Pi) - last.start}
			out = append([]arc{merged}, out[1:len(out)-1]...)
		}
	}
	for i := range out {
		if out[i].width >= 2*math.Pi {
			return []arc{{start: 0, width: 2 * math.Pi}}
		}
	}
	return out
}

// heading picks the travel angle: the desired one, or the nearer edge of the
// obstacle arc it falls into plus a clearance margin.
func (e Env) heading(u *units.Unit, nearby []*units.Unit, desired, reach float64) float64 {
	var obstacles []arc
	for _, o := range nearby {
		if o.Building != nil {
			continue
		}
		d := vec.Distance(u.Position, o.Position)
		if d <= 0 || d > e.Params.ObstacleDistance || d > reach+e.Params.UnitRadius {
			continue
		}
		half := math.Asin(math.Min(1, 2*e.Params.UnitRadius/d))
		bearing := vec.AngleFromTo(u.Position, o.Position)
		obstacles = append(obstacles, arc{start: bearing - half, width: 2 * half})
	}
	for _, a := range mergeArcs(obstacles) {
		if a.width >= 2*math.Pi || !a.contains(desired) {
			continue
		}
		toStart := vec.NormalizeAngle(desired - a.start)
		if toStart <= a.width-toStart {
			return vec.NormalizeAngle(a.start - e.Params.ArcMargin)
		}
		return vec.NormalizeAngle(a.start + a.width + e.Params.ArcMargin)
	}
	return desired
}

func (e Env) separation(u *units.Unit, nearby []*units.Unit) vec.Vec2 {
	var total vec.Vec2
	for _, o := range nearby {
		if o.Building != nil {
			continue
		}
		d := vec.Distance(u.Position, o.Position)
		if d >= e.Params.SeparationDistance {
			continue
		}
		var push vec.Vec2
		if d == 0 {
			// Stacked exactly; split by id so the pair separates.
			push = vec.Vec2{X: e.Params.MaxSeparationNeighbor}
			if u.ID < o.ID {
				push.X = -push.X
			}
		} else {
			away := vec.Difference(u.Position, o.Position)
			vec.Normalize(&away)
			strength := math.Min(e.Params.MaxSeparationNeighbor, e.Params.SeparationDistance/d-1)
			push = vec.Mul(away, strength)
		}
		vec.Add(&total, push)
	}
	return vec.Clamp(total, e.Params.MaxSeparationTotal)
}

func (e Env) terrainAvoidance(u *units.Unit) vec.Vec2 {
	var total vec.Vec2
	r := e.Params.TerrainAvoidanceRadius
	reach := int(math.Ceil(r))
	cx, cy := vec.Floor(u.Position)
	for y := cy - reach; y <= cy+reach; y++ {
		for x := cx - reach; x <= cx+reach; x++ {
			if e.Map.Passable(x, y) {
				continue
			}
			centre := vec.Vec2{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			d := vec.Distance(u.Position, centre)
			if d == 0 || d > r {
				continue
			}
			away := vec.Difference(u.Position, centre)
			vec.Normalize(&away)
			vec.Add(&total, away)
		}
	}
	return vec.Mul(total, e.Params.TerrainAvoidanceWeight)
}

// Velocity returns the displacement for this tick when heading toward to and
// able to travel step tiles. Harvesting units skip avoidance entirely.
func (e Env) Velocity(u *units.Unit, to vec.Vec2, step float64, harvesting bool) vec.Vec2 {
	desired := vec.AngleFromTo(u.Position, to)
	if harvesting {
		return vec.Mul(vec.FromAngle(desired), step)
	}
	nearby := e.Presence.Near(e.Map, u.Position, e.Params.ScanRadius, u)
	h := e.heading(u, nearby, desired, vec.Distance(u.Position, to))
	dir := vec.Sum(vec.FromAngle(h), e.separation(u, nearby), e.terrainAvoidance(u))
	return vec.Mul(vec.Clamp(dir, 1), step)
}

// MoveApply steers u along u.PathToNext and stores the displacement in
// u.Velocity; the position itself is integrated later by the caller. It
// reports true once the final waypoint is reached, in which case the unit
// lands on it exactly.
func (e Env) MoveApply(u *units.Unit, dtMs float64, harvesting bool) bool {
	if len(u.PathToNext) == 0 || u.Mover == nil {
		return true
	}
	step := u.Mover.Speed * dtMs / 1000
	for len(u.PathToNext) > 1 && vec.Distance(u.Position, u.PathToNext[0]) <= step {
		u.PathToNext = u.PathToNext[1:]
	}
	next := u.PathToNext[0]
	if len(u.PathToNext) == 1 && vec.Distance(u.Position, next) <= step {
		vec.Set(&u.Velocity, vec.Difference(next, u.Position))
		face(u)
		u.PathToNext = nil
		return true
	}
	vec.Set(&u.Velocity, e.Velocity(u, next, step, harvesting))
	face(u)
	return false
}

func face(u *units.Unit) {
	if u.Velocity.X != 0 || u.Velocity.Y != 0 {
		u.Direction = vec.AngleFromTo(vec.Vec2{}, u.Velocity)
	}
}
