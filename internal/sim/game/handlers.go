package game

import (
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/pathfind"
	"skirmish.ai/internal/sim/spatial"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

// Handlers return done=true when the command completed normally. A
// *CommandError clears the command; any other error is fatal.

func (g *Game) runMove(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	return g.moveTo(u, cmd.Target, pathfind.Within(cmd.Target, approachSlack), dtMs, false)
}

func (g *Game) runAttackMove(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	if u.Attacker != nil {
		if t := g.nearestEnemy(u); t != nil && spatial.DistanceTo(u.Position, t) <= g.tuning.Combat.AttackMoveMaxDeviation+u.Attacker.Range {
			return false, g.aggro(u, t, dtMs)
		}
	}
	return g.runMove(u, cmd, dtMs)
}

func (g *Game) runAttack(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	t := g.byID[cmd.TargetID]
	if t == nil || !t.Alive() {
		return true, nil
	}
	if t.ID == u.ID {
		return false, cmdErr(protocol.ErrInvalidTarget, "unit cannot attack itself")
	}
	return false, g.aggro(u, t, dtMs)
}

func (g *Game) runStop(u *units.Unit) (bool, error) {
	u.PathToNext = nil
	if pf := u.ProductionFacility; pf != nil && pf.ProductionState != nil {
		if opt, ok := pf.Lookup(pf.ProductionState.UnitType); ok {
			p, err := g.player(u.Owner)
			if err != nil {
				return false, err
			}
			p.Resources += opt.Cost
		}
		pf.ProductionState = nil
	}
	if b := u.Builder; b != nil {
		b.CurrentlyBuilding = nil
	}
	u.State.Rest = nil
	u.State.SetAction(units.ActionIdle)
	return true, nil
}

func (g *Game) runFollow(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	t := g.byID[cmd.TargetID]
	if t == nil || !t.Alive() || t.ID == u.ID {
		return true, nil
	}
	dist := g.tuning.Combat.FollowDistance
	if spatial.DistanceTo(u.Position, t) <= dist {
		g.halt(u, units.ActionIdle)
		return false, nil
	}
	return false, g.approach(u, t, dist, dtMs, false)
}

func (g *Game) runHarvest(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	h := u.Harvester
	if h == nil {
		return false, cmdErr(protocol.ErrBadRequest, "unit cannot harvest")
	}
	if u.Carrying() {
		base := g.nearestDropoff(u)
		if base == nil {
			// Keep the load and try again next tick.
			g.halt(u, units.ActionIdle)
			return false, nil
		}
		if spatial.DistanceTo(u.Position, base) <= g.tuning.Combat.DropoffDistance {
			p, err := g.player(u.Owner)
			if err != nil {
				return false, err
			}
			p.Resources += *h.ResourcesCarried
			h.ResourcesCarried = nil
			g.halt(u, units.ActionHarvesting)
			return false, nil
		}
		return false, g.approach(u, base, g.tuning.Combat.DropoffDistance, dtMs, true)
	}

	node := g.byID[cmd.TargetID]
	if node == nil || node.Resource == nil {
		return true, nil
	}
	if node.Resource.Value <= 0 {
		return true, nil
	}
	if spatial.DistanceTo(u.Position, node) > g.tuning.Combat.HarvestDistance {
		return false, g.approach(u, node, g.tuning.Combat.HarvestDistance, dtMs, true)
	}
	g.halt(u, units.ActionHarvesting)
	h.HarvestingProgress += dtMs
	if h.HarvestingProgress >= h.HarvestingTime {
		amount := h.HarvestingValue
		if amount > node.Resource.Value {
			amount = node.Resource.Value
		}
		node.Resource.Value -= amount
		h.ResourcesCarried = &amount
		h.HarvestingProgress = 0
	}
	return false, nil
}

// nearestDropoff finds the closest finished dropoff building owned by u's owner.
func (g *Game) nearestDropoff(u *units.Unit) *units.Unit {
	var best *units.Unit
	var bestD float64
	for _, o := range g.units {
		if o.Owner != u.Owner || o.Kind != g.tuning.Combat.DropoffKind || !o.Alive() {
			continue
		}
		if o.Building != nil && o.Building.UnderConstruction() {
			continue
		}
		d := spatial.DistanceTo(u.Position, o)
		if best == nil || d < bestD {
			best, bestD = o, d
		}
	}
	return best
}

func (g *Game) runProduce(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	pf := u.ProductionFacility
	if pf == nil {
		return false, cmdErr(protocol.ErrBadRequest, "unit cannot produce")
	}
	if u.Building != nil && u.Building.UnderConstruction() {
		return false, cmdErr(protocol.ErrBlocked, "facility under construction")
	}
	p, err := g.player(u.Owner)
	if err != nil {
		return false, err
	}

	if pf.ProductionState == nil {
		if g.countOwned(u.Owner) >= g.tuning.MaxPlayerUnits {
			return false, cmdErr(protocol.ErrLimit, "unit cap %d reached", g.tuning.MaxPlayerUnits)
		}
		opt, ok := pf.Lookup(cmd.UnitToProduce)
		if !ok {
			return false, cmdErr(protocol.ErrInvalidTarget, "%s cannot produce %q", u.Kind, cmd.UnitToProduce)
		}
		if p.Resources < opt.Cost {
			return false, cmdErr(protocol.ErrNoResource, "need %d resources, have %d", opt.Cost, p.Resources)
		}
		p.Resources -= opt.Cost
		pf.ProductionState = &units.ProductionState{UnitType: opt.UnitType, TimeLeft: opt.ProductionTime}
		u.State.SetAction(units.ActionProducing)
		return false, nil
	}

	u.State.SetAction(units.ActionProducing)
	pf.ProductionState.TimeLeft -= dtMs
	if pf.ProductionState.TimeLeft > 0 {
		return false, nil
	}
	kind := pf.ProductionState.UnitType
	pf.ProductionState = nil
	pos, ok := g.freeTileAround(u, belowCentre(u))
	if !ok {
		// The cost is not refunded.
		return false, cmdErr(protocol.ErrBlocked, "no free tile to place %s", kind)
	}
	if _, err := g.Spawn(kind, u.Owner, pos); err != nil {
		return false, err
	}
	return true, nil
}

func (g *Game) countOwned(owner int) int {
	n := 0
	for _, u := range g.units {
		if u.Owner == owner && u.Alive() {
			n++
		}
	}
	return n
}

func (g *Game) runBuild(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	b := u.Builder
	if b == nil {
		return false, cmdErr(protocol.ErrBadRequest, "unit cannot build")
	}
	opt, ok := b.Lookup(cmd.Building)
	if !ok {
		return false, cmdErr(protocol.ErrInvalidTarget, "%s cannot build %q", u.Kind, cmd.Building)
	}
	tmpl, ok := g.catalog.Template(cmd.Building)
	if !ok || tmpl.Building == nil {
		return false, cmdErr(protocol.ErrInvalidTarget, "%q is not a building", cmd.Building)
	}
	p, err := g.player(u.Owner)
	if err != nil {
		return false, err
	}
	if p.Resources < opt.Cost {
		return false, cmdErr(protocol.ErrNoResource, "need %d resources, have %d", opt.Cost, p.Resources)
	}
	if err := g.placementOK(cmd.Position, tmpl.Building.Size, u); err != nil {
		return false, err
	}

	name := cmd.Building
	b.CurrentlyBuilding = &name
	rect := spatial.Footprint(cmd.Position, tmpl.Building.Size)
	if spatial.RectDistance(u.Position, rect) > g.tuning.Combat.BuildDistance {
		_, err := g.moveTo(u, cmd.Position, pathfind.NearRect(rect, g.tuning.Combat.BuildDistance+0.5), dtMs, false)
		return false, err
	}

	p.Resources -= opt.Cost
	bld, err := g.Spawn(cmd.Building, u.Owner, cmd.Position)
	if err != nil {
		return false, err
	}
	if opt.ConstructionTime > 0 {
		left := opt.ConstructionTime
		bld.Building.ConstructionTimeLeft = &left
	}
	b.CurrentlyBuilding = nil
	g.halt(u, units.ActionBuilding)
	g.rebuildSpatial()

	if x, y := vec.Floor(vec.Sum(u.Position, u.Velocity)); rect.Contains(x, y) {
		pos, ok := g.freeTileAround(bld, u.Position)
		if !ok {
			return false, cmdErr(protocol.ErrBlocked, "builder trapped inside %s", cmd.Building)
		}
		u.Position = pos
		u.Velocity = vec.Vec2{}
	}
	return true, nil
}
