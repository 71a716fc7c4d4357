package game

import (
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

// packets builds one UpdatePacket per player. All players see all units; the
// unit snapshots are shared between packets.
func (g *Game) packets() []protocol.UpdatePacket {
	snaps := g.UnitSnapshots()
	out := make([]protocol.UpdatePacket, len(g.players))
	for i, p := range g.players {
		out[i] = protocol.UpdatePacket{
			State:      g.state,
			TickNumber: g.tickNumber,
			Units:      snaps,
			Player:     p,
		}
	}
	return out
}

// UnitSnapshots projects every live unit, in unit order.
func (g *Game) UnitSnapshots() []protocol.UnitSnapshot {
	snaps := make([]protocol.UnitSnapshot, 0, len(g.units))
	for _, u := range g.units {
		snaps = append(snaps, g.snapshot(u))
	}
	return snaps
}

func (g *Game) snapshot(u *units.Unit) protocol.UnitSnapshot {
	s := protocol.UnitSnapshot{
		ID:         u.ID,
		State:      stateView(u.State),
		Position:   u.Position,
		Direction:  u.Direction,
		Velocity:   u.Velocity,
		Owner:      u.Owner,
		Kind:       u.Kind,
		Components: componentViews(u.Components),
		Debug:      u.Debug,
	}
	if g.debug && len(u.PathToNext) > 0 {
		s.Debug = map[string]any{"path": append([]vec.Vec2(nil), u.PathToNext...)}
	}
	return s
}

func stateView(s units.State) protocol.UnitStateView {
	v := protocol.UnitStateView{
		State:      string(s.Kind),
		Action:     string(s.Action),
		ActionTime: s.ActionTime,
	}
	if s.Kind == units.StateIdle {
		p := s.IdlePosition
		v.IdlePosition = &p
		return v
	}
	cur := s.Current.View()
	v.Current = &cur
	for _, c := range s.Rest {
		v.Rest = append(v.Rest, c.View())
	}
	return v
}

func componentViews(c units.Components) []protocol.Component {
	out := make([]protocol.Component, 0, 6)
	if c.Hp != nil {
		out = append(out, protocol.Component{"type": "Hp", "maxHp": c.Hp.MaxHp, "hp": c.Hp.Hp})
	}
	if c.Mover != nil {
		out = append(out, protocol.Component{"type": "Mover", "speed": c.Mover.Speed})
	}
	if a := c.Attacker; a != nil {
		out = append(out, protocol.Component{
			"type":       "Attacker",
			"damage":     a.Damage,
			"attackRate": a.AttackRate,
			"range":      a.Range,
			"cooldown":   a.Cooldown,
		})
	}
	if h := c.Harvester; h != nil {
		v := protocol.Component{
			"type":               "Harvester",
			"harvestingTime":     h.HarvestingTime,
			"harvestingValue":    h.HarvestingValue,
			"harvestingProgress": h.HarvestingProgress,
		}
		if h.ResourcesCarried != nil {
			v["resourcesCarried"] = *h.ResourcesCarried
		}
		out = append(out, v)
	}
	if b := c.Building; b != nil {
		v := protocol.Component{"type": "Building", "size": b.Size}
		if b.ConstructionTimeLeft != nil {
			v["constructionTimeLeft"] = *b.ConstructionTimeLeft
		}
		out = append(out, v)
	}
	if pf := c.ProductionFacility; pf != nil {
		produced := make([]map[string]any, 0, len(pf.UnitsProduced))
		for _, p := range pf.UnitsProduced {
			produced = append(produced, map[string]any{"unitType": p.UnitType, "productionTime": p.ProductionTime, "cost": p.Cost})
		}
		v := protocol.Component{"type": "ProductionFacility", "unitsProduced": produced}
		if ps := pf.ProductionState; ps != nil {
			v["productionState"] = map[string]any{"unitType": ps.UnitType, "timeLeft": ps.TimeLeft}
		}
		out = append(out, v)
	}
	if b := c.Builder; b != nil {
		opts := make([]map[string]any, 0, len(b.BuildingsProduced))
		for _, o := range b.BuildingsProduced {
			opts = append(opts, map[string]any{"buildingType": o.BuildingType, "cost": o.Cost})
		}
		v := protocol.Component{"type": "Builder", "buildingsProduced": opts}
		if b.CurrentlyBuilding != nil {
			v["currentlyBuilding"] = *b.CurrentlyBuilding
		}
		out = append(out, v)
	}
	if c.Vision != nil {
		out = append(out, protocol.Component{"type": "Vision", "range": c.Vision.Range})
	}
	if c.Resource != nil {
		out = append(out, protocol.Component{"type": "Resource", "value": c.Resource.Value})
	}
	return out
}
