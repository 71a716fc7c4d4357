package main

import (
	"sort"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/vec"
)

const (
	harvesterCost = 50
	maxHarvesters = 6
)

// plan picks this tick's orders: idle harvesters go to the nearest resource
// node, idle bases queue harvesters while affordable, and idle combat units
// attack-move on the closest enemy.
func plan(player int, pkt protocol.UpdatePacket) []protocol.CommandPacket {
	if player == 0 || pkt.State.ID != protocol.StatePlay {
		return nil
	}

	var (
		own        []protocol.UnitSnapshot
		nodes      []protocol.UnitSnapshot
		enemies    []protocol.UnitSnapshot
		harvesters int
	)
	for _, u := range pkt.Units {
		switch {
		case u.Owner == player:
			own = append(own, u)
			if u.Kind == "Harvester" {
				harvesters++
			}
		case u.Kind == "ResourceNode":
			nodes = append(nodes, u)
		case u.Owner != 0:
			enemies = append(enemies, u)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].ID < own[j].ID })

	var out []protocol.CommandPacket
	resources := pkt.Player.Resources
	for _, u := range own {
		if u.State.State != "Idle" {
			continue
		}
		switch u.Kind {
		case "Harvester":
			if n, ok := nearest(u.Position, nodes); ok {
				out = append(out, protocol.CommandPacket{
					Command: protocol.TargetUnit(protocol.CmdHarvest, n.ID),
					UnitIDs: []int{u.ID},
				})
			}
		case "Base":
			if harvesters < maxHarvesters && resources >= harvesterCost {
				resources -= harvesterCost
				harvesters++
				out = append(out, protocol.CommandPacket{
					Command: protocol.Command{Kind: protocol.CmdProduce, UnitToProduce: "Harvester"},
					UnitIDs: []int{u.ID},
				})
			}
		case "Trooper":
			if e, ok := nearest(u.Position, enemies); ok {
				out = append(out, protocol.CommandPacket{
					Command: protocol.MoveTo(protocol.CmdAttackMove, e.Position),
					UnitIDs: []int{u.ID},
				})
			}
		}
	}
	return out
}

func nearest(p vec.Vec2, units []protocol.UnitSnapshot) (protocol.UnitSnapshot, bool) {
	var (
		best  protocol.UnitSnapshot
		bestD = -1.0
	)
	for _, u := range units {
		d := vec.Distance(p, u.Position)
		if bestD < 0 || d < bestD {
			best, bestD = u, d
		}
	}
	return best, bestD >= 0
}
