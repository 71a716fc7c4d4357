package game

import (
	"sort"

	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

// Command applies a player's packet to the named units and returns how many
// accepted it. owner is the 1-based player id. Units that are missing, owned
// by someone else or lack the needed component are skipped and logged.
func (g *Game) Command(pkt protocol.CommandPacket, owner int) int {
	if g.state.Ended() {
		return 0
	}
	cmd := pkt.Command
	log := g.log.WithFields(logrus.Fields{"player": owner, "command": cmd.Kind})

	if cmd.Kind == protocol.CmdMove || cmd.Kind == protocol.CmdAttackMove {
		if !g.board.Map.PassableAt(cmd.Target) {
			log.WithField("target", cmd.Target).Info("rejected command: impassable target")
			return 0
		}
	}

	seen := map[int]struct{}{}
	var accepted []*units.Unit
	for _, id := range pkt.UnitIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		u := g.byID[id]
		switch {
		case u == nil:
			log.WithField("unit_id", id).Info("rejected command: no such unit")
		case u.Owner != owner:
			log.WithFields(logrus.Fields{"unit_id": id, "unit_owner": u.Owner}).Info("rejected command: not owner")
		case !u.Accepts(cmd.Kind):
			log.WithFields(logrus.Fields{"unit_id": id, "kind": u.Kind}).Info("rejected command: unsupported by unit")
		default:
			accepted = append(accepted, u)
		}
	}

	if (cmd.Kind == protocol.CmdMove || cmd.Kind == protocol.CmdAttackMove) && len(accepted) > 1 {
		targets := g.spread(accepted, cmd.Target)
		for _, u := range accepted {
			c := cmd
			c.Target = targets[u.ID]
			u.Enqueue(c, pkt.Shift)
		}
		return len(accepted)
	}
	for _, u := range accepted {
		u.Enqueue(cmd, pkt.Shift)
	}
	return len(accepted)
}

const (
	formationScale = 1.5
	formationSlots = 81
)

// spiralOffsets walks a square spiral outward from the origin: (0,0), (1,0),
// (1,1), (0,1), (-1,1), ...
var spiralOffsets = func() []vec.Vec2 {
	out := make([]vec.Vec2, 0, formationSlots)
	x, y := 0, 0
	dx, dy := 1, 0
	segLen, segDone, turns := 1, 0, 0
	for len(out) < formationSlots {
		out = append(out, vec.Vec2{X: float64(x), Y: float64(y)})
		x, y = x+dx, y+dy
		segDone++
		if segDone == segLen {
			segDone = 0
			dx, dy = -dy, dx
			turns++
			if turns%2 == 0 {
				segLen++
			}
		}
	}
	return out
}()

// spread assigns each unit its own slot around target. Units nearest the
// target take the inner slots; slots on impassable ground fall back to the
// target itself.
func (g *Game) spread(us []*units.Unit, target vec.Vec2) map[int]vec.Vec2 {
	order := append([]*units.Unit(nil), us...)
	sort.SliceStable(order, func(i, j int) bool {
		di, dj := vec.Distance(order[i].Position, target), vec.Distance(order[j].Position, target)
		if di != dj {
			return di < dj
		}
		return order[i].ID < order[j].ID
	})
	out := make(map[int]vec.Vec2, len(order))
	for i, u := range order {
		pos := target
		if i < len(spiralOffsets) {
			cand := vec.Sum(target, vec.Mul(spiralOffsets[i], formationScale))
			if g.board.Map.PassableAt(cand) {
				pos = cand
			}
		}
		out[u.ID] = pos
	}
	return out
}
