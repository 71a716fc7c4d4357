package game

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

// Tick advances the game by dtMs milliseconds and returns one packet per
// player in player order. A non-nil error means game state is corrupt; the
// caller should end the match.
func (g *Game) Tick(dtMs float64) ([]protocol.UpdatePacket, error) {
	switch g.state.ID {
	case protocol.StatePrecount:
		g.state.Count -= dtMs
		if g.state.Count <= 1000 {
			g.state = protocol.GameState{ID: protocol.StatePlay}
			g.log.Info("game started")
		}
	case protocol.StatePlay:
		if winners, over := g.checkWin(); over {
			g.state = protocol.GameState{ID: protocol.StateGameEnded, WinnerIndices: winners}
			g.log.WithField("winners", winners).Info("game ended")
			break
		}
		g.tickNumber++
		if err := g.updateUnits(dtMs); err != nil {
			return nil, err
		}
	}
	return g.packets(), nil
}

// checkWin marks eliminated players and reports whether at most one remains.
func (g *Game) checkWin() ([]int, bool) {
	if g.tuning.WinCondition == tuning.WinBuildingElimination {
		hasBuilding := make([]bool, len(g.players))
		for _, u := range g.units {
			if u.Building != nil && u.Owner >= 1 && u.Owner <= len(g.players) {
				hasBuilding[u.Owner-1] = true
			}
		}
		for i := range g.players {
			if !hasBuilding[i] {
				g.players[i].StillInGame = false
			}
		}
	}
	winners := []int{}
	for i, p := range g.players {
		if p.StillInGame {
			winners = append(winners, i)
		}
	}
	return winners, len(winners) <= 1
}

func (g *Game) updateUnits(dtMs float64) error {
	g.rebuildSpatial()

	// Units spawned during this pass start acting next tick.
	n := len(g.units)
	for i := 0; i < n; i++ {
		u := g.units[i]
		if !u.Alive() {
			continue
		}
		if err := g.updateUnit(u, dtMs); err != nil {
			return fmt.Errorf("unit %d (%s): %w", u.ID, u.Kind, err)
		}
	}

	// Integrate only after every velocity is known.
	for _, u := range g.units {
		vec.Add(&u.Position, u.Velocity)
	}

	alive := g.units[:0]
	for _, u := range g.units {
		if u.Alive() {
			alive = append(alive, u)
			continue
		}
		delete(g.byID, u.ID)
		g.log.WithFields(logrus.Fields{"unit_id": u.ID, "kind": u.Kind, "owner": u.Owner}).Debug("unit destroyed")
	}
	for i := len(alive); i < len(g.units); i++ {
		g.units[i] = nil
	}
	g.units = alive
	return nil
}

func (g *Game) updateUnit(u *units.Unit, dtMs float64) error {
	u.Velocity = vec.Vec2{}
	u.State.ActionTime += dtMs
	if a := u.Attacker; a != nil {
		a.Cooldown -= dtMs
		if a.Cooldown < 0 {
			a.Cooldown = 0
		}
	}
	if b := u.Building; b != nil && b.ConstructionTimeLeft != nil {
		*b.ConstructionTimeLeft -= dtMs
		if *b.ConstructionTimeLeft <= 0 {
			b.ConstructionTimeLeft = nil
		}
	}

	if u.IsIdle() {
		return g.idle(u, dtMs)
	}

	cmd := u.State.Current
	done, err := g.execute(u, cmd, dtMs)
	var ce *CommandError
	if errors.As(err, &ce) {
		g.log.WithFields(logrus.Fields{
			"unit_id": u.ID,
			"owner":   u.Owner,
			"command": cmd.Kind,
			"code":    ce.Code,
		}).Debug(ce.Msg)
		u.Advance()
		return nil
	}
	if err != nil {
		return err
	}
	if done {
		u.Advance()
	}
	return nil
}

func (g *Game) execute(u *units.Unit, cmd protocol.Command, dtMs float64) (bool, error) {
	switch cmd.Kind {
	case protocol.CmdMove:
		return g.runMove(u, cmd, dtMs)
	case protocol.CmdAttackMove:
		return g.runAttackMove(u, cmd, dtMs)
	case protocol.CmdAttack:
		return g.runAttack(u, cmd, dtMs)
	case protocol.CmdStop:
		return g.runStop(u)
	case protocol.CmdFollow:
		return g.runFollow(u, cmd, dtMs)
	case protocol.CmdHarvest:
		return g.runHarvest(u, cmd, dtMs)
	case protocol.CmdProduce:
		return g.runProduce(u, cmd, dtMs)
	case protocol.CmdBuild:
		return g.runBuild(u, cmd, dtMs)
	}
	return false, fmt.Errorf("unknown command kind %q", cmd.Kind)
}
