package game

import (
	"testing"

	"skirmish.ai/internal/logging"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

const dt = 50

// newPlayingGame returns an empty w×h game already in Play with no resources.
func newPlayingGame(t *testing.T, w, h int, win string) *Game {
	t.Helper()
	tu := tuning.Defaults()
	tu.WinCondition = win
	tu.StartingResources = 0
	g, err := New("test", board.Board{Map: board.NewMap(w, h)}, Options{Tuning: tu, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.state = protocol.GameState{ID: protocol.StatePlay}
	return g
}

func spawn(t *testing.T, g *Game, kind string, owner int, x, y float64) *units.Unit {
	t.Helper()
	u, err := g.Spawn(kind, owner, vec.Vec2{X: x, Y: y})
	if err != nil {
		t.Fatalf("Spawn %s: %v", kind, err)
	}
	return u
}

func tick(t *testing.T, g *Game, n int) []protocol.UpdatePacket {
	t.Helper()
	var last []protocol.UpdatePacket
	for i := 0; i < n; i++ {
		p, err := g.Tick(dt)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		last = p
	}
	return last
}

func command(g *Game, owner int, cmd protocol.Command, ids ...int) int {
	return g.Command(protocol.CommandPacket{Command: cmd, UnitIDs: ids}, owner)
}

func setWall(g *Game, x, y int) {
	g.board.Map.Tiles[g.board.Map.Index(x, y)] = board.TileWall
}
