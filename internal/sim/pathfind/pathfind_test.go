package pathfind

import (
	"testing"

	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/spatial"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

func openGrid(w, h int) Grid {
	return Grid{Map: board.NewMap(w, h), Buildings: spatial.BuildingMap{}}
}

func TestFindPath_EndsAtExactTarget(t *testing.T) {
	g := openGrid(20, 20)
	for _, tc := range []struct{ start, target vec.Vec2 }{
		{vec.Vec2{X: 5.5, Y: 5.5}, vec.Vec2{X: 15.3, Y: 15.7}},
		{vec.Vec2{X: 1.2, Y: 18.9}, vec.Vec2{X: 18.1, Y: 1.4}},
		{vec.Vec2{X: 10, Y: 10}, vec.Vec2{X: 10.2, Y: 10.1}},
	} {
		path, ok := FindPath(g, tc.start, tc.target, Within(tc.target, 1.5))
		if !ok || len(path) == 0 {
			t.Fatalf("no path %v -> %v", tc.start, tc.target)
		}
		if last := path[len(path)-1]; last != tc.target {
			t.Fatalf("last waypoint %v want exact %v", last, tc.target)
		}
	}
}

func TestFindPath_CollapsesStraightRuns(t *testing.T) {
	g := openGrid(20, 20)
	target := vec.Vec2{X: 12.5, Y: 2.5}
	path, ok := FindPath(g, vec.Vec2{X: 2.5, Y: 2.5}, target, Within(target, 1))
	if !ok {
		t.Fatalf("expected path")
	}
	if len(path) != 1 || path[0] != target {
		t.Fatalf("straight corridor should collapse to the target only, got %v", path)
	}
}

func TestFindPath_RoutesAroundWall(t *testing.T) {
	g := openGrid(20, 20)
	for y := 0; y < 16; y++ {
		g.Map.Tiles[g.Map.Index(10, y)] = board.TileWall
	}
	target := vec.Vec2{X: 15.5, Y: 5.5}
	path, ok := FindPath(g, vec.Vec2{X: 5.5, Y: 5.5}, target, Within(target, 1.5))
	if !ok {
		t.Fatalf("expected path around the wall")
	}
	for _, p := range path[:len(path)-1] {
		cx, cy := vec.Floor(p)
		if !g.Clear(cx, cy) {
			t.Fatalf("waypoint %v is not a clear corner", p)
		}
	}
	reachedBelow := false
	for _, p := range path {
		if p.Y >= 16 {
			reachedBelow = true
		}
	}
	if !reachedBelow {
		t.Fatalf("path should pass through the gap below the wall: %v", path)
	}
}

func TestFindPath_Unreachable(t *testing.T) {
	g := openGrid(20, 20)
	for i := 0; i < 20; i++ {
		g.Map.Tiles[g.Map.Index(10, i)] = board.TileWater
	}
	target := vec.Vec2{X: 15.5, Y: 5.5}
	if path, ok := FindPath(g, vec.Vec2{X: 5.5, Y: 5.5}, target, Within(target, 1.5)); ok || path != nil {
		t.Fatalf("expected no path, got %v", path)
	}
}

func TestFindPath_BuildingsBlock(t *testing.T) {
	m := board.NewMap(12, 12)
	hall := &units.Unit{ID: 9, Position: vec.Vec2{X: 6, Y: 6}, Components: units.Components{Building: &units.Building{Size: 6}}}
	_, buildings := spatial.Build([]*units.Unit{hall}, m)
	g := Grid{Map: m, Buildings: buildings}

	if g.Clear(5, 5) {
		t.Fatalf("corner inside a building footprint must be blocked")
	}
	target := vec.Vec2{X: 6, Y: 11}
	path, ok := FindPath(g, vec.Vec2{X: 6, Y: 1}, target, Within(target, 1.5))
	if !ok {
		t.Fatalf("expected path around building")
	}
	rect, _ := spatial.UnitFootprint(hall)
	for _, p := range path[:len(path)-1] {
		if spatial.RectDistance(p, rect) < 1 {
			t.Fatalf("waypoint %v hugs or enters the footprint", p)
		}
	}

	if _, ok := FindPath(g, vec.Vec2{X: 6, Y: 1}, hall.Position, NearRect(rect, 1.5)); !ok {
		t.Fatalf("expected to reach the building perimeter")
	}
}
