package game

import (
	"math"
	"sort"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/spatial"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

// maxSpawnRing bounds how far from a footprint freeTileAround looks.
const maxSpawnRing = 6

// placementOK checks a building of size centred at pos: both coordinates must
// be even integers, and every footprint tile must be in bounds, passable, and
// free of buildings and of units other than the builder.
func (g *Game) placementOK(pos vec.Vec2, size int, builder *units.Unit) error {
	if pos.X != math.Trunc(pos.X) || pos.Y != math.Trunc(pos.Y) || int(pos.X)%2 != 0 || int(pos.Y)%2 != 0 {
		return cmdErr(protocol.ErrBlocked, "building position (%.2f,%.2f) is off the 2-tile grid", pos.X, pos.Y)
	}
	r := spatial.Footprint(pos, size)
	m := g.board.Map
	for y := r.Y; y < r.Y+r.Size; y++ {
		for x := r.X; x < r.X+r.Size; x++ {
			if !m.Passable(x, y) {
				return cmdErr(protocol.ErrBlocked, "tile (%d,%d) is not buildable", x, y)
			}
			if g.buildings.Occupied(m, x, y) {
				return cmdErr(protocol.ErrBlocked, "tile (%d,%d) has a building", x, y)
			}
			for _, o := range g.presence[m.Index(x, y)] {
				if o != builder {
					return cmdErr(protocol.ErrBlocked, "tile (%d,%d) is occupied by unit %d", x, y, o.ID)
				}
			}
		}
	}
	return nil
}

func (g *Game) tileFree(x, y int) bool {
	m := g.board.Map
	if !m.Passable(x, y) || g.buildings.Occupied(m, x, y) {
		return false
	}
	return len(g.presence[m.Index(x, y)]) == 0
}

// belowCentre is the point just under a unit's footprint, where produced units
// prefer to appear.
func belowCentre(u *units.Unit) vec.Vec2 {
	r, ok := spatial.UnitFootprint(u)
	if !ok {
		return vec.Vec2{X: u.Position.X, Y: u.Position.Y + 1}
	}
	return vec.Vec2{X: u.Position.X, Y: float64(r.Y+r.Size) + 0.5}
}

// freeTileAround returns the centre of the free tile nearest to prefer on the
// closest ring around u's footprint. Ties go to the row with the larger y
// (further down the map), then the left-most column.
func (g *Game) freeTileAround(u *units.Unit, prefer vec.Vec2) (vec.Vec2, bool) {
	r, ok := spatial.UnitFootprint(u)
	if !ok {
		x, y := vec.Floor(u.Position)
		r = spatial.Rect{X: x, Y: y, Size: 1}
	}
	for ring := 1; ring <= maxSpawnRing; ring++ {
		x0, y0 := r.X-ring, r.Y-ring
		x1, y1 := r.X+r.Size-1+ring, r.Y+r.Size-1+ring
		var cands []vec.Vec2
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				if x != x0 && x != x1 && y != y0 && y != y1 {
					continue
				}
				if g.tileFree(x, y) {
					cands = append(cands, vec.Vec2{X: float64(x) + 0.5, Y: float64(y) + 0.5})
				}
			}
		}
		if len(cands) == 0 {
			continue
		}
		sort.SliceStable(cands, func(i, j int) bool {
			di, dj := vec.Distance(cands[i], prefer), vec.Distance(cands[j], prefer)
			if di != dj {
				return di < dj
			}
			if cands[i].Y != cands[j].Y {
				return cands[i].Y > cands[j].Y
			}
			return cands[i].X < cands[j].X
		})
		return cands[0], true
	}
	return vec.Vec2{}, false
}
