// Package spatial builds the per-tick occupancy maps used by pathing, steering
// and placement. Maps are rebuilt from scratch every tick.
package spatial

import (
	"math"

	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

// PresenceMap lists the units overlapping each tile, keyed by exploded index.
type PresenceMap map[int][]*units.Unit

// BuildingMap records a building id for every tile under a building footprint.
type BuildingMap map[int]int

// Rect is a tile-aligned footprint: tiles X..X+Size-1, Y..Y+Size-1.
type Rect struct {
	X, Y, Size int
}

func (r Rect) Contains(x, y int) bool {
	return x >= r.X && y >= r.Y && x < r.X+r.Size && y < r.Y+r.Size
}

// Footprint returns the tiles a building of the given size covers when its
// centre is at pos.
func Footprint(pos vec.Vec2, size int) Rect {
	half := float64(size) / 2
	return Rect{X: int(math.Floor(pos.X - half)), Y: int(math.Floor(pos.Y - half)), Size: size}
}

func UnitFootprint(u *units.Unit) (Rect, bool) {
	if u.Building == nil {
		return Rect{}, false
	}
	return Footprint(u.Position, u.Building.Size), true
}

func Build(us []*units.Unit, m board.GameMap) (PresenceMap, BuildingMap) {
	presence := PresenceMap{}
	buildings := BuildingMap{}
	for _, u := range us {
		Register(presence, buildings, u, m)
	}
	return presence, buildings
}

// Register adds one unit to both maps. Buildings cover every tile of their
// footprint; other units cover the single tile under them.
func Register(presence PresenceMap, buildings BuildingMap, u *units.Unit, m board.GameMap) {
	if r, ok := UnitFootprint(u); ok {
		for y := r.Y; y < r.Y+r.Size; y++ {
			for x := r.X; x < r.X+r.Size; x++ {
				if !m.InBounds(x, y) {
					continue
				}
				i := m.Index(x, y)
				presence[i] = append(presence[i], u)
				buildings[i] = u.ID
			}
		}
		return
	}
	x, y := vec.Floor(u.Position)
	if !m.InBounds(x, y) {
		return
	}
	i := m.Index(x, y)
	presence[i] = append(presence[i], u)
}

// Occupied reports whether a building covers tile (x,y).
func (b BuildingMap) Occupied(m board.GameMap, x, y int) bool {
	if !m.InBounds(x, y) {
		return false
	}
	_, ok := b[m.Index(x, y)]
	return ok
}

// Near returns the units in the tile window of the given radius around p,
// excluding self. Order follows the window scan, row by row.
func (p PresenceMap) Near(m board.GameMap, at vec.Vec2, radius int, self *units.Unit) []*units.Unit {
	cx, cy := vec.Floor(at)
	var out []*units.Unit
	seen := map[int]struct{}{}
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if !m.InBounds(x, y) {
				continue
			}
			for _, u := range p[m.Index(x, y)] {
				if u == self {
					continue
				}
				if _, dup := seen[u.ID]; dup {
					continue
				}
				seen[u.ID] = struct{}{}
				out = append(out, u)
			}
		}
	}
	return out
}

// DistanceTo measures from a point to a unit; for buildings the distance is
// to the nearest point of the footprint (zero inside it).
func DistanceTo(from vec.Vec2, target *units.Unit) float64 {
	r, ok := UnitFootprint(target)
	if !ok {
		return vec.Distance(from, target.Position)
	}
	return RectDistance(from, r)
}

func RectDistance(p vec.Vec2, r Rect) float64 {
	x0, y0 := float64(r.X), float64(r.Y)
	x1, y1 := x0+float64(r.Size), y0+float64(r.Size)
	dx := math.Max(0, math.Max(x0-p.X, p.X-x1))
	dy := math.Max(0, math.Max(y0-p.Y, p.Y-y1))
	return math.Hypot(dx, dy)
}
