// Package pathfind runs A* over the tile-corner lattice. A node (cx,cy) is the
// shared corner of tiles (cx-1..cx, cy-1..cy); it is walkable when all four of
// those tiles are passable terrain with no building on them.
package pathfind

import (
	"container/heap"
	"math"

	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/spatial"
	"skirmish.ai/internal/sim/vec"
)

type Grid struct {
	Map       board.GameMap
	Buildings spatial.BuildingMap
}

// Clear reports whether corner (cx,cy) can be walked through.
func (g Grid) Clear(cx, cy int) bool {
	for y := cy - 1; y <= cy; y++ {
		for x := cx - 1; x <= cx; x++ {
			if !g.Map.Passable(x, y) || g.Buildings.Occupied(g.Map, x, y) {
				return false
			}
		}
	}
	return true
}

func (g Grid) key(cx, cy int) int { return cy*(g.Map.W+1) + cx }

func (g Grid) inLattice(cx, cy int) bool {
	return cx >= 0 && cy >= 0 && cx <= g.Map.W && cy <= g.Map.H
}

// CloseEnough decides when the search may stop at corner (cx,cy).
type CloseEnough func(cx, cy int) bool

// Within accepts any corner no farther than r from p.
func Within(p vec.Vec2, r float64) CloseEnough {
	return func(cx, cy int) bool {
		return vec.Distance(vec.Vec2{X: float64(cx), Y: float64(cy)}, p) <= r
	}
}

// NearRect accepts corners within r of a building footprint.
func NearRect(rect spatial.Rect, r float64) CloseEnough {
	return func(cx, cy int) bool {
		return spatial.RectDistance(vec.Vec2{X: float64(cx), Y: float64(cy)}, rect) <= r
	}
}

type pathNode struct {
	cx, cy int
	g, h   float64
	seq    int
	parent *pathNode
	index  int // heap index
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	if ol[i].h != ol[j].h {
		return ol[i].h < ol[j].h
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int)       { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x interface{}) { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() interface{} {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

var dirs = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

func octile(ax, ay, bx, by int) float64 {
	dx := math.Abs(float64(ax - bx))
	dy := math.Abs(float64(ay - by))
	return dx + dy + (math.Sqrt2-2)*math.Min(dx, dy)
}

// FindPath searches from the corner under start toward the corner under
// target, stopping at the first expanded corner that satisfies done. The start
// corner is exempt from the clearance check. The returned waypoints skip the
// start corner and end exactly at target. ok is false when no corner
// satisfying done is reachable.
func FindPath(g Grid, start, target vec.Vec2, done CloseEnough) ([]vec.Vec2, bool) {
	scx, scy := vec.Floor(start)
	gcx, gcy := vec.Floor(target)
	if !g.inLattice(scx, scy) {
		return nil, false
	}

	seq := 0
	startNode := &pathNode{cx: scx, cy: scy, h: octile(scx, scy, gcx, gcy)}
	ol := &openList{startNode}
	heap.Init(ol)

	closed := make(map[int]bool)
	best := make(map[int]*pathNode)
	best[g.key(scx, scy)] = startNode

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		k := g.key(cur.cx, cur.cy)
		if closed[k] {
			continue
		}
		if done(cur.cx, cur.cy) {
			return buildPath(cur, target), true
		}
		closed[k] = true

		for _, d := range dirs {
			nx, ny := cur.cx+d[0], cur.cy+d[1]
			if !g.inLattice(nx, ny) || !g.Clear(nx, ny) {
				continue
			}
			nk := g.key(nx, ny)
			if closed[nk] {
				continue
			}
			cost := 1.0
			if d[0] != 0 && d[1] != 0 {
				cost = math.Sqrt2
			}
			ng := cur.g + cost
			if prev, ok := best[nk]; ok && ng >= prev.g {
				continue
			}
			seq++
			node := &pathNode{cx: nx, cy: ny, g: ng, h: octile(nx, ny, gcx, gcy), seq: seq, parent: cur}
			best[nk] = node
			heap.Push(ol, node)
		}
	}
	return nil, false
}

func buildPath(end *pathNode, target vec.Vec2) []vec.Vec2 {
	var cells [][2]int
	for n := end; n != nil; n = n.parent {
		cells = append(cells, [2]int{n.cx, n.cy})
	}
	// Reverse
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	cells = collapse(cells)

	// The unit already stands at the start corner and the last corner is
	// replaced by the exact target.
	if len(cells) > 0 {
		cells = cells[1:]
	}
	if len(cells) > 0 {
		cells = cells[:len(cells)-1]
	}
	path := make([]vec.Vec2, 0, len(cells)+1)
	for _, c := range cells {
		path = append(path, vec.Vec2{X: float64(c[0]), Y: float64(c[1])})
	}
	return append(path, target)
}

// collapse drops interior waypoints that continue the previous step direction.
func collapse(cells [][2]int) [][2]int {
	if len(cells) < 3 {
		return cells
	}
	out := [][2]int{cells[0]}
	for i := 1; i < len(cells)-1; i++ {
		prev, cur, next := cells[i-1], cells[i], cells[i+1]
		if cur[0]-prev[0] == next[0]-cur[0] && cur[1]-prev[1] == next[1]-cur[1] {
			continue
		}
		out = append(out, cur)
	}
	return append(out, cells[len(cells)-1])
}
