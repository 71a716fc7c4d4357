package board

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"skirmish.ai/internal/sim/vec"
)

type Tile int

const (
	TilePassable Tile = 0
	TileWall     Tile = 1
	TileWater    Tile = 2
)

// GameMap is an immutable w×h tile grid indexed by y*w+x.
type GameMap struct {
	W     int    `json:"w"`
	H     int    `json:"h"`
	Tiles []Tile `json:"tiles"`
}

func NewMap(w, h int) GameMap {
	return GameMap{W: w, H: h, Tiles: make([]Tile, w*h)}
}

// Index returns the exploded index of tile (x,y). Callers check InBounds first.
func (m GameMap) Index(x, y int) int { return y*m.W + x }

func (m GameMap) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.W && y < m.H
}

// At returns the tile type; out-of-bounds tiles read as walls.
func (m GameMap) At(x, y int) Tile {
	if !m.InBounds(x, y) {
		return TileWall
	}
	return m.Tiles[m.Index(x, y)]
}

func (m GameMap) Passable(x, y int) bool {
	return m.At(x, y) == TilePassable
}

// PassableAt reports whether the tile under a continuous position is passable.
func (m GameMap) PassableAt(p vec.Vec2) bool {
	x, y := vec.Floor(p)
	return m.Passable(x, y)
}

type NeutralSpawn struct {
	Position vec.Vec2 `json:"position"`
	Kind     string   `json:"kind"`
}

// Board is the immutable match setup: terrain plus where everything starts.
type Board struct {
	Map                  GameMap        `json:"map"`
	PlayerStartLocations []vec.Vec2     `json:"playerStartLocations"`
	NeutralSpawns        []NeutralSpawn `json:"neutralSpawns"`
}

// ParseTiles builds a map from ASCII rows: '.' passable, '#' wall, '~' water.
func ParseTiles(rows []string) (GameMap, error) {
	if len(rows) == 0 {
		return GameMap{}, fmt.Errorf("empty tile rows")
	}
	w := len(rows[0])
	m := NewMap(w, len(rows))
	for y, row := range rows {
		if len(row) != w {
			return GameMap{}, fmt.Errorf("row %d: width %d, want %d", y, len(row), w)
		}
		for x, c := range row {
			switch c {
			case '.':
				m.Tiles[m.Index(x, y)] = TilePassable
			case '#':
				m.Tiles[m.Index(x, y)] = TileWall
			case '~':
				m.Tiles[m.Index(x, y)] = TileWater
			default:
				return GameMap{}, fmt.Errorf("row %d col %d: unknown tile %q", y, x, c)
			}
		}
	}
	return m, nil
}

type fileSpec struct {
	Tiles          []string     `yaml:"tiles"`
	StartLocations [][2]float64 `yaml:"start_locations"`
	NeutralSpawns  []struct {
		Kind string  `yaml:"kind"`
		X    float64 `yaml:"x"`
		Y    float64 `yaml:"y"`
	} `yaml:"neutral_spawns"`
}

// Load reads a YAML board file.
func Load(path string) (Board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Board{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Board, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return Board{}, fmt.Errorf("board: %w", err)
	}
	rows := make([]string, 0, len(spec.Tiles))
	for _, r := range spec.Tiles {
		rows = append(rows, strings.TrimSpace(r))
	}
	m, err := ParseTiles(rows)
	if err != nil {
		return Board{}, fmt.Errorf("board: %w", err)
	}
	b := Board{Map: m}
	for _, p := range spec.StartLocations {
		b.PlayerStartLocations = append(b.PlayerStartLocations, vec.Vec2{X: p[0], Y: p[1]})
	}
	for _, n := range spec.NeutralSpawns {
		if n.Kind == "" {
			return Board{}, fmt.Errorf("board: neutral spawn without kind")
		}
		b.NeutralSpawns = append(b.NeutralSpawns, NeutralSpawn{Position: vec.Vec2{X: n.X, Y: n.Y}, Kind: n.Kind})
	}
	return b, nil
}
