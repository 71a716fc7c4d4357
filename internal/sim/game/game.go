// Package game is the authoritative match simulation: command admission, the
// per-unit command state machine, the fixed-step tick loop and win checks.
//
// A Game is not safe for concurrent use. Command and Tick must be serialised
// by the owner (see internal/sim/match).
package game

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/catalogs"
	"skirmish.ai/internal/sim/pathfind"
	"skirmish.ai/internal/sim/spatial"
	"skirmish.ai/internal/sim/steering"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

const startingHarvesters = 2

type Options struct {
	Tuning  tuning.Tuning
	Catalog *catalogs.Catalog
	Logger  logrus.FieldLogger
	// Debug attaches each unit's remaining path to its snapshot.
	Debug bool
}

type Game struct {
	matchID string
	board   board.Board
	catalog *catalogs.Catalog
	tuning  tuning.Tuning
	log     logrus.FieldLogger
	debug   bool

	state      protocol.GameState
	players    []protocol.PlayerState
	units      []*units.Unit
	byID       map[int]*units.Unit
	lastUnitID int
	tickNumber int

	// Rebuilt at the start of every Play tick.
	presence  spatial.PresenceMap
	buildings spatial.BuildingMap
}

// New creates a game in Lobby with a Base and starting harvesters at each
// player start location plus the board's neutral spawns.
func New(matchID string, b board.Board, opts Options) (*Game, error) {
	if opts.Tuning.Players == 0 {
		opts.Tuning = tuning.Defaults()
	}
	if err := opts.Tuning.Validate(); err != nil {
		return nil, err
	}
	if opts.Catalog == nil {
		c, err := catalogs.Default()
		if err != nil {
			return nil, err
		}
		opts.Catalog = c
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if len(b.Map.Tiles) != b.Map.W*b.Map.H {
		return nil, fmt.Errorf("board map is %dx%d but has %d tiles", b.Map.W, b.Map.H, len(b.Map.Tiles))
	}

	g := &Game{
		matchID: matchID,
		board:   b,
		catalog: opts.Catalog,
		tuning:  opts.Tuning,
		log:     opts.Logger.WithField("match_id", matchID),
		debug:   opts.Debug,
		state:   protocol.GameState{ID: protocol.StateLobby},
		byID:    map[int]*units.Unit{},
	}
	for i := 0; i < g.tuning.Players; i++ {
		g.players = append(g.players, protocol.PlayerState{Resources: g.tuning.StartingResources, StillInGame: true})
	}
	g.rebuildSpatial()

	for i, loc := range b.PlayerStartLocations {
		if i >= len(g.players) {
			break
		}
		owner := i + 1
		base, err := g.Spawn("Base", owner, loc)
		if err != nil {
			return nil, err
		}
		g.rebuildSpatial()
		for n := 0; n < startingHarvesters; n++ {
			pos, ok := g.freeTileAround(base, belowCentre(base))
			if !ok {
				break
			}
			if _, err := g.Spawn("Harvester", owner, pos); err != nil {
				return nil, err
			}
		}
	}
	for _, ns := range b.NeutralSpawns {
		if _, err := g.Spawn(ns.Kind, 0, ns.Position); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Game) MatchID() string            { return g.matchID }
func (g *Game) State() protocol.GameState  { return g.state }
func (g *Game) TickNumber() int            { return g.tickNumber }
func (g *Game) Board() board.Board         { return g.board }
func (g *Game) Catalog() *catalogs.Catalog { return g.catalog }
func (g *Game) Tuning() tuning.Tuning      { return g.tuning }

func (g *Game) Players() []protocol.PlayerState {
	return append([]protocol.PlayerState(nil), g.players...)
}

// Units returns the live unit list. Callers must not mutate it outside the
// goroutine that owns the game.
func (g *Game) Units() []*units.Unit { return g.units }

func (g *Game) Unit(id int) *units.Unit { return g.byID[id] }

func (g *Game) player(owner int) (*protocol.PlayerState, error) {
	if owner < 1 || owner > len(g.players) {
		return nil, fmt.Errorf("owner %d has no player slot", owner)
	}
	return &g.players[owner-1], nil
}

// Spawn creates a unit with the next id. Mobile units are registered in the
// current presence map straight away so later spawns in the same tick see them.
func (g *Game) Spawn(kind string, owner int, pos vec.Vec2) (*units.Unit, error) {
	u, err := g.catalog.Create(g.lastUnitID+1, owner, kind, pos)
	if err != nil {
		return nil, err
	}
	g.lastUnitID++
	g.units = append(g.units, u)
	g.byID[u.ID] = u
	if g.presence != nil {
		spatial.Register(g.presence, g.buildings, u, g.board.Map)
	}
	return u, nil
}

func (g *Game) rebuildSpatial() {
	g.presence, g.buildings = spatial.Build(g.units, g.board.Map)
}

func (g *Game) grid() pathfind.Grid {
	return pathfind.Grid{Map: g.board.Map, Buildings: g.buildings}
}

func (g *Game) steer() steering.Env {
	return steering.Env{Map: g.board.Map, Presence: g.presence, Params: g.tuning.Movement}
}

// Start moves Lobby to Precount.
func (g *Game) Start() error {
	if g.state.ID != protocol.StateLobby {
		return fmt.Errorf("cannot start game in state %s", g.state.ID)
	}
	g.state = protocol.GameState{ID: protocol.StatePrecount, Count: g.tuning.PrecountMs}
	g.log.WithField("count_ms", g.tuning.PrecountMs).Info("precount started")
	return nil
}

func (g *Game) Pause() error {
	if g.state.ID != protocol.StatePlay {
		return fmt.Errorf("cannot pause game in state %s", g.state.ID)
	}
	g.state = protocol.GameState{ID: protocol.StatePaused}
	return nil
}

func (g *Game) Resume() error {
	if g.state.ID != protocol.StatePaused {
		return fmt.Errorf("cannot resume game in state %s", g.state.ID)
	}
	g.state = protocol.GameState{ID: protocol.StatePlay}
	return nil
}

// Eliminate takes a player out, e.g. on surrender or disconnect. The next Play
// tick evaluates the win condition.
func (g *Game) Eliminate(owner int) error {
	p, err := g.player(owner)
	if err != nil {
		return err
	}
	p.StillInGame = false
	return nil
}

// End forcefully terminates the match and returns packets without units.
func (g *Game) End() []protocol.UpdatePacket {
	g.state = protocol.GameState{ID: protocol.StateForcefullyEnded}
	out := make([]protocol.UpdatePacket, len(g.players))
	for i, p := range g.players {
		out[i] = protocol.UpdatePacket{
			State:      g.state,
			TickNumber: g.tickNumber,
			Units:      []protocol.UnitSnapshot{},
			Player:     p,
		}
	}
	return out
}
