// Package match runs one game on its own goroutine. Commands, joins, leaves
// and control requests arrive on channels and are applied between ticks, so
// the game itself never sees concurrent access.
package match

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/catalogs"
	"skirmish.ai/internal/sim/game"
	"skirmish.ai/internal/sim/tuning"
)

type Config struct {
	ID        string
	BoardName string
	Board     board.Board
	Tuning    tuning.Tuning
	Catalog   *catalogs.Catalog
	Logger    logrus.FieldLogger
	// AutoStart begins the precount once every player slot is taken.
	AutoStart bool
	Debug     bool
}

type client struct {
	player   int
	encoding string
	out      chan []byte
}

type leaveReq struct {
	player int
	out    chan []byte
}

type Match struct {
	cfg       Config
	game      *game.Game
	log       logrus.FieldLogger
	createdAt time.Time

	inbox   chan CommandEnvelope
	join    chan JoinRequest
	leave   chan leaveReq
	control chan controlReq
	stop    chan struct{}
	done    chan struct{}

	stopOnce sync.Once

	// Owned by the Run goroutine.
	clients map[int]*client
	names   map[int]string
	pending []RecordedCommand

	tickLogger TickLogger
	recorder   Recorder
	snapSink   chan<- EndSnapshot

	status atomic.Pointer[Status]
}

func New(cfg Config) (*Match, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	g, err := game.New(cfg.ID, cfg.Board, game.Options{
		Tuning:  cfg.Tuning,
		Catalog: cfg.Catalog,
		Logger:  cfg.Logger,
		Debug:   cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", cfg.ID, err)
	}
	m := &Match{
		cfg:       cfg,
		game:      g,
		log:       cfg.Logger.WithField("match_id", cfg.ID),
		createdAt: time.Now().UTC(),
		inbox:     make(chan CommandEnvelope, 1024),
		join:      make(chan JoinRequest, 16),
		leave:     make(chan leaveReq, 16),
		control:   make(chan controlReq, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		clients:   map[int]*client{},
		names:     map[int]string{},
	}
	m.publish()
	return m, nil
}

// SetTickLogger and SetRecorder must be called before Run.
func (m *Match) SetTickLogger(l TickLogger) { m.tickLogger = l }
func (m *Match) SetRecorder(r Recorder)     { m.recorder = r }

// SetSnapshotSink receives the final state of the match once it ends. Sends
// never block; a full sink drops the snapshot.
func (m *Match) SetSnapshotSink(ch chan<- EndSnapshot) { m.snapSink = ch }

func (m *Match) ID() string            { return m.cfg.ID }
func (m *Match) Done() <-chan struct{} { return m.done }
func (m *Match) Status() Status        { return *m.status.Load() }

func (m *Match) TickInterval() time.Duration {
	return time.Duration(m.game.Tuning().TickIntervalMs) * time.Millisecond
}

// Stop forcefully ends the match. Safe to call more than once.
func (m *Match) Stop() { m.stopOnce.Do(func() { close(m.stop) }) }

// Run drives the match until it ends, Stop is called or ctx is cancelled. A
// non-nil error other than ctx.Err() means the simulation hit a corrupt state.
func (m *Match) Run(ctx context.Context) error {
	defer close(m.done)
	if m.recorder != nil {
		m.recorder.RecordMatch(MatchRecord{
			ID:        m.cfg.ID,
			Board:     m.cfg.BoardName,
			Players:   m.game.Tuning().Players,
			CreatedAt: m.createdAt,
		})
	}

	ticker := time.NewTicker(m.TickInterval())
	defer ticker.Stop()
	dtMs := float64(m.game.Tuning().TickIntervalMs)

	for {
		select {
		case <-ctx.Done():
			m.forceEnd("context cancelled")
			return ctx.Err()
		case <-m.stop:
			m.forceEnd("stopped")
			return nil
		case req := <-m.join:
			req.Resp <- m.handleJoin(req)
		case req := <-m.leave:
			m.handleLeave(req)
		case req := <-m.control:
			req.resp <- m.handleControl(req)
		case env := <-m.inbox:
			m.handleCommand(env)
		case <-ticker.C:
			if err := m.step(dtMs); err != nil {
				return err
			}
			if m.game.State().Ended() {
				return nil
			}
		}
	}
}

func (m *Match) step(dtMs float64) error {
	pkts, err := m.game.Tick(dtMs)
	if err != nil {
		m.log.WithError(err).Error("tick failed, ending match")
		m.emit(m.game.End())
		return err
	}
	m.emit(pkts)
	return nil
}

func (m *Match) forceEnd(reason string) {
	if m.game.State().Ended() {
		return
	}
	m.log.WithField("reason", reason).Info("match forcefully ended")
	m.emit(m.game.End())
}

func (m *Match) emit(pkts []protocol.UpdatePacket) {
	m.broadcast(pkts)
	m.journal()
	if st := m.game.State(); st.Ended() {
		endedAt := time.Now().UTC()
		if m.recorder != nil {
			m.recorder.RecordResult(ResultRecord{
				ID:      m.cfg.ID,
				State:   st.ID,
				Winners: st.WinnerIndices,
				Tick:    m.game.TickNumber(),
				EndedAt: endedAt,
			})
		}
		m.sendSnapshot(endedAt)
	}
	m.publish()
}

func (m *Match) sendSnapshot(endedAt time.Time) {
	if m.snapSink == nil {
		return
	}
	snap := EndSnapshot{
		MatchID: m.cfg.ID,
		Board:   m.cfg.BoardName,
		Tick:    m.game.TickNumber(),
		State:   m.game.State(),
		Players: m.game.Players(),
		Units:   m.game.UnitSnapshots(),
		EndedAt: endedAt,
	}
	select {
	case m.snapSink <- snap:
	default:
		m.log.Warn("snapshot sink full, dropping end snapshot")
	}
}

func (m *Match) broadcast(pkts []protocol.UpdatePacket) {
	for p, c := range m.clients {
		if p < 1 || p > len(pkts) {
			continue
		}
		b, err := protocol.Marshal(c.encoding, protocol.UpdateMsg{
			Type:            protocol.TypeUpdate,
			ProtocolVersion: protocol.Version,
			MatchID:         m.cfg.ID,
			UpdatePacket:    pkts[p-1],
		})
		if err != nil {
			m.log.WithError(err).WithField("player", p).Error("encode update")
			continue
		}
		sendLatest(c.out, b)
	}
}

func (m *Match) journal() {
	cmds := m.pending
	m.pending = nil
	if m.tickLogger == nil {
		return
	}
	entry := TickLogEntry{
		MatchID:  m.cfg.ID,
		Tick:     m.game.TickNumber(),
		State:    m.game.State(),
		Units:    len(m.game.Units()),
		Players:  m.game.Players(),
		Commands: cmds,
	}
	if err := m.tickLogger.WriteTick(entry); err != nil {
		m.log.WithError(err).Warn("journal write failed")
	}
}

func (m *Match) handleJoin(req JoinRequest) JoinResponse {
	switch {
	case m.game.State().Ended():
		return JoinResponse{Code: protocol.ErrMatchEnded, Message: "match has ended"}
	case !protocol.ValidEncoding(req.Encoding):
		return JoinResponse{Code: protocol.ErrProtoBadRequest, Message: fmt.Sprintf("unknown encoding %q", req.Encoding)}
	}
	slot := 0
	for p := 1; p <= m.game.Tuning().Players; p++ {
		if _, taken := m.names[p]; !taken {
			slot = p
			break
		}
	}
	if slot == 0 {
		return JoinResponse{Code: protocol.ErrMatchFull, Message: "no free player slot"}
	}
	enc := req.Encoding
	if enc == "" {
		enc = protocol.EncodingJSON
	}
	m.names[slot] = req.Name
	m.clients[slot] = &client{player: slot, encoding: enc, out: req.Out}
	m.log.WithFields(logrus.Fields{"player": slot, "name": req.Name}).Info("player joined")

	if m.cfg.AutoStart && m.game.State().ID == protocol.StateLobby && len(m.names) == m.game.Tuning().Players {
		if err := m.game.Start(); err != nil {
			m.log.WithError(err).Warn("auto start")
		}
	}
	m.publish()

	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		MatchID:         m.cfg.ID,
		Player:          slot,
		Encoding:        enc,
		TickIntervalMs:  m.game.Tuning().TickIntervalMs,
		Map:             m.game.Board().Map,
		CatalogDigest:   m.game.Catalog().Digest,
	}}
}

// handleLeave frees the slot while still in the lobby. Once the game is
// running a departing player is eliminated.
func (m *Match) handleLeave(req leaveReq) {
	c := m.clients[req.player]
	if c == nil || c.out != req.out {
		return
	}
	delete(m.clients, req.player)
	log := m.log.WithField("player", req.player)
	switch st := m.game.State(); {
	case st.ID == protocol.StateLobby:
		delete(m.names, req.player)
		log.Info("player left lobby")
	case !st.Ended():
		if err := m.game.Eliminate(req.player); err != nil {
			log.WithError(err).Warn("eliminate on leave")
		}
		log.Info("player left, eliminated")
	}
	m.publish()
}

func (m *Match) handleControl(req controlReq) error {
	var err error
	switch req.op {
	case opStart:
		err = m.game.Start()
	case opPause:
		err = m.game.Pause()
	case opResume:
		err = m.game.Resume()
	case opSurrender:
		if m.game.State().Ended() {
			err = fmt.Errorf("match has ended")
			break
		}
		err = m.game.Eliminate(req.player)
	default:
		err = fmt.Errorf("unknown control op %d", req.op)
	}
	if err == nil {
		m.publish()
	}
	return err
}

func (m *Match) handleCommand(env CommandEnvelope) {
	if _, ok := m.names[env.Player]; !ok {
		m.log.WithField("player", env.Player).Info("dropped command from unseated player")
		return
	}
	n := m.game.Command(env.Packet, env.Player)
	m.pending = append(m.pending, RecordedCommand{Player: env.Player, Accepted: n, Packet: env.Packet})
}

func (m *Match) publish() {
	players := m.game.Players()
	st := Status{
		ID:        m.cfg.ID,
		Board:     m.cfg.BoardName,
		State:     m.game.State(),
		Tick:      m.game.TickNumber(),
		Units:     len(m.game.Units()),
		CreatedAt: m.createdAt,
		Players:   make([]PlayerStatus, len(players)),
	}
	for i, p := range players {
		owner := i + 1
		_, connected := m.clients[owner]
		st.Players[i] = PlayerStatus{
			Player:      owner,
			Name:        m.names[owner],
			Connected:   connected,
			Resources:   p.Resources,
			StillInGame: p.StillInGame,
		}
	}
	m.status.Store(&st)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
