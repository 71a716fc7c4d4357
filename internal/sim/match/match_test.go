package match

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"skirmish.ai/internal/logging"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/vec"
)

type memJournal struct {
	mu      sync.Mutex
	entries []TickLogEntry
}

func (j *memJournal) WriteTick(e TickLogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

type memRecorder struct {
	mu      sync.Mutex
	matches []MatchRecord
	results []ResultRecord
}

func (r *memRecorder) RecordMatch(rec MatchRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, rec)
}

func (r *memRecorder) RecordResult(rec ResultRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, rec)
}

func testConfig() Config {
	tu := tuning.Defaults()
	tu.TickIntervalMs = 5
	tu.PrecountMs = 1000
	return Config{
		BoardName: "open30",
		Board: board.Board{
			Map:                  board.NewMap(30, 30),
			PlayerStartLocations: []vec.Vec2{{X: 6, Y: 6}, {X: 22, Y: 22}},
		},
		Tuning: tu,
		Logger: logging.Discard(),
	}
}

func newTestMatch(t *testing.T, cfg Config) *Match {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func join(t *testing.T, m *Match, name, enc string) (JoinResponse, chan []byte) {
	t.Helper()
	out := make(chan []byte, 4)
	return m.handleJoin(JoinRequest{Name: name, Encoding: enc, Out: out}), out
}

func TestJoin_SeatsPlayersInOrderUntilFull(t *testing.T) {
	m := newTestMatch(t, testConfig())

	a, _ := join(t, m, "alice", "")
	b, _ := join(t, m, "bob", protocol.EncodingMsgpack)
	c, _ := join(t, m, "carol", "")

	if a.Code != "" || a.Welcome.Player != 1 || a.Welcome.Encoding != protocol.EncodingJSON {
		t.Fatalf("first join: %+v", a)
	}
	if b.Code != "" || b.Welcome.Player != 2 || b.Welcome.Encoding != protocol.EncodingMsgpack {
		t.Fatalf("second join: %+v", b)
	}
	if c.Code != protocol.ErrMatchFull {
		t.Fatalf("third join code=%q want %q", c.Code, protocol.ErrMatchFull)
	}
	if a.Welcome.Map.W != 30 || a.Welcome.TickIntervalMs != 5 || a.Welcome.CatalogDigest == "" {
		t.Fatalf("welcome missing match info: %+v", a.Welcome)
	}
	if st := m.Status(); st.Players[0].Name != "alice" || !st.Players[1].Connected {
		t.Fatalf("status players: %+v", st.Players)
	}
}

func TestJoin_RejectsUnknownEncoding(t *testing.T) {
	m := newTestMatch(t, testConfig())
	resp, _ := join(t, m, "alice", "xml")
	if resp.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("code=%q", resp.Code)
	}
}

func TestJoin_AutoStartWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.AutoStart = true
	m := newTestMatch(t, cfg)

	join(t, m, "alice", "")
	if got := m.game.State().ID; got != protocol.StateLobby {
		t.Fatalf("state after one join=%s", got)
	}
	join(t, m, "bob", "")
	if got := m.game.State().ID; got != protocol.StatePrecount {
		t.Fatalf("state after both joined=%s", got)
	}
}

func TestLeave_LobbyFreesSeat(t *testing.T) {
	m := newTestMatch(t, testConfig())
	_, out := join(t, m, "alice", "")
	join(t, m, "bob", "")

	// A stale leave from another connection is ignored.
	m.handleLeave(leaveReq{player: 1, out: make(chan []byte)})
	if _, ok := m.clients[1]; !ok {
		t.Fatalf("stale leave removed the client")
	}

	m.handleLeave(leaveReq{player: 1, out: out})
	resp, _ := join(t, m, "carol", "")
	if resp.Welcome.Player != 1 {
		t.Fatalf("rejoin seat=%d want 1", resp.Welcome.Player)
	}
}

func TestLeave_DuringPlayEliminatesAndEndsGame(t *testing.T) {
	m := newTestMatch(t, testConfig())
	rec := &memRecorder{}
	m.SetRecorder(rec)
	join(t, m, "alice", "")
	_, bobOut := join(t, m, "bob", "")

	if err := m.handleControl(controlReq{op: opStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.step(50); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := m.game.State().ID; got != protocol.StatePlay {
		t.Fatalf("state=%s want Play", got)
	}

	m.handleLeave(leaveReq{player: 2, out: bobOut})
	if m.game.Players()[1].StillInGame {
		t.Fatalf("leaving player still in game")
	}
	if err := m.step(50); err != nil {
		t.Fatalf("step: %v", err)
	}
	st := m.game.State()
	if st.ID != protocol.StateGameEnded || len(st.WinnerIndices) != 1 || st.WinnerIndices[0] != 0 {
		t.Fatalf("state=%+v want GameEnded winners [0]", st)
	}
	if len(rec.results) != 1 || rec.results[0].State != protocol.StateGameEnded {
		t.Fatalf("results=%+v", rec.results)
	}
}

func TestCommand_JournaledWithNextTick(t *testing.T) {
	m := newTestMatch(t, testConfig())
	j := &memJournal{}
	m.SetTickLogger(j)
	join(t, m, "alice", "")

	var harvester int
	for _, u := range m.game.Units() {
		if u.Owner == 1 && u.Kind == "Harvester" {
			harvester = u.ID
			break
		}
	}
	if harvester == 0 {
		t.Fatalf("no starting harvester for player 1")
	}

	pkt := protocol.CommandPacket{Command: protocol.MoveTo(protocol.CmdMove, vec.Vec2{X: 15, Y: 15}), UnitIDs: []int{harvester}}
	m.handleCommand(CommandEnvelope{Player: 2, Packet: pkt})
	if len(m.pending) != 0 {
		t.Fatalf("command from unseated player was recorded")
	}
	m.handleCommand(CommandEnvelope{Player: 1, Packet: pkt})

	if err := m.step(50); err != nil {
		t.Fatalf("step: %v", err)
	}
	if err := m.step(50); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(j.entries) != 2 {
		t.Fatalf("entries=%d want 2", len(j.entries))
	}
	got := j.entries[0].Commands
	if len(got) != 1 || got[0].Player != 1 || got[0].Accepted != 1 {
		t.Fatalf("first entry commands=%+v", got)
	}
	if len(j.entries[1].Commands) != 0 {
		t.Fatalf("second entry repeated commands: %+v", j.entries[1].Commands)
	}
}

func TestBroadcast_EncodesPerClient(t *testing.T) {
	m := newTestMatch(t, testConfig())
	_, jsonOut := join(t, m, "alice", protocol.EncodingJSON)
	_, packOut := join(t, m, "bob", protocol.EncodingMsgpack)

	if err := m.step(50); err != nil {
		t.Fatalf("step: %v", err)
	}

	var a protocol.UpdateMsg
	if err := json.Unmarshal(<-jsonOut, &a); err != nil {
		t.Fatalf("json: %v", err)
	}
	var b protocol.UpdateMsg
	if err := protocol.Unmarshal(protocol.EncodingMsgpack, <-packOut, &b); err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	for _, msg := range []protocol.UpdateMsg{a, b} {
		if msg.Type != protocol.TypeUpdate || msg.MatchID != m.ID() || msg.State.ID != protocol.StateLobby {
			t.Fatalf("update header: %+v", msg)
		}
		if len(msg.Units) == 0 {
			t.Fatalf("update without units")
		}
	}
}

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	sendLatest(ch, []byte("1"))
	sendLatest(ch, []byte("2"))
	sendLatest(ch, []byte("3"))
	if got := string(<-ch); got != "2" {
		t.Fatalf("first=%q want 2", got)
	}
	if got := string(<-ch); got != "3" {
		t.Fatalf("second=%q want 3", got)
	}
}

func TestRun_SurrenderEndsMatch(t *testing.T) {
	cfg := testConfig()
	cfg.AutoStart = true
	m := newTestMatch(t, cfg)
	rec := &memRecorder{}
	m.SetRecorder(rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	out := make(chan []byte, 8)
	if _, err := m.Join(ctx, "alice", "", out); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := m.Join(ctx, "bob", "", make(chan []byte, 8)); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for m.Status().State.ID != protocol.StatePlay {
		if time.Now().After(deadline) {
			t.Fatalf("match never reached Play: %+v", m.Status().State)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := m.Surrender(ctx, 2); err != nil {
		t.Fatalf("surrender: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("match did not end")
	}

	var last []byte
	for len(out) > 0 {
		last = <-out
	}
	var msg protocol.UpdateMsg
	if err := json.Unmarshal(last, &msg); err != nil {
		t.Fatalf("decode last update: %v", err)
	}
	if msg.State.ID != protocol.StateGameEnded {
		t.Fatalf("last update state=%s", msg.State.ID)
	}
	if len(rec.matches) != 1 || len(rec.results) != 1 {
		t.Fatalf("recorder matches=%d results=%d", len(rec.matches), len(rec.results))
	}
	if err := m.Submit(context.Background(), 1, protocol.CommandPacket{}); err != ErrMatchDone {
		t.Fatalf("Submit after end err=%v want ErrMatchDone", err)
	}
}

func TestStop_SendsEndSnapshot(t *testing.T) {
	m := newTestMatch(t, testConfig())
	sink := make(chan EndSnapshot, 1)
	m.SetSnapshotSink(sink)

	m.forceEnd("test")
	select {
	case snap := <-sink:
		if snap.MatchID != m.ID() || snap.Board != "open30" || snap.State.ID != protocol.StateForcefullyEnded {
			t.Fatalf("snapshot=%+v", snap)
		}
		if len(snap.Units) == 0 || len(snap.Players) != 2 {
			t.Fatalf("units=%d players=%d", len(snap.Units), len(snap.Players))
		}
	default:
		t.Fatalf("no end snapshot")
	}

	// A full sink never blocks the loop.
	m2 := newTestMatch(t, testConfig())
	m2.SetSnapshotSink(make(chan EndSnapshot))
	m2.forceEnd("test")
}
