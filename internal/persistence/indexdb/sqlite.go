package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"skirmish.ai/internal/sim/catalogs"
	"skirmish.ai/internal/sim/match"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/units"
)

// SQLiteIndex is a query-friendly copy of the match journal. Writes are queued
// and applied by one goroutine in batched transactions; when the queue is full
// they are dropped and counted. The JSONL journal remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick   atomic.Uint64
	dropMatch  atomic.Uint64
	dropResult atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqMatch
	reqResult
)

type req struct {
	kind reqKind

	tick   match.TickLogEntry
	match  match.MatchRecord
	result match.ResultRecord
}

type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	DropTickTotal   uint64 `json:"drop_tick_total"`
	DropMatchTotal  uint64 `json:"drop_match_total"`
	DropResultTotal uint64 `json:"drop_result_total"`
}

// ResultRow is one finished match as stored in the index.
type ResultRow struct {
	MatchID  string `json:"match_id"`
	Board    string `json:"board"`
	Players  int    `json:"players"`
	State    string `json:"state"`
	Winners  []int  `json:"winners"`
	Tick     int    `json:"tick"`
	Commands int    `json:"commands"`
	Created  string `json:"created_at"`
	Ended    string `json:"ended_at"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Every match writes one row per tick; leave room for bursts.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			board TEXT NOT NULL,
			players INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			match_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			winners_json TEXT NOT NULL,
			tick INTEGER NOT NULL,
			ended_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_ended ON results(ended_at);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			match_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			state TEXT NOT NULL,
			units INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			players_json TEXT NOT NULL,
			PRIMARY KEY (match_id, tick, state)
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			match_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			player INTEGER NOT NULL,
			kind TEXT NOT NULL,
			units INTEGER NOT NULL,
			accepted INTEGER NOT NULL,
			packet_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_match_tick ON commands(match_id, tick, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_player ON commands(match_id, player);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropTickTotal:   s.dropTick.Load(),
		DropMatchTotal:  s.dropMatch.Load(),
		DropResultTotal: s.dropResult.Load(),
	}
}

// Lobby ticks carry nothing worth indexing unless a command came in.
func (s *SQLiteIndex) WriteTick(entry match.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	if entry.Tick == 0 && len(entry.Commands) == 0 && !entry.State.Ended() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) RecordMatch(rec match.MatchRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqMatch, match: rec}, &s.dropMatch)
}

func (s *SQLiteIndex) RecordResult(rec match.ResultRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqResult, result: rec}, &s.dropResult)
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// UpsertCatalogs stores the unit catalog and tuning actually applied, so rows
// in the other tables can be interpreted later.
func (s *SQLiteIndex) UpsertCatalogs(cat *catalogs.Catalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if cat != nil {
		kinds := make(map[string]units.Components, len(cat.Names))
		for _, name := range cat.Names {
			if c, ok := cat.Template(name); ok {
				kinds[name] = c
			}
		}
		b, err := json.Marshal(kinds)
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: "units", digest: cat.Digest, json: b})
	}
	{
		b, err := json.Marshal(tune)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Results lists finished matches, most recent first.
func (s *SQLiteIndex) Results(ctx context.Context, limit int) ([]ResultRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.match_id, COALESCE(m.board,''), COALESCE(m.players,0), r.state, r.winners_json, r.tick,
			(SELECT COUNT(*) FROM commands c WHERE c.match_id = r.match_id),
			COALESCE(m.created_at,''), r.ended_at
		FROM results r LEFT JOIN matches m ON m.match_id = r.match_id
		ORDER BY r.ended_at DESC, r.match_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var (
			r       ResultRow
			winners string
		)
		if err := rows.Scan(&r.MatchID, &r.Board, &r.Players, &r.State, &winners, &r.Tick, &r.Commands, &r.Created, &r.Ended); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(winners), &r.Winners); err != nil {
			return nil, fmt.Errorf("match %s winners: %w", r.MatchID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(match_id,tick,state,units,commands,players_json) VALUES(?,?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT INTO commands(match_id,tick,seq,player,kind,units,accepted,packet_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertMatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO matches(match_id,board,players,created_at) VALUES(?,?,?,?)`)
	insertResult, _ := s.db.Prepare(`INSERT OR REPLACE INTO results(match_id,state,winners_json,tick,ended_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertMatch, insertResult} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	handle := func(r req) {
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			players, _ := json.Marshal(t.Players)
			if !exec(insertTick, t.MatchID, t.Tick, string(t.State.ID), t.Units, len(t.Commands), string(players)) {
				return
			}
			for i, c := range t.Commands {
				pkt, err := json.Marshal(c.Packet)
				if err != nil {
					continue
				}
				if !exec(insertCommand, t.MatchID, t.Tick, i, c.Player, string(c.Packet.Command.Kind), len(c.Packet.UnitIDs), c.Accepted, string(pkt)) {
					return
				}
			}

		case reqMatch:
			m := r.match
			exec(insertMatch, m.ID, m.Board, m.Players, m.CreatedAt.UTC().Format(time.RFC3339Nano))

		case reqResult:
			res := r.result
			winners := res.Winners
			if winners == nil {
				winners = []int{}
			}
			b, _ := json.Marshal(winners)
			exec(insertResult, res.ID, string(res.State), string(b), res.Tick, res.EndedAt.UTC().Format(time.RFC3339Nano))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	// The open transaction holds the only connection, so commit on a timer
	// as well; readers would otherwise wait for the next write.
	flush := time.NewTicker(commitMaxWait)
	defer flush.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-flush.C:
			commit()
		}
	}
}
