package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/matches.sqlite)")
	matchID := fs.String("match", "", "match id (required for commands and ticks)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "results"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "matches.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(os.Stdout, db, q, strings.TrimSpace(*matchID), *limit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "usage") {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runQuery(out io.Writer, db *sql.DB, q, matchID string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "results":
		rows, err := db.Query(`SELECT r.match_id, COALESCE(m.board,''), r.state, r.winners_json, r.tick, r.ended_at
			FROM results r LEFT JOIN matches m ON m.match_id = r.match_id
			ORDER BY r.ended_at DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				MatchID string          `json:"match_id"`
				Board   string          `json:"board"`
				State   string          `json:"state"`
				Winners json.RawMessage `json:"winners"`
				Tick    int             `json:"tick"`
				EndedAt string          `json:"ended_at"`
			}
			var winners string
			if err := rows.Scan(&r.MatchID, &r.Board, &r.State, &winners, &r.Tick, &r.EndedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Winners = json.RawMessage(winners)
			printJSON(out, r)
		}
		return rows.Err()

	case "commands":
		if matchID == "" {
			return fmt.Errorf("usage: admin db -match ID commands")
		}
		rows, err := db.Query(`SELECT tick,seq,player,kind,units,accepted,packet_json FROM commands
			WHERE match_id=? ORDER BY tick, seq LIMIT ?`, matchID, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int             `json:"tick"`
				Seq      int             `json:"seq"`
				Player   int             `json:"player"`
				Kind     string          `json:"kind"`
				Units    int             `json:"units"`
				Accepted int             `json:"accepted"`
				Packet   json.RawMessage `json:"packet"`
			}
			var packet string
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Player, &r.Kind, &r.Units, &r.Accepted, &packet); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Packet = json.RawMessage(packet)
			printJSON(out, r)
		}
		return rows.Err()

	case "ticks":
		if matchID == "" {
			return fmt.Errorf("usage: admin db -match ID ticks")
		}
		rows, err := db.Query(`SELECT tick,state,units,commands,players_json FROM ticks
			WHERE match_id=? ORDER BY tick DESC LIMIT ?`, matchID, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int             `json:"tick"`
				State    string          `json:"state"`
				Units    int             `json:"units"`
				Commands int             `json:"commands"`
				Players  json.RawMessage `json:"players"`
			}
			var players string
			if err := rows.Scan(&r.Tick, &r.State, &r.Units, &r.Commands, &players); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Players = json.RawMessage(players)
			printJSON(out, r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(out, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("usage: unknown query %q (results|commands|ticks|catalogs)", q)
	}
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
