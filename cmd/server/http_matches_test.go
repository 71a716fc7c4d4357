package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skirmish.ai/internal/logging"
	"skirmish.ai/internal/persistence/snapshot"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/match"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/sim/vec"
	"skirmish.ai/internal/transport/ws"
)

func newTestAPI(t *testing.T) (*matchAPI, *httptest.Server) {
	t.Helper()
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	tu := tuning.Defaults()
	tu.TickIntervalMs = 10
	tu.PrecountMs = 60_000
	reg := match.NewRegistry(match.Config{Tuning: tu, Logger: logging.Discard()}, 2)
	api := &matchAPI{
		ctx: context.Background(),
		reg: reg,
		boards: map[string]board.Board{
			"open30": {
				Map:                  board.NewMap(30, 30),
				PlayerStartLocations: []vec.Vec2{{X: 6, Y: 6}, {X: 22, Y: 22}},
			},
		},
		dataDir: t.TempDir(),
		log:     logging.Discard(),
	}
	srv := httptest.NewServer(newMux(api, ws.NewServer(reg, v, logging.Discard()), logging.Discard()))
	t.Cleanup(func() {
		reg.Close()
		srv.Close()
	})
	return api, srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestMatchAPI_CreateGetList(t *testing.T) {
	_, srv := newTestAPI(t)

	var st match.Status
	if code := doJSON(t, http.MethodPost, srv.URL+"/v1/matches", createMatchReq{Board: "open30"}, &st); code != http.StatusCreated {
		t.Fatalf("create code=%d", code)
	}
	if st.ID == "" || st.Board != "open30" || st.State.ID != protocol.StateLobby {
		t.Fatalf("status=%+v", st)
	}

	var got match.Status
	if code := doJSON(t, http.MethodGet, srv.URL+"/v1/matches/"+st.ID, nil, &got); code != http.StatusOK {
		t.Fatalf("get code=%d", code)
	}
	if got.ID != st.ID {
		t.Fatalf("get id=%s want %s", got.ID, st.ID)
	}

	var list struct {
		Matches []match.Status `json:"matches"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/v1/matches", nil, &list); code != http.StatusOK {
		t.Fatalf("list code=%d", code)
	}
	if len(list.Matches) != 1 || list.Matches[0].ID != st.ID {
		t.Fatalf("list=%+v", list.Matches)
	}
}

func TestMatchAPI_CreateRejectsUnknownBoardAndLimit(t *testing.T) {
	_, srv := newTestAPI(t)

	var e struct {
		Code string `json:"code"`
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/v1/matches", createMatchReq{Board: "nope"}, &e); code != http.StatusBadRequest || e.Code != protocol.ErrBadRequest {
		t.Fatalf("unknown board code=%d err=%s", code, e.Code)
	}

	// Empty body picks the only board.
	for i := 0; i < 2; i++ {
		if code := doJSON(t, http.MethodPost, srv.URL+"/v1/matches", nil, nil); code != http.StatusCreated {
			t.Fatalf("create %d code=%d", i, code)
		}
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/v1/matches", nil, &e); code != http.StatusServiceUnavailable || e.Code != protocol.ErrLimit {
		t.Fatalf("over limit code=%d err=%s", code, e.Code)
	}
}

func TestMatchAPI_ControlLifecycle(t *testing.T) {
	_, srv := newTestAPI(t)
	var st match.Status
	doJSON(t, http.MethodPost, srv.URL+"/v1/matches", nil, &st)
	base := srv.URL + "/v1/matches/" + st.ID

	if code := doJSON(t, http.MethodPost, base+"/start", nil, nil); code != http.StatusOK {
		t.Fatalf("start code=%d", code)
	}
	// Already counting down.
	if code := doJSON(t, http.MethodPost, base+"/start", nil, nil); code != http.StatusConflict {
		t.Fatalf("second start code=%d", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/bogus", nil, nil); code != http.StatusNotFound {
		t.Fatalf("bogus op code=%d", code)
	}

	var stopped match.Status
	if code := doJSON(t, http.MethodPost, base+"/stop", nil, &stopped); code != http.StatusOK {
		t.Fatalf("stop code=%d", code)
	}
	if stopped.State.ID != protocol.StateForcefullyEnded {
		t.Fatalf("state after stop=%s", stopped.State.ID)
	}

	var e struct {
		Code string `json:"code"`
	}
	if code := doJSON(t, http.MethodPost, base+"/resume", nil, &e); code != http.StatusConflict || e.Code != protocol.ErrMatchEnded {
		t.Fatalf("resume after stop code=%d err=%s", code, e.Code)
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/v1/matches/missing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing match code=%d", code)
	}
}

func TestMatchAPI_ControlRequiresLoopback(t *testing.T) {
	api, _ := newTestAPI(t)
	m, err := api.reg.Create(context.Background(), "open30", match.Config{Board: api.boards["open30"]})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mux := http.NewServeMux()
	api.register(mux)

	req := httptest.NewRequest(http.MethodPost, "/v1/matches/"+m.ID()+"/start", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote control code=%d", rec.Code)
	}

	api.remoteControl = true
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed remote control code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMetricsAndHealth(t *testing.T) {
	_, srv := newTestAPI(t)
	doJSON(t, http.MethodPost, srv.URL+"/v1/matches", nil, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz code=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	body := string(b)
	for _, want := range []string{
		"skirmish_matches_running 1\n",
		`skirmish_matches{state="Lobby"} 1`,
		"skirmish_players_connected 0\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "skirmish_index_") {
		t.Fatalf("index metrics without an index:\n%s", body)
	}

	if code := doJSON(t, http.MethodGet, srv.URL+"/v1/results", nil, nil); code != http.StatusNotFound {
		t.Fatalf("results without index code=%d", code)
	}
}

func TestLoadBoards(t *testing.T) {
	dir := t.TempDir()
	raw := "tiles:\n  - \"....\"\n  - \"....\"\nstart_locations:\n  - [0.5, 0.5]\n  - [3.5, 1.5]\n"
	if err := os.WriteFile(filepath.Join(dir, "tiny.yaml"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	boards, err := loadBoards(dir)
	if err != nil {
		t.Fatalf("loadBoards: %v", err)
	}
	b, ok := boards["tiny"]
	if !ok || b.Map.W != 4 || b.Map.H != 2 || len(b.PlayerStartLocations) != 2 {
		t.Fatalf("boards=%+v", boards)
	}
	if defaultBoard(boards) != "tiny" {
		t.Fatalf("default board=%s", defaultBoard(boards))
	}

	if _, err := loadBoards(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestMatchAPI_Snapshot(t *testing.T) {
	api, srv := newTestAPI(t)
	snap := snapshot.FromMatch(match.EndSnapshot{
		MatchID: "m1",
		Board:   "open30",
		Tick:    12,
		State:   protocol.GameState{ID: protocol.StateForcefullyEnded},
	})
	if err := snapshot.WriteSnapshot(snapshot.PathFor(api.dataDir, "m1"), snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	var got snapshot.SnapshotV1
	if code := doJSON(t, http.MethodGet, srv.URL+"/v1/matches/m1/snapshot", nil, &got); code != http.StatusOK {
		t.Fatalf("snapshot code=%d", code)
	}
	if got.Header.MatchID != "m1" || got.Header.Tick != 12 || got.State.ID != protocol.StateForcefullyEnded {
		t.Fatalf("snapshot=%+v", got)
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/v1/matches/m2/snapshot", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing snapshot code=%d", code)
	}
}
