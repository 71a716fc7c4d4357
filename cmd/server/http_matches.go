package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/persistence/snapshot"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/board"
	"skirmish.ai/internal/sim/match"
)

type matchAPI struct {
	ctx     context.Context
	reg     *match.Registry
	boards  map[string]board.Board
	index   runtimeIndex
	dataDir string
	log     logrus.FieldLogger

	// remoteControl lets non-loopback clients start, pause and stop matches.
	remoteControl bool
}

type createMatchReq struct {
	Board     string `json:"board"`
	AutoStart bool   `json:"auto_start"`
}

// loadBoards reads every *.yaml file in dir; the board name is the file name
// without extension.
func loadBoards(dir string) (map[string]board.Board, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := map[string]board.Board{}
	for _, p := range paths {
		b, err := board.Load(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out[strings.TrimSuffix(filepath.Base(p), ".yaml")] = b
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no boards in %s: %w", dir, os.ErrNotExist)
	}
	return out, nil
}

func (a *matchAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/boards", a.handleBoards)
	mux.HandleFunc("GET /v1/matches", a.handleList)
	mux.HandleFunc("POST /v1/matches", a.handleCreate)
	mux.HandleFunc("GET /v1/matches/{id}", a.handleGet)
	mux.HandleFunc("GET /v1/matches/{id}/snapshot", a.handleSnapshot)
	mux.HandleFunc("POST /v1/matches/{id}/{op}", a.handleControl)
	mux.HandleFunc("GET /v1/results", a.handleResults)
}

func (a *matchAPI) handleBoards(rw http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(a.boards))
	for name := range a.boards {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(rw, http.StatusOK, map[string]any{"boards": names})
}

func (a *matchAPI) handleList(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{"matches": a.reg.List()})
}

func (a *matchAPI) handleCreate(rw http.ResponseWriter, r *http.Request) {
	var req createMatchReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&req); err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
			return
		}
	}
	name := strings.TrimSpace(req.Board)
	if name == "" {
		name = defaultBoard(a.boards)
	}
	b, ok := a.boards[name]
	if !ok {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "unknown board "+name)
		return
	}
	m, err := a.reg.Create(a.ctx, name, match.Config{Board: b, AutoStart: req.AutoStart})
	if err != nil {
		a.log.WithError(err).Warn("create match")
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrLimit, err.Error())
		return
	}
	a.log.WithFields(logrus.Fields{"match_id": m.ID(), "board": name}).Info("match created")
	writeJSON(rw, http.StatusCreated, m.Status())
}

func (a *matchAPI) handleGet(rw http.ResponseWriter, r *http.Request) {
	m, ok := a.reg.Get(r.PathValue("id"))
	if !ok {
		writeError(rw, http.StatusNotFound, protocol.ErrMatchNotFound, "no such match")
		return
	}
	writeJSON(rw, http.StatusOK, m.Status())
}

func (a *matchAPI) handleControl(rw http.ResponseWriter, r *http.Request) {
	if !a.remoteControl && !isLoopbackRemote(r.RemoteAddr) {
		writeError(rw, http.StatusForbidden, protocol.ErrNoPermission, "forbidden")
		return
	}
	m, ok := a.reg.Get(r.PathValue("id"))
	if !ok {
		writeError(rw, http.StatusNotFound, protocol.ErrMatchNotFound, "no such match")
		return
	}
	var err error
	switch r.PathValue("op") {
	case "start":
		err = m.Start(r.Context())
	case "pause":
		err = m.Pause(r.Context())
	case "resume":
		err = m.Resume(r.Context())
	case "stop":
		m.Stop()
		<-m.Done()
	default:
		writeError(rw, http.StatusNotFound, protocol.ErrBadRequest, "unknown operation")
		return
	}
	switch {
	case errors.Is(err, match.ErrMatchDone):
		writeError(rw, http.StatusConflict, protocol.ErrMatchEnded, err.Error())
	case err != nil:
		writeError(rw, http.StatusConflict, protocol.ErrBadRequest, err.Error())
	default:
		writeJSON(rw, http.StatusOK, m.Status())
	}
}

// handleSnapshot serves the end-of-match snapshot once it has been written.
func (a *matchAPI) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" || strings.ContainsAny(id, `/\.`) {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad match id")
		return
	}
	snap, err := snapshot.ReadSnapshot(snapshot.PathFor(a.dataDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		writeError(rw, http.StatusNotFound, protocol.ErrMatchNotFound, "no snapshot for "+id)
		return
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, snap)
}

func (a *matchAPI) handleResults(rw http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrBadRequest, "index disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := a.index.Results(r.Context(), limit)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"results": rows})
}

func defaultBoard(boards map[string]board.Board) string {
	if _, ok := boards["duel"]; ok {
		return "duel"
	}
	names := make([]string, 0, len(boards))
	for name := range boards {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, message string) {
	writeJSON(rw, status, map[string]any{"code": code, "message": message})
}
