package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"skirmish.ai/internal/logging"
	persistlog "skirmish.ai/internal/persistence/log"
	"skirmish.ai/internal/persistence/snapshot"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/catalogs"
	"skirmish.ai/internal/sim/match"
	"skirmish.ai/internal/sim/tuning"
	"skirmish.ai/internal/transport/ws"
)

type serverConfig struct {
	addr       string
	configDir  string
	tuningPath string
	unitsPath  string
	boardsDir  string
	dataDir    string
	disableDB  bool
	maxMatches int
	debug      bool
}

func main() {
	var cfg serverConfig
	flag.StringVar(&cfg.addr, "addr", ":8080", "http listen address")
	flag.StringVar(&cfg.configDir, "configs", "./configs", "config directory")
	flag.StringVar(&cfg.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	flag.StringVar(&cfg.unitsPath, "units", "", "path to units.yaml (default: <configs>/units.yaml, built-in catalog if missing)")
	flag.StringVar(&cfg.boardsDir, "boards", "", "board directory (default: <configs>/boards)")
	flag.StringVar(&cfg.dataDir, "data", "./data", "runtime data directory")
	flag.BoolVar(&cfg.disableDB, "disable_db", false, "disable the sqlite match index")
	flag.IntVar(&cfg.maxMatches, "max_matches", 64, "max concurrently running matches (0 = unlimited)")
	flag.BoolVar(&cfg.debug, "debug", false, "log per-tick simulation detail")
	flag.Parse()

	logger := logging.New()
	if cfg.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if err := run(cfg, logger); err != nil {
		logger.WithField("component", "server").WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

// run serves until a signal arrives or the listener fails. Every deferred
// close runs before it returns, so the journal and index are flushed on both
// paths.
func run(cfg serverConfig, logger *logrus.Logger) error {
	log := logger.WithField("component", "server")

	tp := strings.TrimSpace(cfg.tuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		log.WithField("path", tp).Warn("tuning file missing, using defaults")
	}

	cat, err := loadCatalog(cfg.configDir, cfg.unitsPath)
	if err != nil {
		return fmt.Errorf("load units catalog: %w", err)
	}

	bd := strings.TrimSpace(cfg.boardsDir)
	if bd == "" {
		bd = filepath.Join(cfg.configDir, "boards")
	}
	boards, err := loadBoards(bd)
	if err != nil {
		return fmt.Errorf("load boards: %w", err)
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}

	idx, err := openRuntimeIndex(cfg.dataDir, cfg.disableDB)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cat, tune); err != nil {
			log.WithError(err).Warn("index catalogs")
		}
	}

	tickLog := persistlog.NewTickLogger(cfg.dataDir)
	defer tickLog.Close()

	reg := match.NewRegistry(match.Config{
		Tuning:  tune,
		Catalog: cat,
		Logger:  logger,
		Debug:   cfg.debug,
	}, cfg.maxMatches)
	if idx != nil {
		reg.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		reg.SetRecorder(idx)
	} else {
		reg.SetTickLogger(tickLog)
	}

	// End-of-match snapshot writer. Closed after reg.Close so the snapshots of
	// force-ended matches still land on disk.
	snapCh := make(chan match.EndSnapshot, 16)
	snapDone := make(chan struct{})
	reg.SetSnapshotSink(snapCh)
	go func() {
		defer close(snapDone)
		for s := range snapCh {
			path := snapshot.PathFor(cfg.dataDir, s.MatchID)
			if err := snapshot.WriteSnapshot(path, snapshot.FromMatch(s)); err != nil {
				log.WithError(err).WithField("match_id", s.MatchID).Warn("snapshot write")
			}
		}
	}()
	defer func() {
		close(snapCh)
		<-snapDone
	}()
	defer reg.Close()

	ctx, cancel := signalContext()
	defer cancel()

	go pruneLoop(ctx, reg, log)

	api := &matchAPI{
		ctx:           ctx,
		reg:           reg,
		boards:        boards,
		index:         idx,
		dataDir:       cfg.dataDir,
		log:           logger,
		remoteControl: envBool("SKIRMISH_REMOTE_CONTROL", false),
	}
	mux := newMux(api, ws.NewServer(reg, validator, logger), log)

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithFields(logrus.Fields{"addr": cfg.addr, "boards": len(boards), "catalog": cat.Digest}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func newMux(api *matchAPI, wsSrv *ws.Server, log logrus.FieldLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/metrics", api.handleMetrics)
	api.register(mux)

	if envBool("SKIRMISH_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Debug("pprof endpoints disabled (SKIRMISH_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

func (a *matchAPI) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	byState := map[protocol.GameStateID]int{}
	players := 0
	for _, st := range a.reg.List() {
		byState[st.State.ID]++
		for _, p := range st.Players {
			if p.Connected {
				players++
			}
		}
	}

	fmt.Fprintf(rw, "# HELP skirmish_matches_running Matches whose loop is still running.\n")
	fmt.Fprintf(rw, "# TYPE skirmish_matches_running gauge\n")
	fmt.Fprintf(rw, "skirmish_matches_running %d\n", a.reg.Running())

	fmt.Fprintf(rw, "# HELP skirmish_matches Registered matches by game state.\n")
	fmt.Fprintf(rw, "# TYPE skirmish_matches gauge\n")
	for _, s := range []protocol.GameStateID{protocol.StateLobby, protocol.StatePrecount, protocol.StatePlay, protocol.StatePaused, protocol.StateGameEnded, protocol.StateForcefullyEnded} {
		fmt.Fprintf(rw, "skirmish_matches{state=%q} %d\n", s, byState[s])
	}

	fmt.Fprintf(rw, "# HELP skirmish_players_connected Connected player sessions.\n")
	fmt.Fprintf(rw, "# TYPE skirmish_players_connected gauge\n")
	fmt.Fprintf(rw, "skirmish_players_connected %d\n", players)

	if a.index == nil {
		return
	}
	st := a.index.Stats()
	fmt.Fprintf(rw, "# HELP skirmish_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(rw, "# TYPE skirmish_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "skirmish_index_queue_depth %d\n", st.QueueDepth)
	fmt.Fprintf(rw, "# HELP skirmish_index_queue_capacity Index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE skirmish_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "skirmish_index_queue_capacity %d\n", st.QueueCapacity)
	fmt.Fprintf(rw, "# HELP skirmish_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE skirmish_index_dropped_total counter\n")
	fmt.Fprintf(rw, "skirmish_index_dropped_total{kind=%q} %d\n", "tick", st.DropTickTotal)
	fmt.Fprintf(rw, "skirmish_index_dropped_total{kind=%q} %d\n", "match", st.DropMatchTotal)
	fmt.Fprintf(rw, "skirmish_index_dropped_total{kind=%q} %d\n", "result", st.DropResultTotal)
}

// loadCatalog prefers an explicit path, then <configs>/units.yaml, then the
// built-in catalog.
func loadCatalog(configDir, path string) (*catalogs.Catalog, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return catalogs.Load(path)
	}
	def := filepath.Join(configDir, "units.yaml")
	if _, err := os.Stat(def); err == nil {
		return catalogs.Load(def)
	}
	return catalogs.Default()
}

// pruneLoop forgets finished matches; each stays listed until the next sweep.
func pruneLoop(ctx context.Context, reg *match.Registry, log logrus.FieldLogger) {
	every := time.Duration(envInt("SKIRMISH_PRUNE_INTERVAL_SEC", 300)) * time.Second
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := reg.Prune(); n > 0 {
				log.WithField("pruned", n).Info("pruned finished matches")
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
