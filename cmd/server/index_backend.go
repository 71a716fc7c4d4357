package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"skirmish.ai/internal/persistence/indexdb"
	"skirmish.ai/internal/sim/catalogs"
	"skirmish.ai/internal/sim/match"
	"skirmish.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	match.TickLogger
	match.Recorder
	Close() error
	UpsertCatalogs(cat *catalogs.Catalog, tune tuning.Tuning) error
	Results(ctx context.Context, limit int) ([]indexdb.ResultRow, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SKIRMISH_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "matches.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported SKIRMISH_INDEX_BACKEND: %s", backend)
	}
}

// multiTickLogger fans a tick out to the journal and the index.
type multiTickLogger struct {
	a match.TickLogger
	b match.TickLogger
}

func (m multiTickLogger) WriteTick(entry match.TickLogEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return err
}
