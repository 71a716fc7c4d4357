package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry owns the running matches of one server. Template supplies the
// tuning, catalog, logger and AutoStart flag for every match it creates.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match

	template   Config
	maxMatches int
	tickLogger TickLogger
	recorder   Recorder
	snapSink   chan<- EndSnapshot
	wg         sync.WaitGroup
}

func NewRegistry(template Config, maxMatches int) *Registry {
	if template.Logger == nil {
		template.Logger = logrus.StandardLogger()
	}
	return &Registry{
		matches:    map[string]*Match{},
		template:   template,
		maxMatches: maxMatches,
	}
}

func (r *Registry) SetTickLogger(l TickLogger) { r.tickLogger = l }
func (r *Registry) SetRecorder(rec Recorder)   { r.recorder = rec }

func (r *Registry) SetSnapshotSink(ch chan<- EndSnapshot) { r.snapSink = ch }

// Create builds a match on the named board and starts its loop. The loop
// stops when the match ends or ctx is cancelled.
func (r *Registry) Create(ctx context.Context, boardName string, cfg Config) (*Match, error) {
	r.mu.Lock()
	if r.maxMatches > 0 && r.runningLocked() >= r.maxMatches {
		r.mu.Unlock()
		return nil, fmt.Errorf("match limit %d reached", r.maxMatches)
	}
	r.mu.Unlock()

	c := r.template
	c.ID = uuid.NewString()
	c.BoardName = boardName
	c.Board = cfg.Board
	if cfg.Tuning.Players > 0 {
		c.Tuning = cfg.Tuning
	}
	c.AutoStart = c.AutoStart || cfg.AutoStart
	m, err := New(c)
	if err != nil {
		return nil, err
	}
	if r.tickLogger != nil {
		m.SetTickLogger(r.tickLogger)
	}
	if r.recorder != nil {
		m.SetRecorder(r.recorder)
	}
	if r.snapSink != nil {
		m.SetSnapshotSink(r.snapSink)
	}

	r.mu.Lock()
	r.matches[m.ID()] = m
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := m.Run(ctx)
		log := c.Logger.WithField("match_id", m.ID())
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			log.Info("match loop exited")
		default:
			log.WithError(err).Error("match loop failed")
		}
	}()
	return m, nil
}

func (r *Registry) Get(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	return m, ok
}

// List returns the status of every known match, oldest first.
func (r *Registry) List() []Status {
	r.mu.RLock()
	out := make([]Status, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m.Status())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Running counts matches whose loop has not exited.
func (r *Registry) Running() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runningLocked()
}

func (r *Registry) runningLocked() int {
	n := 0
	for _, m := range r.matches {
		select {
		case <-m.Done():
		default:
			n++
		}
	}
	return n
}

// Prune forgets matches whose loop has exited and returns how many it removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, m := range r.matches {
		select {
		case <-m.Done():
			delete(r.matches, id)
			n++
		default:
		}
	}
	return n
}

// Close stops every match and waits for their loops to exit.
func (r *Registry) Close() {
	r.mu.RLock()
	for _, m := range r.matches {
		m.Stop()
	}
	r.mu.RUnlock()
	r.wg.Wait()
}
