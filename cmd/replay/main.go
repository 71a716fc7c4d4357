package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	persistlog "skirmish.ai/internal/persistence/log"
	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/match"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory (reads <data>/journal)")
		file     = flag.String("file", "", "single ticks-*.jsonl.zst file (overrides -data)")
		matchID  = flag.String("match", "", "only this match")
		commands = flag.Bool("commands", false, "print every journaled command")
	)
	flag.Parse()

	files := []string{*file}
	if *file == "" {
		var err error
		files, err = persistlog.NewTickLogger(*dataDir).Files()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list journal:", err)
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found under", *dataDir)
		os.Exit(1)
	}

	sums := map[string]*matchSummary{}
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(e match.TickLogEntry) error {
			if *matchID != "" && e.MatchID != *matchID {
				return nil
			}
			s := sums[e.MatchID]
			if s == nil {
				s = &matchSummary{ID: e.MatchID, FirstTick: e.Tick}
				sums[e.MatchID] = s
			}
			if err := s.add(e); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if *commands {
				printCommands(os.Stdout, e)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sums[id].print(os.Stdout)
	}
}

// matchSummary folds a match's journal entries and checks they are ordered.
type matchSummary struct {
	ID        string
	FirstTick int
	LastTick  int
	Entries   int
	Commands  int
	Accepted  int
	Final     protocol.GameState
	Players   []protocol.PlayerState
}

func (s *matchSummary) add(e match.TickLogEntry) error {
	if s.Entries > 0 && e.Tick < s.LastTick {
		return fmt.Errorf("match %s: tick %d after %d", s.ID, e.Tick, s.LastTick)
	}
	s.Entries++
	s.LastTick = e.Tick
	s.Final = e.State
	s.Players = e.Players
	for _, c := range e.Commands {
		s.Commands++
		s.Accepted += c.Accepted
	}
	return nil
}

func (s *matchSummary) print(w io.Writer) {
	fmt.Fprintf(w, "match=%s ticks=%d..%d entries=%d commands=%d accepted_units=%d state=%s",
		s.ID, s.FirstTick, s.LastTick, s.Entries, s.Commands, s.Accepted, s.Final.ID)
	if s.Final.ID == protocol.StateGameEnded {
		fmt.Fprintf(w, " winners=%v", s.Final.WinnerIndices)
	}
	fmt.Fprintln(w)
	for i, p := range s.Players {
		fmt.Fprintf(w, "  player=%d resources=%d in_game=%v\n", i+1, p.Resources, p.StillInGame)
	}
}

func printCommands(w io.Writer, e match.TickLogEntry) {
	for _, c := range e.Commands {
		fmt.Fprintf(w, "%s tick=%d player=%d command=%s units=%v accepted=%d\n",
			e.MatchID, e.Tick, c.Player, c.Packet.Command.Kind, c.Packet.UnitIDs, c.Accepted)
	}
}
