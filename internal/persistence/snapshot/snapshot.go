package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/match"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	MatchID string `json:"match_id"`
	Tick    int    `json:"tick"`
}

// SnapshotV1 is the final state of a finished match. Unit snapshots use the
// same shape clients receive in UPDATE frames.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Board   string                  `json:"board,omitempty"`
	State   protocol.GameState      `json:"state"`
	Players []protocol.PlayerState  `json:"players"`
	Units   []protocol.UnitSnapshot `json:"units"`
	EndedAt time.Time               `json:"ended_at"`
}

func FromMatch(s match.EndSnapshot) SnapshotV1 {
	return SnapshotV1{
		Header:  Header{Version: Version, MatchID: s.MatchID, Tick: s.Tick},
		Board:   s.Board,
		State:   s.State,
		Players: s.Players,
		Units:   s.Units,
		EndedAt: s.EndedAt,
	}
}

// PathFor is where a match's end snapshot lives under dataDir.
func PathFor(dataDir, matchID string) string {
	return filepath.Join(dataDir, "snapshots", matchID+".snap.zst")
}

// WriteSnapshot writes a header line followed by the JSON body, zstd
// compressed. The file is written to a temp name and renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
