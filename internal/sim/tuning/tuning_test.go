package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_interval_ms: 100\nwin_condition: OneLeft\ncombat:\n  follow_distance: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickIntervalMs != 100 || tu.WinCondition != WinOneLeft || tu.Combat.FollowDistance != 3 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.MaxPlayerUnits != 50 || tu.Movement.ScanRadius != 3 || tu.Combat.HarvestDistance != 1 {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoad_RejectsUnknownWinCondition(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("win_condition: KingOfTheHill\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoad_ShippedConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults:\n got %+v\nwant %+v", got, Defaults())
	}
}
