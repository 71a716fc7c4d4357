package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"skirmish.ai/internal/sim/vec"
)

func TestDefault_Kinds(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, k := range []string{"Base", "Barracks", "Tower", "ResourceNode", "Harvester", "Trooper"} {
		if !c.Has(k) {
			t.Fatalf("missing kind %s", k)
		}
	}
	h, err := c.Create(7, 1, "Harvester", vec.Vec2{X: 2, Y: 3})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h.Mover == nil || h.Attacker == nil || h.Harvester == nil || h.Builder == nil || h.Vision == nil || h.Hp == nil {
		t.Fatalf("harvester missing components: %+v", h.Components)
	}
	if h.Building != nil || h.ProductionFacility != nil {
		t.Fatalf("harvester has building components")
	}
	if !h.IsIdle() || h.State.IdlePosition != h.Position {
		t.Fatalf("new unit should be idle at spawn")
	}
	if len(c.Digest) != 64 {
		t.Fatalf("digest=%q", c.Digest)
	}
}

func TestCreate_DeepClones(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	a, _ := c.Create(1, 1, "Trooper", vec.Vec2{})
	b, _ := c.Create(2, 1, "Trooper", vec.Vec2{})
	a.Hp.Hp = 3
	if b.Hp.Hp == 3 {
		t.Fatalf("units share Hp component")
	}
	again, _ := c.Create(3, 1, "Trooper", vec.Vec2{})
	if again.Hp.Hp != again.Hp.MaxHp {
		t.Fatalf("template mutated through a created unit")
	}
	if _, err := c.Create(4, 1, "Dragon", vec.Vec2{}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoad_Validation(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "units.yaml")
	raw := "kinds:\n  - name: Hut\n    components:\n      building: { size: 2 }\n      production_facility:\n        units_produced:\n          - { unit_type: Ghost, production_time: 10, cost: 1 }\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unknown produced kind")
	}
}
