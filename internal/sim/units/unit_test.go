package units

import (
	"testing"

	"skirmish.ai/internal/protocol"
	"skirmish.ai/internal/sim/vec"
)

func TestComponentsClone_Independent(t *testing.T) {
	carried := 5
	src := Components{
		Hp:                 &Hp{MaxHp: 10, Hp: 10},
		Harvester:          &Harvester{HarvestingTime: 100, ResourcesCarried: &carried},
		ProductionFacility: &ProductionFacility{UnitsProduced: []ProducedUnit{{UnitType: "Trooper", Cost: 10}}},
	}
	c := src.Clone()
	c.Hp.Hp = 1
	*c.Harvester.ResourcesCarried = 9
	c.ProductionFacility.UnitsProduced[0].Cost = 99
	if src.Hp.Hp != 10 || carried != 5 || src.ProductionFacility.UnitsProduced[0].Cost != 10 {
		t.Fatalf("clone shares state with source")
	}
	if c.Mover != nil || c.Building != nil {
		t.Fatalf("clone invented components")
	}
}

func TestAccepts(t *testing.T) {
	u := &Unit{Components: Components{Mover: &Mover{Speed: 1}}}
	if !u.Accepts(protocol.CmdMove) || !u.Accepts(protocol.CmdStop) {
		t.Fatalf("mover should accept move and stop")
	}
	if u.Accepts(protocol.CmdAttack) || u.Accepts(protocol.CmdProduce) || u.Accepts(protocol.CmdHarvest) {
		t.Fatalf("mover accepted a command it has no component for")
	}
}

func TestEnqueueAndAdvance(t *testing.T) {
	u := &Unit{Position: vec.Vec2{X: 1, Y: 1}, State: IdleAt(vec.Vec2{X: 1, Y: 1})}
	a := protocol.MoveTo(protocol.CmdMove, vec.Vec2{X: 3, Y: 3})
	b := protocol.MoveTo(protocol.CmdMove, vec.Vec2{X: 5, Y: 5})
	c := protocol.MoveTo(protocol.CmdMove, vec.Vec2{X: 7, Y: 7})

	u.Enqueue(a, true)
	if u.State.Kind != StateActive || u.State.Current != a {
		t.Fatalf("idle unit should activate with first command: %+v", u.State)
	}
	u.Enqueue(b, true)
	if len(u.State.Rest) != 1 {
		t.Fatalf("shift should append")
	}
	u.PathToNext = []vec.Vec2{{X: 2, Y: 2}}
	u.Enqueue(c, false)
	if u.State.Current != c || len(u.State.Rest) != 0 || u.PathToNext != nil {
		t.Fatalf("non-shift should replace queue and drop path: %+v", u.State)
	}

	u.Enqueue(a, true)
	u.Advance()
	if u.State.Current != a {
		t.Fatalf("advance should shift queue")
	}
	u.Velocity = vec.Vec2{X: 0.5}
	u.Advance()
	if u.State.Kind != StateIdle || u.State.IdlePosition != (vec.Vec2{X: 1.5, Y: 1}) {
		t.Fatalf("advance on empty queue should go idle at landing position: %+v", u.State)
	}
}

func TestSetActionResetsTime(t *testing.T) {
	s := IdleAt(vec.Vec2{})
	s.ActionTime = 300
	s.SetAction(ActionIdle)
	if s.ActionTime != 300 {
		t.Fatalf("same action should keep time")
	}
	s.SetAction(ActionMoving)
	if s.ActionTime != 0 || s.Action != ActionMoving {
		t.Fatalf("new action should reset time: %+v", s)
	}
}
