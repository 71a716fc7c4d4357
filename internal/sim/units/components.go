package units

type Hp struct {
	MaxHp int `yaml:"max_hp"`
	Hp    int `yaml:"hp"`
}

// Mover speed is in tiles per second.
type Mover struct {
	Speed float64 `yaml:"speed"`
}

// Attacker times are in milliseconds, range in tiles.
type Attacker struct {
	Damage     int     `yaml:"damage"`
	AttackRate float64 `yaml:"attack_rate"`
	Range      float64 `yaml:"range"`
	Cooldown   float64 `yaml:"cooldown"`
}

type Harvester struct {
	HarvestingTime     float64 `yaml:"harvesting_time"`
	HarvestingValue    int     `yaml:"harvesting_value"`
	HarvestingProgress float64 `yaml:"harvesting_progress"`
	ResourcesCarried   *int    `yaml:"resources_carried,omitempty"`
}

// Building units occupy a Size×Size footprint centred on their position.
type Building struct {
	Size                 int      `yaml:"size"`
	ConstructionTimeLeft *float64 `yaml:"construction_time_left,omitempty"`
}

func (b *Building) UnderConstruction() bool {
	return b.ConstructionTimeLeft != nil && *b.ConstructionTimeLeft > 0
}

type ProductionState struct {
	UnitType string
	TimeLeft float64
}

type ProducedUnit struct {
	UnitType       string  `yaml:"unit_type"`
	ProductionTime float64 `yaml:"production_time"`
	Cost           int     `yaml:"cost"`
}

type ProductionFacility struct {
	ProductionState *ProductionState `yaml:"-"`
	UnitsProduced   []ProducedUnit   `yaml:"units_produced"`
}

func (p *ProductionFacility) Lookup(unitType string) (ProducedUnit, bool) {
	for _, u := range p.UnitsProduced {
		if u.UnitType == unitType {
			return u, true
		}
	}
	return ProducedUnit{}, false
}

type BuildingOption struct {
	BuildingType     string  `yaml:"building_type"`
	Cost             int     `yaml:"cost"`
	ConstructionTime float64 `yaml:"construction_time"`
}

type Builder struct {
	BuildingsProduced []BuildingOption `yaml:"buildings_produced"`
	CurrentlyBuilding *string          `yaml:"-"`
}

func (b *Builder) Lookup(buildingType string) (BuildingOption, bool) {
	for _, o := range b.BuildingsProduced {
		if o.BuildingType == buildingType {
			return o, true
		}
	}
	return BuildingOption{}, false
}

type Vision struct {
	Range float64 `yaml:"range"`
}

type Resource struct {
	Value int `yaml:"value"`
}

// Components holds at most one instance of each capability. A nil field means
// the unit lacks that capability.
type Components struct {
	Hp                 *Hp                 `yaml:"hp,omitempty"`
	Mover              *Mover              `yaml:"mover,omitempty"`
	Attacker           *Attacker           `yaml:"attacker,omitempty"`
	Harvester          *Harvester          `yaml:"harvester,omitempty"`
	Building           *Building           `yaml:"building,omitempty"`
	ProductionFacility *ProductionFacility `yaml:"production_facility,omitempty"`
	Builder            *Builder            `yaml:"builder,omitempty"`
	Vision             *Vision             `yaml:"vision,omitempty"`
	Resource           *Resource           `yaml:"resource,omitempty"`
}

// Clone returns a deep copy; no component state is shared with c.
func (c Components) Clone() Components {
	var out Components
	if c.Hp != nil {
		v := *c.Hp
		out.Hp = &v
	}
	if c.Mover != nil {
		v := *c.Mover
		out.Mover = &v
	}
	if c.Attacker != nil {
		v := *c.Attacker
		out.Attacker = &v
	}
	if c.Harvester != nil {
		v := *c.Harvester
		v.ResourcesCarried = cloneInt(c.Harvester.ResourcesCarried)
		out.Harvester = &v
	}
	if c.Building != nil {
		v := *c.Building
		v.ConstructionTimeLeft = cloneFloat(c.Building.ConstructionTimeLeft)
		out.Building = &v
	}
	if c.ProductionFacility != nil {
		v := ProductionFacility{UnitsProduced: append([]ProducedUnit(nil), c.ProductionFacility.UnitsProduced...)}
		if ps := c.ProductionFacility.ProductionState; ps != nil {
			s := *ps
			v.ProductionState = &s
		}
		out.ProductionFacility = &v
	}
	if c.Builder != nil {
		v := Builder{BuildingsProduced: append([]BuildingOption(nil), c.Builder.BuildingsProduced...)}
		if cb := c.Builder.CurrentlyBuilding; cb != nil {
			s := *cb
			v.CurrentlyBuilding = &s
		}
		out.Builder = &v
	}
	if c.Vision != nil {
		v := *c.Vision
		out.Vision = &v
	}
	if c.Resource != nil {
		v := *c.Resource
		out.Resource = &v
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
