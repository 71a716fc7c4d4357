package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"skirmish.ai/internal/sim/units"
	"skirmish.ai/internal/sim/vec"
)

//go:embed units.yaml
var defaultUnits []byte

// Catalog maps unit-kind names to component templates. Templates are never
// handed out directly; Create clones them.
type Catalog struct {
	Names  []string
	kinds  map[string]units.Components
	Digest string
}

type kindDef struct {
	Name       string           `yaml:"name"`
	Components units.Components `yaml:"components"`
}

type fileSpec struct {
	Kinds []kindDef `yaml:"kinds"`
}

func Default() (*Catalog, error) {
	return Parse(defaultUnits)
}

// Load reads a catalog file; an empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("units catalog: %w", err)
	}
	c := &Catalog{kinds: map[string]units.Components{}, Digest: sha256Hex(raw)}
	for _, k := range spec.Kinds {
		if k.Name == "" {
			return nil, fmt.Errorf("units catalog: kind without name")
		}
		if _, dup := c.kinds[k.Name]; dup {
			return nil, fmt.Errorf("units catalog: duplicate kind %q", k.Name)
		}
		if b := k.Components.Building; b != nil && b.Size <= 0 {
			return nil, fmt.Errorf("units catalog: %s: building size must be positive", k.Name)
		}
		c.kinds[k.Name] = k.Components
		c.Names = append(c.Names, k.Name)
	}
	for name, comps := range c.kinds {
		if pf := comps.ProductionFacility; pf != nil {
			for _, p := range pf.UnitsProduced {
				if _, ok := c.kinds[p.UnitType]; !ok {
					return nil, fmt.Errorf("units catalog: %s produces unknown kind %q", name, p.UnitType)
				}
			}
		}
		if b := comps.Builder; b != nil {
			for _, o := range b.BuildingsProduced {
				t, ok := c.kinds[o.BuildingType]
				if !ok || t.Building == nil {
					return nil, fmt.Errorf("units catalog: %s builds unknown building %q", name, o.BuildingType)
				}
			}
		}
	}
	return c, nil
}

func (c *Catalog) Has(kind string) bool {
	_, ok := c.kinds[kind]
	return ok
}

// Template returns a fresh copy of a kind's components.
func (c *Catalog) Template(kind string) (units.Components, bool) {
	t, ok := c.kinds[kind]
	if !ok {
		return units.Components{}, false
	}
	return t.Clone(), true
}

// Create instantiates a unit of kind, idle at pos.
func (c *Catalog) Create(id, owner int, kind string, pos vec.Vec2) (*units.Unit, error) {
	comps, ok := c.Template(kind)
	if !ok {
		return nil, fmt.Errorf("unknown unit kind %q", kind)
	}
	return &units.Unit{
		ID:         id,
		Kind:       kind,
		Owner:      owner,
		Position:   pos,
		Components: comps,
		State:      units.IdleAt(pos),
	}, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
