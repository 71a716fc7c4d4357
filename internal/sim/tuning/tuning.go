package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	WinBuildingElimination = "BuildingElimination"
	WinOneLeft             = "OneLeft"
)

type Tuning struct {
	TickIntervalMs    int     `yaml:"tick_interval_ms"`
	PrecountMs        float64 `yaml:"precount_ms"`
	Players           int     `yaml:"players"`
	StartingResources int     `yaml:"starting_resources"`
	MaxPlayerUnits    int     `yaml:"max_player_units"`
	WinCondition      string  `yaml:"win_condition"`

	Movement Movement `yaml:"movement"`
	Combat   Combat   `yaml:"combat"`
}

// Movement holds pathing and local steering constants. Distances are in tiles.
type Movement struct {
	ScanRadius             int     `yaml:"scan_radius"`
	UnitRadius             float64 `yaml:"unit_radius"`
	ObstacleDistance       float64 `yaml:"obstacle_distance"`
	ArcMargin              float64 `yaml:"arc_margin"`
	SeparationDistance     float64 `yaml:"separation_distance"`
	MaxSeparationNeighbor  float64 `yaml:"max_separation_neighbor"`
	MaxSeparationTotal     float64 `yaml:"max_separation_total"`
	TerrainAvoidanceRadius float64 `yaml:"terrain_avoidance_radius"`
	TerrainAvoidanceWeight float64 `yaml:"terrain_avoidance_weight"`
	PathRecomputeDistance  float64 `yaml:"path_recompute_distance"`
	ArrivalTolerance       float64 `yaml:"arrival_tolerance"`
}

// Combat holds interaction ranges. Distances to buildings are measured to
// their footprint perimeter.
type Combat struct {
	MaxIdleAggroRange      float64 `yaml:"max_idle_aggro_range"`
	RangeCompensation      float64 `yaml:"range_compensation"`
	AttackMoveMaxDeviation float64 `yaml:"attack_move_max_deviation"`
	FollowDistance         float64 `yaml:"follow_distance"`
	HarvestDistance        float64 `yaml:"harvest_distance"`
	DropoffDistance        float64 `yaml:"dropoff_distance"`
	BuildDistance          float64 `yaml:"build_distance"`
	DropoffKind            string  `yaml:"dropoff_kind"`
}

func Defaults() Tuning {
	return Tuning{
		TickIntervalMs:    50,
		PrecountMs:        3000,
		Players:           2,
		StartingResources: 500,
		MaxPlayerUnits:    50,
		WinCondition:      WinBuildingElimination,
		Movement: Movement{
			ScanRadius:             3,
			UnitRadius:             0.5,
			ObstacleDistance:       2.0,
			ArcMargin:              0.1,
			SeparationDistance:     1.0,
			MaxSeparationNeighbor:  0.5,
			MaxSeparationTotal:     1.0,
			TerrainAvoidanceRadius: 1.2,
			TerrainAvoidanceWeight: 0.5,
			PathRecomputeDistance:  1.5,
			ArrivalTolerance:       0.1,
		},
		Combat: Combat{
			MaxIdleAggroRange:      8,
			RangeCompensation:      0.2,
			AttackMoveMaxDeviation: 6,
			FollowDistance:         2,
			HarvestDistance:        1,
			DropoffDistance:        1,
			BuildDistance:          1.5,
			DropoffKind:            "Base",
		},
	}
}

// Load overlays the file on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be positive")
	}
	if t.Players < 2 {
		return fmt.Errorf("players must be at least 2")
	}
	if t.MaxPlayerUnits <= 0 {
		return fmt.Errorf("max_player_units must be positive")
	}
	switch t.WinCondition {
	case WinBuildingElimination, WinOneLeft:
	default:
		return fmt.Errorf("unknown win_condition %q", t.WinCondition)
	}
	return nil
}
