package entity

// Class tags a hero with its fixed capability set. The tag resolves to a stat
// template; heroes never change class during a session.
type Class string

const (
	ClassTank    Class = "TANK"
	ClassBuilder Class = "BUILDER"
	ClassArcher  Class = "ARCHER"
	ClassMage    Class = "MAGE"
)

// ClassStats is the capability table resolved from a hero's class tag.
type ClassStats struct {
	MaxHealth    int
	Speed        float64
	BuildSpeed   float64
	AttackDamage int
	AttackRange  float64
	AttackSpeed  float64
	Ranged       bool
}

var classTable = map[Class]ClassStats{
	ClassTank:    {MaxHealth: 200, Speed: 2, BuildSpeed: 1.0, AttackDamage: 15, AttackRange: 1.5, AttackSpeed: 0.8},
	ClassBuilder: {MaxHealth: 150, Speed: 4, BuildSpeed: 2.0, AttackDamage: 8, AttackRange: 1.2, AttackSpeed: 1.0},
	ClassArcher:  {MaxHealth: 80, Speed: 4, BuildSpeed: 1.0, AttackDamage: 12, AttackRange: 6.0, AttackSpeed: 1.5, Ranged: true},
	ClassMage:    {MaxHealth: 70, Speed: 3, BuildSpeed: 1.0, AttackDamage: 40, AttackRange: 4.0, AttackSpeed: 0.5, Ranged: true},
}

// StatsForClass resolves the capability table for a class tag.
func StatsForClass(c Class) (ClassStats, bool) {
	stats, ok := classTable[c]
	return stats, ok
}

// ParseClass validates a class token from the wire.
func ParseClass(value string) (Class, bool) {
	c := Class(value)
	_, ok := classTable[c]
	return c, ok
}

// EnemyStats is the stat template for one enemy archetype.
type EnemyStats struct {
	MaxHealth    int
	Speed        float64
	AttackDamage int
	Armor        int
	AttackRange  float64
	AttackSpeed  float64
	Ranged       bool
}

const (
	EnemyBasic  = "BASIC"
	EnemyRanged = "RANGED"
	EnemyHeavy  = "HEAVY"
	EnemyFast   = "FAST"
)

var enemyTable = map[string]EnemyStats{
	EnemyBasic:  {MaxHealth: 30, Speed: 4.0, AttackDamage: 10, AttackRange: 1.0, AttackSpeed: 1.0},
	EnemyRanged: {MaxHealth: 20, Speed: 3.0, AttackDamage: 8, AttackRange: 3.5, AttackSpeed: 1.2, Ranged: true},
	EnemyHeavy:  {MaxHealth: 50, Speed: 2.5, AttackDamage: 15, Armor: 2, AttackRange: 1.2, AttackSpeed: 0.7},
	EnemyFast:   {MaxHealth: 15, Speed: 6.0, AttackDamage: 6, AttackRange: 0.8, AttackSpeed: 1.5},
}

// StatsForEnemy resolves the stat template for an enemy archetype.
func StatsForEnemy(archetype string) (EnemyStats, bool) {
	stats, ok := enemyTable[archetype]
	return stats, ok
}

// BuildingStats describes a placeable structure.
type BuildingStats struct {
	MaxHealth int
	Width     int
	Height    int
	Cost      map[string]int
	// Produces names the resource credited on the production cadence, empty
	// for non-producing structures.
	Produces string
	// Tower attack parameters; zero range means the building cannot attack.
	AttackDamage int
	AttackRange  float64
}

const (
	BuildingTownHall   = "TOWN_HALL"
	BuildingWall       = "WALL"
	BuildingTower      = "TOWER"
	BuildingFarm       = "FARM"
	BuildingWoodCutter = "WOOD_CUTTER"
	BuildingMine       = "MINE"
	BuildingGoldMine   = "GOLD_MINE"
)

var buildingTable = map[string]BuildingStats{
	BuildingTownHall:   {MaxHealth: 1000, Width: 3, Height: 3},
	BuildingWall:       {MaxHealth: 50, Width: 1, Height: 1, Cost: map[string]int{"wood": 10}},
	BuildingTower:      {MaxHealth: 100, Width: 1, Height: 1, Cost: map[string]int{"wood": 20, "stone": 15}, AttackDamage: 8, AttackRange: 5.0},
	BuildingFarm:       {MaxHealth: 75, Width: 2, Height: 2, Cost: map[string]int{"wood": 15}, Produces: "wheat"},
	BuildingWoodCutter: {MaxHealth: 80, Width: 2, Height: 2, Cost: map[string]int{"wood": 20}, Produces: "wood"},
	BuildingMine:       {MaxHealth: 100, Width: 2, Height: 2, Cost: map[string]int{"wood": 25, "stone": 10}, Produces: "stone"},
	BuildingGoldMine:   {MaxHealth: 120, Width: 2, Height: 2, Cost: map[string]int{"wood": 30, "stone": 20}, Produces: "gold"},
}

// StatsForBuilding resolves the table entry for a building type.
func StatsForBuilding(kind string) (BuildingStats, bool) {
	stats, ok := buildingTable[kind]
	return stats, ok
}

// MaxFootprintRadius is the largest collision radius any entity can carry.
// Spatial queries that must not miss a candidate pad their range by this
// much; buildings are centred on their footprint, so the widest one sets it.
func MaxFootprintRadius() float64 {
	max := 0.5
	for _, stats := range buildingTable {
		if r := float64(stats.Width) / 2; r > max {
			max = r
		}
		if r := float64(stats.Height) / 2; r > max {
			max = r
		}
	}
	return max
}
