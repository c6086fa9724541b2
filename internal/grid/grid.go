package grid

import (
	"errors"
	"fmt"
)

// TileType enumerates the terrain/resource tokens a map descriptor may carry.
type TileType string

const (
	TileEmpty TileType = "EMPTY"
	TileWood  TileType = "WOOD"
	TileStone TileType = "STONE"
	TileWheat TileType = "WHEAT"
	TileMetal TileType = "METAL"
	TileGold  TileType = "GOLD"
	TileWall  TileType = "WALL"
)

// Valid reports whether the token belongs to the descriptor enumeration.
func (t TileType) Valid() bool {
	switch t {
	case TileEmpty, TileWood, TileStone, TileWheat, TileMetal, TileGold, TileWall:
		return true
	default:
		return false
	}
}

// Harvestable reports whether the tile type carries a depletable stock.
func (t TileType) Harvestable() bool {
	switch t {
	case TileWood, TileStone, TileWheat, TileMetal, TileGold:
		return true
	default:
		return false
	}
}

// Collidable reports whether movement is blocked by the tile. Trees and walls
// block, resource deposits that sit flush with the ground do not.
func (t TileType) Collidable() bool {
	return t == TileWood || t == TileWall
}

// ErrOutOfBounds is returned for tile lookups outside the grid.
var ErrOutOfBounds = errors.New("grid: coordinates out of bounds")

// Tile is one cell of the world grid. Type never changes after load;
// Remaining is mutated only by Harvest inside a tick.
type Tile struct {
	Type      TileType `json:"type"`
	Remaining int      `json:"remaining"`
}

// Point is a tile coordinate pair from the descriptor.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid is the tile-indexed terrain map for one session. Dimensions are fixed
// at load; only resource stock mutates afterwards.
type Grid struct {
	width       int
	height      int
	tileSize    int
	name        string
	tiles       []Tile
	spawnPoints []Point
	objectives  []Point
}

// Width reports the grid width in tiles.
func (g *Grid) Width() int { return g.width }

// Height reports the grid height in tiles.
func (g *Grid) Height() int { return g.height }

// TileSize reports the world-unit edge length of one tile.
func (g *Grid) TileSize() int { return g.tileSize }

// Name reports the descriptor's map name.
func (g *Grid) Name() string { return g.name }

// SpawnPoints returns a copy of the hero spawn locations.
func (g *Grid) SpawnPoints() []Point {
	return append([]Point(nil), g.spawnPoints...)
}

// Objectives returns a copy of the objective locations (town hall sites).
func (g *Grid) Objectives() []Point {
	return append([]Point(nil), g.objectives...)
}

// TileAt returns the tile at (x, y) or ErrOutOfBounds.
func (g *Grid) TileAt(x, y int) (Tile, error) {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return Tile{}, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	return g.tiles[y*g.width+x], nil
}

// Harvest removes up to amount from the tile's stock and returns how much was
// actually taken. Stock never goes negative; non-harvestable tiles yield zero.
func (g *Grid) Harvest(x, y, amount int) (int, error) {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return 0, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	if amount <= 0 {
		return 0, nil
	}
	tile := &g.tiles[y*g.width+x]
	if !tile.Type.Harvestable() {
		return 0, nil
	}
	taken := amount
	if taken > tile.Remaining {
		taken = tile.Remaining
	}
	tile.Remaining -= taken
	return taken, nil
}

// InBounds reports whether a continuous world coordinate lies on the grid.
func (g *Grid) InBounds(x, y float64) bool {
	return x >= 0 && y >= 0 && x < float64(g.width) && y < float64(g.height)
}

// BlockedAt reports whether the tile under a continuous coordinate is
// collidable. Out-of-range coordinates count as blocked.
func (g *Grid) BlockedAt(x, y float64) bool {
	tx, ty := int(x), int(y)
	if tx < 0 || ty < 0 || tx >= g.width || ty >= g.height {
		return true
	}
	return g.tiles[ty*g.width+tx].Type.Collidable()
}
