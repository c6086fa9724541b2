package grid

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// MapFormatError reports a structural problem in a map descriptor. It is
// fatal at load and aborts session start.
type MapFormatError struct {
	Reason string
}

func (e *MapFormatError) Error() string {
	return "map format: " + e.Reason
}

func formatErrorf(format string, args ...any) error {
	return &MapFormatError{Reason: fmt.Sprintf(format, args...)}
}

// Metadata mirrors the descriptor header produced by the map editor.
type Metadata struct {
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	TileSize int    `json:"tile_size"`
}

// Descriptor is the on-disk map document: a header, a row-major token grid,
// hero spawn points and objective sites.
type Descriptor struct {
	Metadata    Metadata   `json:"metadata"`
	MapData     [][]string `json:"map_data"`
	SpawnPoints []Point    `json:"spawn_points"`
	Objectives  []Point    `json:"objectives"`
}

// DefaultResourceStock is the initial stock assigned to harvestable tiles
// when the descriptor does not override it.
const DefaultResourceStock = 100

// Load builds a Grid from a descriptor, failing with MapFormatError when the
// dimensions disagree with map_data or a tile token is not recognised.
func Load(desc Descriptor) (*Grid, error) {
	width := desc.Metadata.Width
	height := desc.Metadata.Height
	if width <= 0 || height <= 0 {
		return nil, formatErrorf("invalid dimensions %dx%d", width, height)
	}
	if len(desc.MapData) != height {
		return nil, formatErrorf("map_data has %d rows, metadata says %d", len(desc.MapData), height)
	}

	tileSize := desc.Metadata.TileSize
	if tileSize <= 0 {
		tileSize = 32
	}

	g := &Grid{
		width:       width,
		height:      height,
		tileSize:    tileSize,
		name:        desc.Metadata.Name,
		tiles:       make([]Tile, width*height),
		spawnPoints: append([]Point(nil), desc.SpawnPoints...),
		objectives:  append([]Point(nil), desc.Objectives...),
	}

	for y, row := range desc.MapData {
		if len(row) != width {
			return nil, formatErrorf("row %d has %d tiles, metadata says %d", y, len(row), width)
		}
		for x, token := range row {
			tileType := TileType(token)
			if !tileType.Valid() {
				return nil, formatErrorf("unknown tile token %q at (%d,%d)", token, x, y)
			}
			tile := Tile{Type: tileType}
			if tileType.Harvestable() {
				tile.Remaining = DefaultResourceStock
			}
			g.tiles[y*width+x] = tile
		}
	}

	for _, p := range g.spawnPoints {
		if p.X < 0 || p.Y < 0 || p.X >= width || p.Y >= height {
			return nil, formatErrorf("spawn point (%d,%d) outside %dx%d", p.X, p.Y, width, height)
		}
	}
	for _, p := range g.objectives {
		if p.X < 0 || p.Y < 0 || p.X >= width || p.Y >= height {
			return nil, formatErrorf("objective (%d,%d) outside %dx%d", p.X, p.Y, width, height)
		}
	}

	return g, nil
}

// LoadReader decodes a JSON descriptor and loads it.
func LoadReader(r io.Reader) (*Grid, error) {
	var desc Descriptor
	if err := json.NewDecoder(r).Decode(&desc); err != nil {
		return nil, formatErrorf("invalid JSON: %v", err)
	}
	return Load(desc)
}

// LoadFile reads a descriptor file and loads it.
func LoadFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map descriptor: %w", err)
	}
	defer f.Close()
	return LoadReader(f)
}

// Uniform builds an all-one-token grid, used by tests and as the fallback map
// when no descriptor is configured.
func Uniform(width, height int, tileType TileType) *Grid {
	rows := make([][]string, height)
	for y := range rows {
		row := make([]string, width)
		for x := range row {
			row[x] = string(tileType)
		}
		rows[y] = row
	}
	g, err := Load(Descriptor{
		Metadata: Metadata{Name: "uniform", Width: width, Height: height, TileSize: 32},
		MapData:  rows,
	})
	if err != nil {
		panic(err)
	}
	return g
}
