package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"stronghold/server/internal/grid"
	"stronghold/server/internal/net/proto"
)

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the JSON schemas")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	for name, schema := range buildSchemas() {
		outPath := filepath.Join(outDir, name+".schema.json")
		if err := writeSchema(outPath, schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", outPath, err)
			os.Exit(1)
		}
	}
}

func buildSchemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}

	mapSchema := reflector.Reflect(new(grid.Descriptor))
	mapSchema.Title = "Stronghold Map Descriptor"
	mapSchema.Description = "Validates map documents produced by the map editor"

	clientSchema := reflector.Reflect(new(proto.ClientMessage))
	clientSchema.Title = "Stronghold Client Message"
	clientSchema.Description = "Validates client-to-server websocket payloads"

	stateSchema := reflector.Reflect(new(proto.StateSnapshotV1))
	stateSchema.Title = "Stronghold State Frame"
	stateSchema.Description = "Validates the per-tick state broadcast"

	return map[string]*jsonschema.Schema{
		"map-descriptor": mapSchema,
		"client-message": clientSchema,
		"state-frame":    stateSchema,
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
