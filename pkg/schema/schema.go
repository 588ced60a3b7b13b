// Package schema checks model payloads against the entity catalog shape.
// The check is advisory: it reports warnings and never alters the payload.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/menta2k/entity-extractor/pkg/types"
)

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// BuildCatalogJSONSchema returns the catalog JSON Schema as a generic map.
func BuildCatalogJSONSchema() map[string]any {
	entity := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"category":    map[string]any{"type": "string", "enum": types.Categories},
			"confidence":  map[string]any{"type": "string", "enum": types.ConfidenceLevels},
			"location":    map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"count":       map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"name", "category"},
	}

	summary := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"total_entities":    map[string]any{"type": "integer", "minimum": 0},
			"categories_found":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"scene_description": map[string]any{"type": "string"},
		},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{"type": "array", "items": entity},
			"summary":  summary,
		},
		"required": []string{"entities"},
	}
}

func catalogSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(BuildCatalogJSONSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("catalog.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("catalog.json")
	})
	return compiled, compileErr
}

// Check validates a parsed payload and returns one warning per violated
// leaf constraint, in document order. A nil slice means the payload fits.
func Check(payload map[string]any) []types.SchemaWarning {
	s, err := catalogSchema()
	if err != nil {
		return []types.SchemaWarning{{Path: "", Message: err.Error()}}
	}

	err = s.Validate(payload)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []types.SchemaWarning{{Path: "", Message: err.Error()}}
	}

	var warnings []types.SchemaWarning
	collectLeaves(ve, &warnings)
	return warnings
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]types.SchemaWarning) {
	if len(ve.Causes) == 0 {
		path := ve.InstanceLocation
		if path == "" {
			path = "/"
		}
		*out = append(*out, types.SchemaWarning{Path: path, Message: ve.Message})
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}
