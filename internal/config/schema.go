package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const settingsSchemaURL = "lensrecipe://settings.schema.json"

const settingsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["model"],
  "properties": {
    "pixel-size": {"type": "number", "exclusiveMinimum": 0},
    "band": {"type": "array", "items": {"type": "string"}},
    "model": {
      "type": "object",
      "properties": {
        "lens": {"$ref": "#/$defs/names"},
        "lens-light": {"$ref": "#/$defs/names"},
        "source-light": {"$ref": "#/$defs/names"},
        "point-source": {"$ref": "#/$defs/names"}
      }
    },
    "deflector-option": {
      "type": ["object", "null"],
      "properties": {
        "centroid-init": {"type": "array", "items": {"type": "number"}, "minItems": 2, "maxItems": 2},
        "centroid-bound": {"type": ["number", "null"], "minimum": 0}
      }
    },
    "fitting": {
      "type": ["object", "null"],
      "properties": {
        "pso": {"type": ["boolean", "null"]},
        "psf_iteration": {"type": ["boolean", "null"]},
        "sampling": {"type": ["boolean", "null"]},
        "sampler": {"type": ["string", "null"]},
        "pso_settings": {
          "type": "object",
          "properties": {
            "num_particle": {"type": "integer", "minimum": 1},
            "num_iteration": {"type": "integer", "minimum": 1}
          }
        },
        "mcmc_settings": {
          "type": "object",
          "properties": {
            "burnin_step": {"type": "integer", "minimum": 0},
            "iteration_step": {"type": "integer", "minimum": 0},
            "walker_ratio": {"type": "integer", "minimum": 1}
          }
        }
      }
    },
    "guess_params": {"type": ["object", "null"]},
    "fitting_kwargs_list": {
      "type": ["array", "null"],
      "items": {"type": "array", "minItems": 2, "maxItems": 2, "prefixItems": [{"type": "string"}]}
    }
  },
  "$defs": {
    "names": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(settingsSchemaURL, strings.NewReader(settingsSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to add settings schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(settingsSchemaURL)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a JSON-encoded settings document against the
// settings schema.
func validateSchema(raw []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("failed to decode settings for validation: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return formatSchemaError(ve)
		}
		return err
	}
	return nil
}

func formatSchemaError(ve *jsonschema.ValidationError) error {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	location := leaf.InstanceLocation
	if location == "" {
		location = "/"
	}
	return fmt.Errorf("%s: %s", location, leaf.Message)
}

// JSONCompatible converts YAML mappings with non-string keys into
// string-keyed maps so a decoded document can be encoded as JSON.
func JSONCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = JSONCompatible(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = JSONCompatible(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = JSONCompatible(val)
		}
		return out
	}
	return v
}
