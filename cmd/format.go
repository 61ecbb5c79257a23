package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// writeFormatted encodes v as indented JSON or as YAML. YAML goes through
// the JSON encoding first so that custom JSON marshalers (recipes, masks)
// define the document shape.
func writeFormatted(w io.Writer, v any, format string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	switch format {
	case formatJSON, "":
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case formatYAML:
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		out, err := yaml.MarshalWithOptions(doc, yaml.IndentSequence(true))
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q (json, yaml)", format)
	}
}

// writeOutput writes v to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, v any, format string) error {
	if path == "" {
		return writeFormatted(w, v, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeFormatted(f, v, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
