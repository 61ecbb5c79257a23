package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/cwbudde/lensrecipe/internal/model"
)

// Load reads, validates and decodes a settings file.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	s, err := LoadFromReader(f)
	if err != nil {
		return nil, err
	}

	slog.Debug("Settings loaded", "path", path, "bands", len(s.Band), "lens", s.Model.Lens)
	return s, nil
}

// LoadFromReader decodes settings from r. The document is checked against
// the settings schema before it is decoded into Settings, and profile names
// are checked against the supported vocabulary afterwards.
func LoadFromReader(r io.Reader) (*Settings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode settings YAML: %w", err)
	}

	// Decoding through JSON makes null toggles read as their zero value.
	raw, err := json.Marshal(JSONCompatible(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return &s, nil
}

// Validate checks the semantic constraints the schema cannot express.
func (s *Settings) Validate() error {
	for _, cat := range model.Categories {
		if _, err := model.ParseProfiles(cat, s.ModelNames(cat)); err != nil {
			return err
		}
	}
	for component := range s.GuessParams {
		if _, err := model.ParseCategory(component); err != nil {
			return fmt.Errorf("guess_params: %w", err)
		}
	}
	if s.Mask != nil && s.Mask.Provided == nil && len(s.Mask.Size) > 0 {
		n := len(s.Mask.Size)
		if len(s.Mask.RaAtXY0) != n || len(s.Mask.DecAtXY0) != n ||
			len(s.Mask.TransformMatrix) != n || len(s.Mask.Radius) != n {
			return fmt.Errorf("mask options must have one entry per band (%d)", n)
		}
	}
	return nil
}
