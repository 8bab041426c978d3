// Package config loads strategy-parameter overlays from YAML files for the
// simulator CLI. The engine itself carries its defaults in code; files only
// override them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-aec/engine"
)

// File is the on-disk configuration layout.
type File struct {
	// Mode selects the initially active strategy.
	Mode string `yaml:"mode"`
	// Strategies maps strategy names to parameter overrides.
	Strategies map[string]StrategyParams `yaml:"strategies"`
}

// StrategyParams holds one strategy's overrides.
type StrategyParams struct {
	Num map[string]float64 `yaml:"num"`
	Str map[string]string  `yaml:"str"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML configuration bytes.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parse: %w", err)
	}

	return f, nil
}

// Overrides converts the file into the engine's per-strategy override map.
func (f File) Overrides() map[string]engine.Params {
	if len(f.Strategies) == 0 {
		return nil
	}

	out := make(map[string]engine.Params, len(f.Strategies))
	for name, p := range f.Strategies {
		out[name] = engine.Params{Num: p.Num, Str: p.Str}
	}

	return out
}
