// Package config describes pipeline configuration files and the option bags
// handed to each stage.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Pipeline is one configured run: where the data comes from, how it is
// parsed and transformed, and what it is converted into.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `json:"job" toml:"job"`

	Source    Source      `json:"source" toml:"source"`
	Parser    Parser      `json:"parser" toml:"parser"`
	Transform []Transform `json:"transform,omitempty" toml:"transform,omitempty"`
	Convert   Convert     `json:"convert" toml:"convert"`
	Storage   Storage     `json:"storage,omitempty" toml:"storage,omitempty"`
}

// Source selects a registered loader and the path it reads.
type Source struct {
	Kind    string  `json:"kind" toml:"kind"`
	Path    string  `json:"path" toml:"path"`
	Options Options `json:"options,omitempty" toml:"options,omitempty"`
}

// Parser selects a registered parser.
type Parser struct {
	Kind    string  `json:"kind" toml:"kind"`
	Options Options `json:"options,omitempty" toml:"options,omitempty"`
}

// Transform is one step of the transform chain. Steps run in file order.
type Transform struct {
	Kind    string  `json:"kind" toml:"kind"`
	Options Options `json:"options,omitempty" toml:"options,omitempty"`
}

// Convert selects the terminal stage: "materialize" or "relational".
//
// Target lists canonical field names for the materializer's declared-target
// mode; when empty a shape is generated from the data.
type Convert struct {
	Kind    string   `json:"kind" toml:"kind"`
	Target  []string `json:"target,omitempty" toml:"target,omitempty"`
	Options Options  `json:"options,omitempty" toml:"options,omitempty"`
}

// Storage configures the relational sink backend.
type Storage struct {
	Kind string   `json:"kind" toml:"kind"`
	DB   DBConfig `json:"db" toml:"db"`
}

// DBConfig holds the connection and the destination table.
type DBConfig struct {
	DSN   string `json:"dsn" toml:"dsn"`
	Table string `json:"table" toml:"table"`
}

// Load reads a pipeline file. ".toml" files are decoded as TOML, everything
// else as JSON.
func Load(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(raw, strings.ToLower(filepath.Ext(path)))
}

// Decode parses raw config bytes; ext selects the format (".toml" or JSON).
func Decode(raw []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch ext {
	case ".toml":
		if err := toml.Unmarshal(raw, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode toml config: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode json config: %w", err)
		}
	}
	return p, nil
}
