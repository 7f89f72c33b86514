package route

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type routesFile struct {
	Buses []Definition `yaml:"buses"`
}

// Load reads route definitions from a yaml file and validates them.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Model from raw yaml route definitions.
func Parse(data []byte) (*Model, error) {
	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}
	if len(file.Buses) == 0 {
		return nil, fmt.Errorf("routes file defines no buses")
	}

	v := validator.New()
	for _, def := range file.Buses {
		if err := v.Struct(def); err != nil {
			return nil, fmt.Errorf("route definition for %q: %w", def.BusID, err)
		}
	}
	return New(file.Buses), nil
}

// New builds a Model from already-validated definitions.
func New(defs []Definition) *Model {
	byBus := make(map[string]Definition, len(defs))
	for _, def := range defs {
		byBus[def.BusID] = def
	}
	return &Model{byBus: byBus}
}
