package dag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Format is a graph file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension, defaulting to YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes a graph definition.
func Parse(data []byte, format Format) (Definition, error) {
	var def Definition
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &def)
	case FormatYAML:
		err = yaml.Unmarshal(data, &def)
	default:
		return def, fmt.Errorf("dag: unsupported format %q", format)
	}
	if err != nil {
		return def, fmt.Errorf("dag: parsing %s graph: %w", format, err)
	}
	return def, nil
}

// LoadFile reads and parses a graph file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("dag: reading %s: %w", path, err)
	}
	return Parse(data, FormatFromPath(path))
}

// Encode renders def in format.
func Encode(def Definition, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(def, "", "  ")
	case FormatYAML:
		return yaml.Marshal(def)
	default:
		return nil, fmt.Errorf("dag: unsupported format %q", format)
	}
}

// Resolve returns a registered template when ref names one, otherwise
// loads ref as a file path. An empty ref yields the default pipeline.
func Resolve(reg *Registry, ref string) (Definition, error) {
	if ref == "" {
		ref = DefaultTemplate
	}
	if reg != nil {
		if def, ok := reg.Get(ref); ok {
			return def, nil
		}
	}
	return LoadFile(ref)
}
