package parser

import (
	"fmt"
	"io"
	"os"

	"mercator-hq/honeywire/pkg/honeywire"
)

// ParseBytes parses a honeyaml document held in memory.
func ParseBytes(data []byte) (*honeywire.Config, error) {
	src, err := NewYAMLEvents(data)
	if err != nil {
		return nil, err
	}
	return Parse(src)
}

// ParseReader reads r to the end and parses it.
func ParseReader(r io.Reader) (*honeywire.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read honeyaml: %w", err)
	}
	return ParseBytes(data)
}

// ParseFile parses the honeyaml file at path.
func ParseFile(path string) (*honeywire.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read honeyaml file %q: %w", path, err)
	}
	return ParseBytes(data)
}
