package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serializer renders a manifest into the bytes stored in the archive.
type Serializer func(m *Manifest) ([]byte, error)

const (
	// FormatJSON selects the JSON serializer.
	FormatJSON = "json"
	// FormatYAML selects the YAML serializer.
	FormatYAML = "yaml"

	indent = "  "
)

// errUnknownFormat is returned for a manifest format without a serializer.
var errUnknownFormat = errors.New("unknown manifest format")

// JSON renders the manifest as JSON indented with two spaces.
// Characters such as '<' and '&' are written as is.
func JSON(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", indent)

	if err := encoder.Encode(m); err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// YAML renders the manifest as a YAML document indented with two spaces.
func YAML(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(len(indent))

	if err := encoder.Encode(m); err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	return buf.Bytes(), nil
}

// SerializerFor returns the serializer registered for a format name.
// An empty name selects JSON.
func SerializerFor(format string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return JSON, nil
	case FormatYAML, "yml":
		return YAML, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownFormat, format)
	}
}

// Decode parses a JSON manifest.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	return &m, nil
}
