// Package output renders command results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how a command prints its result (-o / --output).
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var formatAliases = map[string]Format{
	"":      FormatTable,
	"table": FormatTable,
	"json":  FormatJSON,
	"yaml":  FormatYAML,
	"yml":   FormatYAML,
}

// ParseFormat accepts table, json, yaml or yml in any case. Empty means table.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid output format %q: use table, json or yaml", s)
}

func (f Format) String() string { return string(f) }

// Print writes data in the given format. Values that do not implement
// TableRenderer are printed as JSON when a table is requested.
func Print(w io.Writer, format Format, data any) error {
	switch format {
	case FormatTable:
		if t, ok := data.(TableRenderer); ok {
			return PrintTable(w, t)
		}
		return PrintJSON(w, data)
	case FormatJSON:
		return PrintJSON(w, data)
	case FormatYAML:
		return PrintYAML(w, data)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// PrintJSON writes data as two-space indented JSON.
func PrintJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintYAML writes data as YAML with two-space indentation.
func PrintYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}
