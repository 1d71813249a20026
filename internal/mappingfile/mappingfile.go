// Package mappingfile reads and writes entity mapping files.
//
// A mapping file lists one entity per row with three fields: the friendly
// name, the current entity id, and the new entity id. CSV is the default
// format; YAML and JSON (with comments) are selected by file extension.
package mappingfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/hassrename/hren/internal/atomicfile"
	"github.com/hassrename/hren/internal/plan"
)

// Column headers used in CSV files.
const (
	ColumnLabel = "Friendly Name"
	ColumnID    = "Current Entity ID"
	ColumnNewID = "New Entity ID"
)

// Format is a mapping file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from path's extension. Unknown extensions
// are read and written as CSV.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json", ".jsonc":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// Read loads the mapping rows in path.
func Read(path string) ([]plan.MappingRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var rows []plan.MappingRow
	switch FormatFor(path) {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(jsonc.ToJSON(data), &rows); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		rows, err = decodeCSV(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return rows, nil
}

// Write replaces path with rows, encoded in the format its extension
// selects.
func Write(path string, rows []plan.MappingRow) error {
	format := FormatFor(path)
	return atomicfile.WriteWith(path, 0, func(w io.Writer) error {
		return Encode(w, format, rows)
	})
}

// Encode writes rows to w in format.
func Encode(w io.Writer, format Format, rows []plan.MappingRow) error {
	if rows == nil {
		rows = []plan.MappingRow{}
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	default:
		return encodeCSV(w, rows)
	}
}
