package mappingfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hassrename/hren/internal/plan"
)

// decodeCSV reads a header-driven CSV. Only the Current Entity ID column
// is required; columns are matched by name in any order. Cells are kept
// verbatim, including leading spaces in friendly names.
func decodeCSV(r io.Reader) ([]plan.MappingRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	idCol, ok := index[ColumnID]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", ColumnID)
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []plan.MappingRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if idCol >= len(record) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: missing %q value", line, ColumnID)
		}
		rows = append(rows, plan.MappingRow{
			Label: field(record, ColumnLabel),
			ID:    record[idCol],
			NewID: field(record, ColumnNewID),
		})
	}
	return rows, nil
}

func encodeCSV(w io.Writer, rows []plan.MappingRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{ColumnLabel, ColumnID, ColumnNewID}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writer.Write([]string{r.Label, r.ID, r.NewID}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
