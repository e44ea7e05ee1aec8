package apptables

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToCSV exports every row of the table. The header is "id" followed by the
// column names in schema order. Link cells hold row ids, multiple links
// joined by ';', and simple objects are written as JSON.
func (t *Table) ToCSV(ctx context.Context) (string, error) {
	it, err := t.Search(ctx, nil)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"id"}, t.schema.ColumnNames()...)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}

	for it.Next(ctx) {
		row := it.Row()
		record := make([]string, 0, len(header))
		record = append(record, row.ID())

		row.mu.Lock()
		data := row.data
		row.mu.Unlock()

		for _, col := range t.schema.Columns {
			cell, err := csvCell(col, data[col.Name])
			if err != nil {
				return "", fmt.Errorf("row %s: %w", row.Key(), err)
			}
			record = append(record, cell)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	if err := it.Err(); err != nil {
		return "", err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.String(), nil
}

// csvCell formats a stored value.
func csvCell(col Column, v any) (string, error) {
	if v == nil {
		return "", nil
	}

	switch col.Type {
	case ColumnLinkMultiple:
		ids, _ := v.([]any)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, fmt.Sprint(id))
		}
		return strings.Join(parts, ";"), nil
	case ColumnSimpleObject:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col.Name, err)
		}
		return string(b), nil
	case ColumnNumber:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
	case ColumnBool:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	}
	return fmt.Sprint(v), nil
}
