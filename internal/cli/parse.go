package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// parseAssignments parses "column=value" pairs. A value that is valid JSON
// is decoded, so numbers, bools, lists, objects and reference objects such
// as {"_table":"employees","_id":"E1"} keep their type. Anything else is a
// string; "null" clears a column.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		column, raw, ok := strings.Cut(pair, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid assignment %q, want column=value", pair)
		}
		out[column] = parseValue(raw)
	}
	return out, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
