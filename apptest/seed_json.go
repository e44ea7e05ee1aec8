package apptest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/nisimpson/apptables"
	"github.com/nisimpson/apptables/tablekit"
)

// SeedDocument maps table names to the rows to import into them. A row may
// carry its id under "_id"; link values are reference objects:
//
//	{
//	  "employees": [
//	    {"_id": "E1", "name": "Alice", "manager": {"_table": "employees", "_id": "E1"}}
//	  ]
//	}
type SeedDocument map[string][]map[string]any

// SeedFromJSON imports the rows of a JSON seed document into tables.
// Links are stored by id, so rows may reference rows seeded later in the
// same document, or themselves. Returns the number of rows saved.
func SeedFromJSON(ctx context.Context, tables *apptables.Tables, r io.Reader) (int, error) {
	var document SeedDocument
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return 0, fmt.Errorf("failed to parse JSON document: %w", err)
	}
	return Seed(ctx, tables, document)
}

// Seed imports the rows of document into tables, table by table in name order.
func Seed(ctx context.Context, tables *apptables.Tables, document SeedDocument) (int, error) {
	names := make([]string, 0, len(document))
	for name := range document {
		names = append(names, name)
	}
	sort.Strings(names)

	ser := &tablekit.Serializer{Tables: tables}
	count := 0
	for _, name := range names {
		table, err := tables.Get(name)
		if err != nil {
			return count, err
		}

		rows := make([]apptables.Fields, len(document[name]))
		for i, row := range document[name] {
			fields, err := ser.ToFields(ctx, apptables.Fields(row))
			if err != nil {
				return count, fmt.Errorf("failed to convert %s row %d: %w", name, i, err)
			}
			rows[i] = fields
		}

		saved, err := table.Import(ctx, rows)
		if err != nil {
			return count, fmt.Errorf("failed to seed %s: %w", name, err)
		}
		count += len(saved)
	}
	return count, nil
}
