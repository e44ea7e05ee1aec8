// Package apptables provides app data tables: named tables of rows with a
// fixed column schema, live row references, lazy searches and transactions,
// stored in a single Amazon DynamoDB table through the AWS SDK for Go v2.
//
// # Key Concepts
//
// A Tables namespace holds the schemas of an app's tables and the Backend
// they are stored in. DynamoBackend is the production backend; MemoryBackend
// keeps items in memory with the same semantics for tests and local use.
//
// A Row is a live reference to one record. Rows reached through link
// columns are unresolved until one of their fields is read, so a graph of
// linked rows can be walked without loading it whole, and may contain
// cycles.
//
// The DynamoDB layout is a single-table design with the following schema:
//   - hk (hash key): "<table>#<id>"
//   - sk (sort key): "<table>#<id>"
//   - label: the table name
//   - gsi1_sk: sort key for the ref index (creation time + id)
//   - data: map of column values
//
// # Basic Usage
//
//	tables := apptables.New(apptables.NewDynamoBackend(ddb, "my-app"))
//	err := tables.Define(apptables.Schema{
//	    Name: "employees",
//	    Columns: []apptables.Column{
//	        {Name: "name", Type: apptables.ColumnString},
//	        {Name: "manager", Type: apptables.ColumnLinkSingle, Target: "employees"},
//	    },
//	})
//
//	employees, err := tables.Get("employees")
//	alice, err := employees.AddRow(ctx, apptables.Fields{"name": "Alice"})
//	bob, err := employees.AddRow(ctx, apptables.Fields{"name": "Bob", "manager": alice})
//
// # Searching
//
// Search takes a Query mapping column names to literals, rows or Conditions:
//
//	it, err := employees.Search(ctx, apptables.Query{
//	    "manager": alice,
//	    "name":    apptables.BeginsWith("B"),
//	})
//	for it.Next(ctx) {
//	    fmt.Println(it.Row().ID())
//	}
//
// # Transactions
//
// Writes issued inside Transaction are committed atomically with a single
// TransactWriteItems call:
//
//	err := tables.Transaction(ctx, func(ctx context.Context) error {
//	    if err := alice.Update(ctx, apptables.Fields{"name": "Alice B."}); err != nil {
//	        return err
//	    }
//	    return bob.Delete(ctx)
//	})
//
// # Pagination
//
// Page cursors are stored in the same table and expire after Options.CursorTTL:
//
//	rows, cursor, err := it.Page(ctx, "", 20)
//	rows, cursor, err = it.Page(ctx, cursor, 20)
package apptables
