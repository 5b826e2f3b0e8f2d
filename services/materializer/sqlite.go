package materializer

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver
)

// SQLiteEngine applies statements in-process through the pure Go SQLite driver.
type SQLiteEngine struct{}

// ApplyBatch opens path and executes statements in order on one connection so
// that BEGIN/COMMIT pairs in the dump keep their meaning.
func (SQLiteEngine) ApplyBatch(ctx context.Context, path string, statements []string) (BatchResult, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return BatchResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("connect %s: %w", path, err)
	}
	defer conn.Close()

	var res BatchResult
	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			res.Failures = append(res.Failures, StatementError{Index: i, Statement: stmt, Err: err})
			continue
		}
		res.Applied++
	}
	return res, nil
}
