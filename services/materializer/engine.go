package materializer

import (
	"context"
	"fmt"
)

// StorageEngine applies a batch of SQL statements to a file-backed database.
// Individual statement failures are reported in the result; the returned error
// is reserved for failures that prevent the batch from running at all.
type StorageEngine interface {
	ApplyBatch(ctx context.Context, path string, statements []string) (BatchResult, error)
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Applied  int
	Failures []StatementError
}

// StatementError describes one statement the engine rejected. Index is -1
// when the engine cannot attribute the failure to a statement.
type StatementError struct {
	Index     int
	Statement string
	Err       error
}

func (e StatementError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("statement %d: %v", e.Index, e.Err)
}

func (e StatementError) Unwrap() error { return e.Err }
