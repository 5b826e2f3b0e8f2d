package materializer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ShellEngine pipes statements through the sqlite3 command line tool.
type ShellEngine struct {
	// Binary defaults to "sqlite3" resolved on PATH.
	Binary string
}

// ApplyBatch writes the statements to a scratch file next to path and feeds it
// to the CLI on stdin. The scratch file is removed whatever the outcome. The
// CLI keeps going after a failing statement, so every stderr line is reported
// as an unattributed failure and Applied is the statement count minus those.
func (e ShellEngine) ApplyBatch(ctx context.Context, path string, statements []string) (BatchResult, error) {
	binary := e.Binary
	if binary == "" {
		binary = "sqlite3"
	}

	scratch := scratchPath(path)
	var script bytes.Buffer
	for _, stmt := range statements {
		script.WriteString(stmt)
		script.WriteString(";\n")
	}
	if err := os.WriteFile(scratch, script.Bytes(), 0o644); err != nil {
		return BatchResult{}, fmt.Errorf("write scratch sql: %w", err)
	}
	defer os.Remove(scratch)

	in, err := os.Open(scratch)
	if err != nil {
		return BatchResult{}, fmt.Errorf("open scratch sql: %w", err)
	}
	defer in.Close()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, path)
	cmd.Stdin = in
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return BatchResult{}, fmt.Errorf("%s: %w", binary, ctxErr)
	}
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return BatchResult{}, fmt.Errorf("run %s: %w", binary, runErr)
	}

	var res BatchResult
	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		res.Failures = append(res.Failures, StatementError{Index: -1, Err: errors.New(line)})
	}
	if runErr != nil && len(res.Failures) == 0 {
		res.Failures = append(res.Failures, StatementError{Index: -1, Err: runErr})
	}
	res.Applied = max(len(statements)-len(res.Failures), 0)
	return res, nil
}

func scratchPath(path string) string {
	if trimmed, ok := strings.CutSuffix(path, ".sqlite"); ok {
		return trimmed + "_temp.sql"
	}
	return path + "_temp.sql"
}
