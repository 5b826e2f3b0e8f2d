package materializer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultTimeout = 30 * time.Second

// ErrMaterialization marks failures that prevented a dump from being turned
// into a database file.
var ErrMaterialization = errors.New("materialization failed")

var (
	statementsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagegen_sql_statements_applied_total",
		Help: "SQL statements applied while materializing dumps.",
	})
	statementsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagegen_sql_statements_failed_total",
		Help: "SQL statements rejected while materializing dumps.",
	})
)

// Config configures a Materializer.
type Config struct {
	Engine  StorageEngine
	Timeout time.Duration
	Logger  *log.Logger
}

// Materializer turns SQL dump text into a SQLite database file.
type Materializer struct {
	engine  StorageEngine
	timeout time.Duration
	logger  *log.Logger
}

// Report describes the outcome of one Materialize call.
type Report struct {
	Statements int
	Applied    int
	Failures   []StatementError
}

// New validates cfg and returns a Materializer.
func New(cfg Config) (*Materializer, error) {
	if cfg.Engine == nil {
		return nil, errors.New("storage engine is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Materializer{engine: cfg.Engine, timeout: cfg.Timeout, logger: cfg.Logger}, nil
}

// Materialize normalises sqlText and applies it to a fresh database at
// outputPath. Rejected statements are logged and counted but do not fail the
// call.
func (m *Materializer) Materialize(ctx context.Context, sqlText, outputPath string) (Report, error) {
	if m == nil {
		return Report{}, errors.New("nil materializer")
	}

	statements := SplitStatements(NormalizeUnistr(sqlText))
	report := Report{Statements: len(statements)}

	if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return report, fmt.Errorf("%w: remove stale %s: %v", ErrMaterialization, outputPath, err)
	}
	if err := os.WriteFile(outputPath, nil, 0o644); err != nil {
		return report, fmt.Errorf("%w: create %s: %v", ErrMaterialization, outputPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.engine.ApplyBatch(ctx, outputPath, statements)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrMaterialization, err)
	}

	report.Applied = res.Applied
	report.Failures = res.Failures
	statementsApplied.Add(float64(res.Applied))
	statementsFailed.Add(float64(len(res.Failures)))

	for _, f := range res.Failures {
		m.logger.Printf("WARN sql execution warning for %s: %v", outputPath, f)
	}
	return report, nil
}
