package sweeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// DefaultMaxAge is how old a stage directory must be before it is removed.
	DefaultMaxAge = 600 * time.Second
	// DefaultInflightGrace bounds how long an in-flight marker protects a directory.
	DefaultInflightGrace = time.Hour
)

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stagegen_sweeps_total",
		Help: "Retention sweeps by outcome.",
	}, []string{"outcome"})
	removedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagegen_sweep_removed_directories_total",
		Help: "Stage directories removed by the retention sweeper.",
	})
)

// Config configures a Sweeper.
type Config struct {
	Roots         []string
	MaxAge        time.Duration
	InflightGrace time.Duration
	// Marker is the file name that flags a directory still being populated.
	Marker string
	Now    func() time.Time
	Logger *log.Logger
	// OnRemove is called for every directory removed.
	OnRemove func(ctx context.Context, r Removal)
	// OnComplete is called after every sweep that was not skipped.
	OnComplete func(ctx context.Context, r Report)
}

// Removal records one deleted directory.
type Removal struct {
	Path string
	Age  time.Duration
}

// Report summarises a sweep.
type Report struct {
	Removed []Removal
	Errors  []error
	Skipped bool
}

// Sweeper deletes stale stage directories.
type Sweeper struct {
	cfg Config
	mu  sync.Mutex
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Sweeper, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.New("at least one root is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.InflightGrace <= 0 {
		cfg.InflightGrace = DefaultInflightGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Sweeper{cfg: cfg}, nil
}

// Sweep removes every immediate child directory of each root older than
// MaxAge. It never fails; errors are logged and returned in the report.
// A sweep that starts while another is running on the same Sweeper is skipped.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	if s == nil {
		return Report{Skipped: true}
	}
	if !s.mu.TryLock() {
		s.cfg.Logger.Printf("INFO cleanup already running, skipping")
		sweepsTotal.WithLabelValues("skipped").Inc()
		return Report{Skipped: true}
	}
	defer s.mu.Unlock()

	var report Report
	now := s.cfg.Now()
	for _, root := range s.cfg.Roots {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err)
			break
		}
		s.sweepRoot(ctx, root, now, &report)
	}

	outcome := "ok"
	if len(report.Errors) > 0 {
		outcome = "error"
	}
	sweepsTotal.WithLabelValues(outcome).Inc()
	removedTotal.Add(float64(len(report.Removed)))

	s.cfg.Logger.Printf("INFO cleanup completed: removed %d directories", len(report.Removed))
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(ctx, report)
	}
	return report
}

func (s *Sweeper) sweepRoot(ctx context.Context, root string, now time.Time, report *Report) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.fail(report, fmt.Errorf("read %s: %w", root, err))
		}
		return
	}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		info, err := os.Lstat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.fail(report, fmt.Errorf("stat %s: %w", path, err))
			}
			continue
		}
		if !info.IsDir() {
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= s.cfg.MaxAge {
			continue
		}
		if s.inflight(path) && age <= s.cfg.InflightGrace {
			continue
		}

		s.cfg.Logger.Printf("INFO deleting old directory: %s (age: %ds)", path, int64(age.Round(time.Second)/time.Second))
		if err := os.RemoveAll(path); err != nil {
			s.fail(report, fmt.Errorf("remove %s: %w", path, err))
			continue
		}

		removal := Removal{Path: path, Age: age}
		report.Removed = append(report.Removed, removal)
		if s.cfg.OnRemove != nil {
			s.cfg.OnRemove(ctx, removal)
		}
	}
}

func (s *Sweeper) inflight(dir string) bool {
	if s.cfg.Marker == "" {
		return false
	}
	_, err := os.Lstat(filepath.Join(dir, s.cfg.Marker))
	return err == nil
}

func (s *Sweeper) fail(report *Report, err error) {
	s.cfg.Logger.Printf("ERROR cleanup: %v", err)
	report.Errors = append(report.Errors, err)
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if s == nil {
		return errors.New("nil sweeper")
	}
	if interval <= 0 {
		return errors.New("interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
