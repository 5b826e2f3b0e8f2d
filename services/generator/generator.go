// Package generator builds the per-request artifact chain: a zipped device
// descriptor followed by SQL dump templates materialized into SQLite files,
// each stage linking to the previous one.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stagegen/services/materializer"
)

// DefaultInflightMarker flags a stage directory that is still being written.
const DefaultInflightMarker = ".inflight"

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stagegen_generations_total",
		Help: "Artifact generations by outcome.",
	}, []string{"outcome"})
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stagegen_stage_duration_seconds",
		Help:    "Time spent building each stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)

// Materializer applies SQL dump text to a new database file.
type Materializer interface {
	Materialize(ctx context.Context, sqlText, outputPath string) (materializer.Report, error)
}

// Recorder observes successful generations. Errors are logged, not returned
// to the caller.
type Recorder interface {
	RecordGeneration(ctx context.Context, res *Result) error
}

// Config wires a Generator.
type Config struct {
	BaseDir string
	// AltBaseDir is the second descriptor search location.
	AltBaseDir string
	// DocumentRoot anchors the last descriptor search location.
	DocumentRoot   string
	DefaultBaseURL string
	Layout         Layout
	Names          NameGenerator
	Materializer   Materializer
	Publisher      Publisher
	Recorders      []Recorder
	InflightMarker string
	Logger         *log.Logger
	Now            func() time.Time
}

// Generator runs the artifact pipeline.
type Generator struct {
	cfg Config
}

// Request carries the caller's parameters. BaseURL is the scheme and host
// links should point at; empty means the configured default.
type Request struct {
	ProductID string
	GUID      string
	Serial    string
	BaseURL   string
}

type Parameters struct {
	ProductID string `json:"productId"`
	GUID      string `json:"guid"`
	Serial    string `json:"serial"`
}

// StageOutput is one finished stage.
type StageOutput struct {
	Stage string
	Dir   string
	Path  string
	URL   string
}

// Result is the full link set of a generation.
type Result struct {
	Parameters Parameters
	Stages     []StageOutput
	Descriptor DescriptorInfo
	CreatedAt  time.Time
}

// Links maps stage name to public URL.
func (r *Result) Links() map[string]string {
	out := make(map[string]string, len(r.Stages))
	for _, s := range r.Stages {
		out[s.Stage] = s.URL
	}
	return out
}

// Paths maps stage name to local file path.
func (r *Result) Paths() map[string]string {
	out := make(map[string]string, len(r.Stages))
	for _, s := range r.Stages {
		out[s.Stage] = s.Path
	}
	return out
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base dir is required")
	}
	if cfg.Materializer == nil {
		return nil, errors.New("materializer is required")
	}
	if cfg.Layout.Package.Root == "" {
		cfg.Layout = DefaultLayout()
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	if cfg.AltBaseDir == "" {
		cfg.AltBaseDir = cfg.BaseDir
	}
	if cfg.Names == nil {
		cfg.Names = HexNames{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = LocalPublisher{}
	}
	if cfg.InflightMarker == "" {
		cfg.InflightMarker = DefaultInflightMarker
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{cfg: cfg}, nil
}

// Roots returns the absolute stage output roots, for serving and sweeping.
func (g *Generator) Roots() []string {
	rel := g.cfg.Layout.Roots()
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		out = append(out, filepath.Join(g.cfg.BaseDir, r))
	}
	return out
}

// Layout returns the layout in use.
func (g *Generator) Layout() Layout { return g.cfg.Layout }

// InflightMarker returns the marker file name written into stage directories.
func (g *Generator) InflightMarker() string { return g.cfg.InflightMarker }

// Generate runs every stage in order. Any failure aborts the run; directories
// created by earlier stages are left for the sweeper.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if g == nil {
		return nil, errors.New("nil generator")
	}

	res, err := g.generate(ctx, req)
	generationsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	for _, r := range g.cfg.Recorders {
		if err := r.RecordGeneration(ctx, res); err != nil {
			g.cfg.Logger.Printf("WARN record generation: %v", err)
		}
	}
	return res, nil
}

func (g *Generator) generate(ctx context.Context, req Request) (*Result, error) {
	params := Parameters{
		ProductID: strings.TrimSpace(req.ProductID),
		GUID:      strings.TrimSpace(req.GUID),
		Serial:    strings.TrimSpace(req.Serial),
	}
	if params.ProductID == "" || params.GUID == "" || params.Serial == "" {
		g.cfg.Logger.Printf("ERROR missing params: productId=%q guid=%q serial=%q", params.ProductID, params.GUID, params.Serial)
		return nil, ErrMissingParameter
	}

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = g.cfg.DefaultBaseURL
	}

	desc, err := g.resolveDescriptor(params.ProductID)
	if err != nil {
		g.cfg.Logger.Printf("ERROR %v", err)
		return nil, err
	}
	g.cfg.Logger.Printf("INFO using descriptor %s (%d bytes)", desc.Path, desc.Size)

	res := &Result{Parameters: params, Descriptor: desc, CreatedAt: g.cfg.Now().UTC()}

	out, err := g.packageStage(ctx, baseURL, desc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.cfg.Layout.Package.Name, err)
	}
	res.Stages = append(res.Stages, out)

	for _, stage := range g.cfg.Layout.SQLStages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err = g.sqlStage(ctx, baseURL, stage, params, out.URL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name, err)
		}
		res.Stages = append(res.Stages, out)
	}

	g.cfg.Logger.Printf("INFO all %d stages generated for %s", len(res.Stages), params.ProductID)
	return res, nil
}

// newStageDir creates a uniquely named directory under root holding the
// in-flight marker. release removes the marker.
func (g *Generator) newStageDir(root string) (name, dir string, release func(), err error) {
	parent := filepath.Join(g.cfg.BaseDir, root)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", "", nil, fmt.Errorf("create %s: %w", parent, err)
	}

	name, err = g.cfg.Names.Next()
	if err != nil {
		return "", "", nil, err
	}
	dir = filepath.Join(parent, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", "", nil, fmt.Errorf("create stage dir: %w", err)
	}

	marker := filepath.Join(dir, g.cfg.InflightMarker)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return "", "", nil, fmt.Errorf("write in-flight marker: %w", err)
	}
	release = func() {
		if err := os.Remove(marker); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.cfg.Logger.Printf("WARN remove in-flight marker %s: %v", marker, err)
		}
	}
	return name, dir, release, nil
}

func (g *Generator) packageStage(ctx context.Context, baseURL string, desc DescriptorInfo) (StageOutput, error) {
	ps := g.cfg.Layout.Package
	start := time.Now()
	defer func() { stageDuration.WithLabelValues(ps.Name).Observe(time.Since(start).Seconds()) }()

	name, dir, release, err := g.newStageDir(ps.Root)
	if err != nil {
		return StageOutput{}, err
	}
	defer release()

	scratch := filepath.Join(dir, ps.Scratch)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return StageOutput{}, fmt.Errorf("create scratch dir: %w", err)
	}
	if err := copyFile(desc.Path, filepath.Join(scratch, g.cfg.Layout.Descriptor.File)); err != nil {
		return StageOutput{}, err
	}

	archive := filepath.Join(dir, ps.Archive)
	if err := writeArchive(archive, scratch, ps.Mimetype); err != nil {
		return StageOutput{}, err
	}
	if err := os.RemoveAll(scratch); err != nil {
		return StageOutput{}, fmt.Errorf("remove scratch dir: %w", err)
	}

	final := filepath.Join(dir, ps.Output)
	if err := os.Rename(archive, final); err != nil {
		return StageOutput{}, fmt.Errorf("rename archive: %w", err)
	}
	g.cfg.Logger.Printf("INFO %s created: %s", ps.Output, final)

	return g.publish(ctx, baseURL, Artifact{Stage: ps.Name, Root: ps.Root, Name: name, File: ps.Output, Path: final}, dir)
}

func (g *Generator) sqlStage(ctx context.Context, baseURL string, st SQLStage, params Parameters, previousURL string) (StageOutput, error) {
	start := time.Now()
	defer func() { stageDuration.WithLabelValues(st.Name).Observe(time.Since(start).Seconds()) }()

	text, err := readTemplate(filepath.Join(g.cfg.BaseDir, st.Template))
	if err != nil {
		g.cfg.Logger.Printf("ERROR %v", err)
		return StageOutput{}, err
	}
	text = Apply(text, st.resolve(params, previousURL))

	name, dir, release, err := g.newStageDir(st.Root)
	if err != nil {
		return StageOutput{}, err
	}
	defer release()

	work := filepath.Join(dir, st.WorkFile)
	report, err := g.cfg.Materializer.Materialize(ctx, text, work)
	if err != nil {
		g.cfg.Logger.Printf("ERROR %s: %v", st.Name, err)
		return StageOutput{}, err
	}
	g.cfg.Logger.Printf("INFO %s: applied %d of %d statements", st.Name, report.Applied, report.Statements)

	final := filepath.Join(dir, st.Output)
	if err := os.Rename(work, final); err != nil {
		return StageOutput{}, fmt.Errorf("rename database: %w", err)
	}

	return g.publish(ctx, baseURL, Artifact{Stage: st.Name, Root: st.Root, Name: name, File: st.Output, Path: final}, dir)
}

func (g *Generator) publish(ctx context.Context, baseURL string, a Artifact, dir string) (StageOutput, error) {
	url, err := g.cfg.Publisher.Publish(ctx, baseURL, a)
	if err != nil {
		return StageOutput{}, fmt.Errorf("publish %s: %w", a.Key(), err)
	}
	return StageOutput{Stage: a.Stage, Dir: dir, Path: a.Path, URL: url}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingParameter):
		return "missing_parameter"
	case errors.Is(err, ErrDescriptorNotFound):
		return "descriptor_not_found"
	case errors.Is(err, ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, materializer.ErrMaterialization):
		return "materialization_error"
	default:
		return "error"
	}
}
