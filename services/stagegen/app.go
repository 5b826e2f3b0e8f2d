// Package stagegen assembles the generator, sweeper and their optional
// backends from configuration. Both binaries build on it.
package stagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"stagegen/pkg/bus"
	"stagegen/pkg/db"
	"stagegen/pkg/render"
	gos3 "stagegen/pkg/s3"
	"stagegen/services/api"
	"stagegen/services/events"
	"stagegen/services/generator"
	"stagegen/services/ledger"
	"stagegen/services/materializer"
	"stagegen/services/stagegen/internal/config"
	"stagegen/services/sweeper"
)

// App holds the wired components. Ledger and Events are nil when their
// backends are not configured.
type App struct {
	Config    config.Config
	Generator *generator.Generator
	Sweeper   *sweeper.Sweeper
	Ledger    *ledger.Ledger
	Events    *events.Publisher
	Renderer  *render.Engine

	logger  *log.Logger
	pool    *pgxpool.Pool
	bus     *bus.Bus
	objects *gos3.Client
	subs    []io.Closer
}

// New builds an App. Callers must Close it.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	app := &App{Config: cfg, logger: logger}

	if err := app.connect(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.pool = pool
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		l, err := ledger.New(pool)
		if err != nil {
			return fmt.Errorf("init ledger: %w", err)
		}
		a.Ledger = l
		a.logger.Printf("INFO generation ledger enabled")
	}

	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL, bus.Options{Name: "stagegen", Logger: a.logger})
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		a.bus = b
		if err := b.EnsureStream(events.StreamName, events.Subjects()...); err != nil {
			return fmt.Errorf("ensure stream: %w", err)
		}
		p, err := events.NewPublisher(b, a.logger)
		if err != nil {
			return fmt.Errorf("init event publisher: %w", err)
		}
		a.Events = p
		a.logger.Printf("INFO event bus enabled")
	}
	return nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	mat, err := materializer.New(materializer.Config{
		Engine:  engine,
		Timeout: cfg.MaterializeTimeout,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("init materializer: %w", err)
	}

	publisher, objects, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	a.objects = objects

	var recorders []generator.Recorder
	if a.Ledger != nil {
		recorders = append(recorders, a.Ledger)
	}
	if a.Events != nil {
		recorders = append(recorders, a.Events)
	}

	gen, err := generator.New(generator.Config{
		BaseDir:        cfg.BaseDir,
		AltBaseDir:     cfg.AltBaseDir,
		DocumentRoot:   cfg.DocumentRoot,
		DefaultBaseURL: cfg.DefaultBaseURL(),
		Layout:         cfg.Layout,
		Materializer:   mat,
		Publisher:      publisher,
		Recorders:      recorders,
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	a.Generator = gen

	swCfg := sweeper.Config{
		Roots:         gen.Roots(),
		MaxAge:        cfg.RetentionAge,
		InflightGrace: cfg.InflightGrace,
		Marker:        gen.InflightMarker(),
		Logger:        a.logger,
	}
	if a.Ledger != nil {
		swCfg.OnRemove = func(ctx context.Context, r sweeper.Removal) {
			if _, err := a.Ledger.MarkSwept(ctx, r.Path); err != nil {
				a.logger.Printf("WARN ledger: %v", err)
			}
		}
	}
	if a.Events != nil {
		swCfg.OnComplete = a.Events.SweepCompleted
	}
	sw, err := sweeper.New(swCfg)
	if err != nil {
		return fmt.Errorf("init sweeper: %w", err)
	}
	a.Sweeper = sw

	renderer, err := render.New()
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	a.Renderer = renderer
	return nil
}

func newEngine(cfg config.Config) (materializer.StorageEngine, error) {
	switch cfg.SQLEngine {
	case config.EngineSQLite:
		return materializer.SQLiteEngine{}, nil
	case config.EngineShell:
		return materializer.ShellEngine{Binary: cfg.SQLiteBinary}, nil
	default:
		return nil, fmt.Errorf("unknown sql engine %q", cfg.SQLEngine)
	}
}

// newPublisher returns the configured publisher and, in s3 mode, the client
// behind it.
func newPublisher(ctx context.Context, cfg config.Config) (generator.Publisher, *gos3.Client, error) {
	if cfg.PublishMode != config.PublishS3 {
		return generator.LocalPublisher{}, nil, nil
	}
	client, err := gos3.NewClient(ctx, gos3.Config{
		Endpoint:       cfg.S3.Endpoint,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		Region:         cfg.S3.Region,
		DisableTLS:     cfg.S3.DisableTLS,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init s3 client: %w", err)
	}
	return generator.S3Publisher{
		Store:  client,
		Bucket: cfg.S3.Bucket,
		Prefix: cfg.S3.Prefix,
		TTL:    cfg.S3.PresignTTL,
	}, client, nil
}

// Handler builds the HTTP router.
func (a *App) Handler() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil app")
	}
	roots := map[string]string{}
	for _, r := range a.Generator.Layout().Roots() {
		roots[r] = filepath.Join(a.Config.BaseDir, r)
	}

	var opts []api.Option
	if a.Ledger != nil {
		opts = append(opts, api.WithHistory(a.Ledger), api.WithReadinessCheck("database", a.Ledger.Ping))
	}
	if a.bus != nil {
		b := a.bus
		opts = append(opts, api.WithReadinessCheck("nats", func(context.Context) error {
			if !b.Connected() {
				return errors.New("not connected")
			}
			return nil
		}))
	}

	if a.objects != nil {
		objects, bucket := a.objects, a.Config.S3.Bucket
		opts = append(opts, api.WithReadinessCheck("s3", func(ctx context.Context) error {
			return objects.Ping(ctx, bucket)
		}))
	}

	server, err := api.New(a.Generator, a.Sweeper, a.Renderer, api.Config{
		PublicBaseURL:     a.Config.PublicBaseURL,
		StaticRoots:       roots,
		Debug:             a.Config.ResponseDebug,
		TrustProxyHeaders: a.Config.TrustProxyHeaders,
		GenerateRateLimit: a.Config.GenerateRateLimit,
		Logger:            a.logger,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init api: %w", err)
	}
	return server.Routes()
}

// StartBackground runs the periodic sweeper and the sweep-request
// subscription until ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) error {
	if a == nil {
		return errors.New("nil app")
	}
	if a.Config.SweepInterval > 0 {
		go func() {
			if err := a.Sweeper.Run(ctx, a.Config.SweepInterval); err != nil {
				a.logger.Printf("ERROR sweeper stopped: %v", err)
			}
		}()
	}
	if a.bus != nil {
		sub, err := events.SubscribeSweepRequests(ctx, a.bus, a.logger, a.Sweeper.Sweep)
		if err != nil {
			return fmt.Errorf("subscribe sweep requests: %w", err)
		}
		a.subs = append(a.subs, sub)
	}
	return nil
}

// RequestSweep publishes a sweep request for a running server.
func (a *App) RequestSweep(ctx context.Context, requestedBy string) error {
	if a == nil || a.bus == nil {
		return errors.New("event bus is not configured")
	}
	return a.bus.Publish(ctx, events.SweepRequestedSubject, events.SweepRequest{RequestedBy: requestedBy})
}

// Close releases subscriptions and connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	for _, s := range a.subs {
		_ = s.Close()
	}
	a.subs = nil
	if a.bus != nil {
		a.bus.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
