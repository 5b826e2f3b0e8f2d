package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"stagegen/services/generator"
)

const (
	EngineSQLite = "sqlite"
	EngineShell  = "shell"

	PublishLocal = "local"
	PublishS3    = "s3"
)

// Config holds runtime configuration for the stagegen binaries.
type Config struct {
	Port int `env:"PORT,default=3000"`

	BaseDir      string `env:"STAGEGEN_BASE_DIR"`
	AltBaseDir   string `env:"STAGEGEN_ALT_BASE_DIR"`
	DocumentRoot string `env:"DOCUMENT_ROOT"`
	LayoutFile   string `env:"STAGEGEN_CONFIG"`

	PublicScheme  string `env:"PUBLIC_SCHEME,default=http"`
	Host          string `env:"HOST,default=localhost:3000"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	RetentionAge  time.Duration `env:"RETENTION_AGE,default=600s"`
	InflightGrace time.Duration `env:"INFLIGHT_GRACE,default=1h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=5m"`

	SQLEngine          string        `env:"SQL_ENGINE,default=sqlite"`
	SQLiteBinary       string        `env:"SQLITE_BINARY,default=sqlite3"`
	MaterializeTimeout time.Duration `env:"MATERIALIZE_TIMEOUT,default=30s"`

	ResponseDebug     bool `env:"RESPONSE_DEBUG,default=false"`
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS,default=false"`
	GenerateRateLimit int  `env:"GENERATE_RATE_LIMIT,default=0"`

	DatabaseURL  string `env:"DATABASE_URL"`
	NATSURL      string `env:"NATS_URL"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	PublishMode string   `env:"PUBLISH_MODE,default=local"`
	S3          S3Config `env:",prefix=S3_"`

	// Layout is read from LayoutFile, not the environment.
	Layout generator.Layout
}

// S3Config configures the object-store publisher.
type S3Config struct {
	Endpoint       string        `env:"ENDPOINT"`
	AccessKey      string        `env:"ACCESS_KEY"`
	SecretKey      string        `env:"SECRET_KEY"`
	Region         string        `env:"REGION,default=us-east-1"`
	Bucket         string        `env:"BUCKET"`
	Prefix         string        `env:"PREFIX"`
	DisableTLS     bool          `env:"DISABLE_TLS,default=false"`
	ForcePathStyle bool          `env:"FORCE_PATH_STYLE,default=true"`
	PresignTTL     time.Duration `env:"PRESIGN_TTL,default=1h"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith populates a Config from lookuper, resolves directories and reads
// the layout overlay.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}

	if err := cfg.resolveDirs(); err != nil {
		return Config{}, err
	}

	layout, err := LoadLayout(cfg.LayoutFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Layout = layout

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) resolveDirs() error {
	if c.BaseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		c.BaseDir = wd
	}
	abs, err := filepath.Abs(c.BaseDir)
	if err != nil {
		return fmt.Errorf("resolve STAGEGEN_BASE_DIR: %w", err)
	}
	c.BaseDir = abs

	if c.AltBaseDir == "" {
		if exe, err := os.Executable(); err == nil {
			c.AltBaseDir = filepath.Dir(exe)
		} else {
			c.AltBaseDir = c.BaseDir
		}
	}
	return nil
}

// Validate checks option values that envconfig cannot.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	switch c.SQLEngine {
	case EngineSQLite, EngineShell:
	default:
		return fmt.Errorf("invalid SQL_ENGINE %q: want %s or %s", c.SQLEngine, EngineSQLite, EngineShell)
	}
	switch c.PublishMode {
	case PublishLocal:
	case PublishS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return errors.New("S3_ENDPOINT and S3_BUCKET are required when PUBLISH_MODE=s3")
		}
	default:
		return fmt.Errorf("invalid PUBLISH_MODE %q: want %s or %s", c.PublishMode, PublishLocal, PublishS3)
	}
	if c.RetentionAge <= 0 {
		return errors.New("RETENTION_AGE must be positive")
	}
	if c.SweepInterval < 0 {
		return errors.New("SWEEP_INTERVAL must not be negative")
	}
	if c.GenerateRateLimit < 0 {
		return errors.New("GENERATE_RATE_LIMIT must not be negative")
	}
	if c.PublicScheme != "http" && c.PublicScheme != "https" {
		return fmt.Errorf("invalid PUBLIC_SCHEME %q", c.PublicScheme)
	}
	return nil
}

// DefaultBaseURL is used for links when the request carries no host.
func (c Config) DefaultBaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return fmt.Sprintf("%s://%s", c.PublicScheme, c.Host)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoadLayout overlays the YAML file at path onto the default layout. An empty
// path returns the default layout.
func LoadLayout(path string) (generator.Layout, error) {
	layout := generator.DefaultLayout()
	if strings.TrimSpace(path) == "" {
		return layout, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return generator.Layout{}, fmt.Errorf("read layout %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return generator.Layout{}, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return generator.Layout{}, fmt.Errorf("layout %s: %w", path, err)
	}
	return layout, nil
}
