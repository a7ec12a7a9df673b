// Package config loads fieldsync settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, FIELDSYNC_*
// environment variables. The merged result is checked against an
// embedded CUE schema before use.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "FIELDSYNC_"

//go:embed schema.cue
var schemaSource string

// Config is the complete runtime configuration.
type Config struct {
	// DataDir holds queue.db and cache.db.
	DataDir string `yaml:"data_dir" json:"data_dir" env:"DATA_DIR"`

	// Endpoint receives ticket deliveries.
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"ENDPOINT"`

	// DeliveryTimeout bounds one delivery attempt.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" json:"delivery_timeout" env:"DELIVERY_TIMEOUT"`

	// Concurrency bounds parallel deliveries during a drain.
	Concurrency int `yaml:"concurrency" json:"concurrency" env:"CONCURRENCY"`

	Sync   SyncConfig   `yaml:"sync" json:"sync" envPrefix:"SYNC_"`
	Cache  CacheConfig  `yaml:"cache" json:"cache" envPrefix:"CACHE_"`
	Server ServerConfig `yaml:"server" json:"server" envPrefix:"SERVER_"`
}

// SyncConfig shapes background sync.
type SyncConfig struct {
	Tag string `yaml:"tag" json:"tag" env:"TAG"`

	// ProbeURL is checked for connectivity; the cache origin when empty.
	ProbeURL     string        `yaml:"probe_url" json:"probe_url" env:"PROBE_URL"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" env:"POLL_INTERVAL"`

	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval" env:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" json:"max_interval" env:"MAX_INTERVAL"`
	MaxElapsed      time.Duration `yaml:"max_elapsed" json:"max_elapsed" env:"MAX_ELAPSED"`
	MaxTries        uint          `yaml:"max_tries" json:"max_tries" env:"MAX_TRIES"`
}

// CacheConfig shapes the response cache.
type CacheConfig struct {
	Origin    string   `yaml:"origin" json:"origin" env:"ORIGIN"`
	Namespace string   `yaml:"namespace" json:"namespace" env:"NAMESPACE"`
	Manifest  []string `yaml:"manifest" json:"manifest" env:"MANIFEST" envSeparator:","`

	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// ServerConfig shapes the local HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	// AllowedOrigins may call the local API from a browser.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		DataDir:         ".fieldsync",
		Endpoint:        "http://127.0.0.1:8080/api/records",
		DeliveryTimeout: 30 * time.Second,
		Concurrency:     4,
		Sync: SyncConfig{
			Tag:             "sync-tickets",
			PollInterval:    30 * time.Second,
			InitialInterval: 5 * time.Second,
			MaxInterval:     10 * time.Minute,
			MaxElapsed:      24 * time.Hour,
		},
		Cache: CacheConfig{
			Origin:       "http://127.0.0.1:8080",
			Namespace:    "v1",
			Manifest:     []string{"/", "/index.html"},
			MaxBodyBytes: 8 << 20,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:7070",
			AllowedOrigins: []string{},
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		defer f.Close()

		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML overlays the document in r onto cfg. Unknown keys are errors.
func decodeYAML(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	if c.Cache.Manifest == nil {
		c.Cache.Manifest = []string{}
	}
	if c.Server.AllowedOrigins == nil {
		c.Server.AllowedOrigins = []string{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := schema.Unify(ctx.CompileBytes(data))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// QueuePath is the durable queue database.
func (c Config) QueuePath() string {
	return filepath.Join(c.DataDir, "queue.db")
}

// CachePath is the response cache database.
func (c Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// ProbeURL is the connectivity probe target.
func (c Config) ProbeURL() string {
	if c.Sync.ProbeURL != "" {
		return c.Sync.ProbeURL
	}
	return c.Cache.Origin
}
